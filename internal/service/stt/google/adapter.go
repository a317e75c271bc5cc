// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/service/stt"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// parseAudioEncoding converts string encoding to Google's enum.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Model shares one Speech client between sessions.
type Model struct {
	client *speech.Client
	cfg    Config
}

// NewModel creates the Speech client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Model{client: c, cfg: cfg}, nil
}

// Name implements stt.Model.
func (m *Model) Name() string {
	return "google"
}

// NewAdapter implements stt.Model. The decoded sample rate overrides the
// configured one.
func (m *Model) NewAdapter(sampleRate int) (stt.Adapter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", analysiserr.ErrAudioFormat)
	}
	cfg := m.cfg
	cfg.SampleRateHz = int32(sampleRate)
	return &Adapter{client: m.client, cfg: cfg}, nil
}

// Close releases the Speech client.
func (m *Model) Close() error {
	return m.client.Close()
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	cfg    Config
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback

	done      chan struct{}
	closeOnce sync.Once
}

// Start begins a streaming recognition session, sends the initial config and
// starts receiving responses.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", analysiserr.ErrRecognizer, err)
	}
	a.stream = stream
	a.cb = cb

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:              parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:       a.cfg.SampleRateHz,
					LanguageCode:          a.cfg.LanguageCode,
					EnableWordTimeOffsets: true,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", analysiserr.ErrRecognizer, err)
	}

	a.done = make(chan struct{})
	go a.listen()
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	if a.stream == nil {
		return fmt.Errorf("%w: session not started", analysiserr.ErrRecognizer)
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close ends the streaming session, waits for outstanding responses and then
// delivers an empty final result.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.stream == nil {
			return
		}
		err = a.stream.CloseSend()
		<-a.done
		a.cb.OnResult(stt.RecognitionResult{Final: true})
	})
	return err
}

// listen receives transcript responses until the stream ends.
func (a *Adapter) listen() {
	defer close(a.done)
	for {
		resp, err := a.stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("sttProvider", "google").Msg("stream receive failed")
			a.cb.OnError(fmt.Errorf("%w: %v", analysiserr.ErrRecognizer, err))
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if !r.IsFinal {
				a.cb.OnPartial(alt.Transcript)
				continue
			}
			a.cb.OnResult(toResult(alt))
		}
	}
}

func toResult(alt *speechpb.SpeechRecognitionAlternative) stt.RecognitionResult {
	res := stt.RecognitionResult{Text: alt.Transcript}
	for _, w := range alt.Words {
		res.Words = append(res.Words, stt.WordHypothesis{
			Word:  w.Word,
			Start: w.StartTime.AsDuration().Seconds(),
			End:   w.EndTime.AsDuration().Seconds(),
			Conf:  float64(w.Confidence),
		})
	}
	return res
}
