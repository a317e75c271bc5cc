// Package exec runs an external recognizer command over the buffered audio of
// a session. The command receives a mono 16-bit WAV file and prints one JSON
// object per line: {"partial": "..."} for interim hypotheses or
// {"text": "...", "result": [{"word","start","end","conf"}...]} for results.
package exec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog/log"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/service/audio"
	"ai-dialog-analysis-service/internal/service/stt"
)

// Config holds exec recognizer settings.
type Config struct {
	Command   string
	ModelPath string
	Language  string
}

// Model implements stt.Model by spawning Command once per session.
type Model struct {
	cmd []string
	cfg Config
}

// NewModel parses the command line and checks that the model exists.
func NewModel(cfg Config) (*Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("model not found: %w", err)
		}
	}
	return &Model{cmd: args, cfg: cfg}, nil
}

// Name implements stt.Model.
func (m *Model) Name() string {
	return "exec"
}

// NewAdapter implements stt.Model.
func (m *Model) NewAdapter(sampleRate int) (stt.Adapter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", analysiserr.ErrAudioFormat)
	}
	return &Adapter{model: m, sampleRate: sampleRate}, nil
}

// Adapter buffers audio and runs the command when closed.
type Adapter struct {
	model      *Model
	sampleRate int

	mu     sync.Mutex
	ctx    context.Context
	cb     stt.Callback
	pcm    []byte
	closed bool
}

// Start implements stt.Adapter.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
	a.cb = cb
	return nil
}

// SendAudio implements stt.Adapter.
func (a *Adapter) SendAudio(_ context.Context, pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.pcm = append(a.pcm, pcm...)
	return nil
}

// Close runs the recognizer and delivers its results. The last result is the
// final one; a command that prints no results yields an empty final result.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.cb == nil {
		return nil
	}
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := a.run(ctx)
	if err != nil {
		return err
	}
	results, err := a.parse(out)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		results = append(results, stt.RecognitionResult{})
	}
	results[len(results)-1].Final = true
	for _, res := range results {
		a.cb.OnResult(res)
	}
	return nil
}

func (a *Adapter) run(ctx context.Context) ([]byte, error) {
	file, err := os.CreateTemp("", "dialog_stt_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, a.pcm, a.sampleRate); err != nil {
		return nil, err
	}

	args := append([]string{}, a.model.cmd[1:]...)
	args = append(args, "--audio", file.Name(), "--sample-rate", strconv.Itoa(a.sampleRate))
	if a.model.cfg.ModelPath != "" {
		args = append(args, "--model", a.model.cfg.ModelPath)
	}
	if a.model.cfg.Language != "" {
		args = append(args, "--language", a.model.cfg.Language)
	}

	command := exec.CommandContext(ctx, a.model.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%w: stt command failed: %v: %s", analysiserr.ErrRecognizer, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (a *Adapter) parse(out []byte) ([]stt.RecognitionResult, error) {
	var results []stt.RecognitionResult
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var partial struct {
			Partial *string `json:"partial"`
		}
		if err := json.Unmarshal(line, &partial); err == nil && partial.Partial != nil {
			a.cb.OnPartial(*partial.Partial)
			continue
		}

		res, err := stt.ParseResult(line)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stt output: %v", analysiserr.ErrRecognizer, err)
	}
	log.Debug().
		Str("sttProvider", "exec").
		Int("results", len(results)).
		Msg("exec recognizer finished")
	return results, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("%w: pcm payload not aligned", analysiserr.ErrAudioFormat)
	}
	samples := audio.DecodePCM16(pcm)
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
