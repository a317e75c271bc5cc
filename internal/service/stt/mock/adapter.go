// Package mock provides a mock STT backend for running and testing the service
// without a recognition model. It behaves like a streaming recognizer: interim
// hypotheses while audio arrives, an accepted result at utterance boundaries
// and exactly one final result when the session is closed.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ai-dialog-analysis-service/internal/service/stt"
)

// DefaultUtterances provides sample sentences for synthesized results.
var DefaultUtterances = []string{
	"hello this is customer support",
	"hi I want to cancel my subscription",
	"can you confirm your account number",
	"yes it ends in four two one",
	"thank you the request is done",
}

// DefaultChunksPerResult is how many SendAudio calls make up one synthesized utterance.
const DefaultChunksPerResult = 2

// Model implements stt.Model with scripted or synthesized results.
//
// With a Script, results are delivered in order, one per SendAudio call; the
// last script entry is always delivered by Close as the final result. Without a
// Script, every ChunksPerResult calls produce one utterance whose words evenly
// cover the audio received since the previous utterance. Partials, when set,
// are emitted one per SendAudio call in addition to either mode.
type Model struct {
	Script          []stt.RecognitionResult
	Partials        []string
	ChunksPerResult int
	Utterances      []string
}

// NewModel returns a synthesizing mock model.
func NewModel() *Model {
	return &Model{ChunksPerResult: DefaultChunksPerResult, Utterances: DefaultUtterances}
}

// Name implements stt.Model.
func (m *Model) Name() string {
	return "mock"
}

// NewAdapter implements stt.Model.
func (m *Model) NewAdapter(sampleRate int) (stt.Adapter, error) {
	if sampleRate <= 0 {
		return nil, errors.New("mock: sample rate must be positive")
	}
	chunks := m.ChunksPerResult
	if chunks <= 0 {
		chunks = DefaultChunksPerResult
	}
	utterances := m.Utterances
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Adapter{
		sampleRate:      sampleRate,
		script:          append([]stt.RecognitionResult(nil), m.Script...),
		partials:        m.Partials,
		chunksPerResult: chunks,
		utterances:      utterances,
	}, nil
}

// Adapter implements stt.Adapter for one session.
type Adapter struct {
	mu              sync.Mutex
	cb              stt.Callback
	sampleRate      int
	script          []stt.RecognitionResult
	partials        []string
	chunksPerResult int
	utterances      []string

	audioReceived int   // SendAudio calls so far
	samples       int64 // samples received so far
	windowStart   int64 // first sample of the pending utterance
	utteranceIdx  int
	partialIdx    int
	closed        bool
}

// Start implements stt.Adapter.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio implements stt.Adapter.
func (a *Adapter) SendAudio(ctx context.Context, pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}
	a.audioReceived++
	a.samples += int64(len(pcm) / 2)

	if a.partialIdx < len(a.partials) {
		a.cb.OnPartial(a.partials[a.partialIdx])
		a.partialIdx++
	}

	if len(a.script) > 0 {
		// The last entry is reserved for Close.
		if len(a.script) > 1 {
			res := a.script[0]
			a.script = a.script[1:]
			a.cb.OnResult(res)
		}
		return nil
	}

	text := a.utterances[a.utteranceIdx%len(a.utterances)]
	words := strings.Fields(text)
	step := a.audioReceived % a.chunksPerResult
	if step != 0 {
		if n := min(len(words), step*len(words)/a.chunksPerResult); n > 0 {
			a.cb.OnPartial(strings.Join(words[:n], " "))
		}
		return nil
	}
	a.cb.OnResult(a.synthesize(text))
	return nil
}

// Close implements stt.Adapter. Remaining script entries are flushed in order
// and the last one is marked final.
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

	if len(a.script) > 0 {
		for i, res := range a.script {
			res.Final = i == len(a.script)-1
			a.cb.OnResult(res)
		}
		a.script = nil
		return nil
	}

	final := stt.RecognitionResult{Final: true}
	if a.samples > a.windowStart {
		final = a.synthesize(a.utterances[a.utteranceIdx%len(a.utterances)])
		final.Final = true
	}
	a.cb.OnResult(final)
	return nil
}

// synthesize spreads the words of text evenly over the pending audio window.
func (a *Adapter) synthesize(text string) stt.RecognitionResult {
	words := strings.Fields(text)
	start := float64(a.windowStart) / float64(a.sampleRate)
	end := float64(a.samples) / float64(a.sampleRate)
	width := (end - start) / float64(len(words))

	res := stt.RecognitionResult{Text: text}
	for i, w := range words {
		res.Words = append(res.Words, stt.WordHypothesis{
			Word:  w,
			Start: start + float64(i)*width,
			End:   start + float64(i+1)*width,
			Conf:  1,
		})
	}
	a.windowStart = a.samples
	a.utteranceIdx++
	return res
}
