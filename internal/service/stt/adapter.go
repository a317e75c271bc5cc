// Package stt defines the interface for Speech-to-Text backends that feed the
// dialog analysis pipeline with word-level recognition results.
package stt

import "context"

// Callback receives recognition output from an Adapter.
type Callback interface {
	// OnPartial is called with an interim hypothesis. Partials carry no word
	// timing and are not part of the analysed result sequence.
	OnPartial(text string)

	// OnResult is called for every accepted-waveform result and for the single
	// final result, in recognition order. Results without words are delivered too.
	OnResult(res RecognitionResult)

	// OnError is called when the backend fails asynchronously.
	OnError(err error)
}

// Adapter is one stateful recognition session bound to a single request.
type Adapter interface {
	// Start begins a recognition session delivering results to cb.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends little-endian 16-bit mono PCM to the recognizer.
	SendAudio(ctx context.Context, pcm []byte) error

	// Close flushes the session. It returns only after the final result has
	// been delivered through OnResult.
	Close() error
}

// Model is a loaded recognition model. It is created once per process, never
// mutated afterwards and safe for concurrent use by many requests.
type Model interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// NewAdapter opens a recognition session for audio at sampleRate Hz.
	NewAdapter(sampleRate int) (Adapter, error)
}
