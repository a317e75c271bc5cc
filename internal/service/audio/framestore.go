// Package audio holds the decoded PCM of one analysis request and the WAV
// decoder that feeds it.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"ai-dialog-analysis-service/internal/analysiserr"
)

// ErrFrozen is returned when audio is appended after the store was frozen.
var ErrFrozen = errors.New("frame store is frozen")

// SampleBuffer is the contiguous mono 16-bit audio of one request.
// It must not be mutated once returned by FrameStore.Freeze.
type SampleBuffer struct {
	Samples    []int16
	SampleRate int
}

// Len returns the number of samples in the buffer.
func (b SampleBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the buffer length in seconds.
func (b SampleBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the samples of the half-open interval [start, end) in seconds,
// i.e. indices [floor(start*r), floor(end*r)). The upper index is clamped to the
// buffer length. An inverted, non-finite or out-of-range interval yields an
// empty slice. The result aliases the buffer and has no spare capacity.
func (b SampleBuffer) Slice(start, end float64) []int16 {
	if b.SampleRate <= 0 || !isFinite(start) || !isFinite(end) || end <= start {
		return nil
	}

	r := float64(b.SampleRate)
	lo := math.Floor(start * r)
	hi := math.Floor(end * r)
	if lo < 0 || lo >= float64(len(b.Samples)) {
		return nil
	}
	if hi > float64(len(b.Samples)) {
		hi = float64(len(b.Samples))
	}
	if hi <= lo {
		return nil
	}
	i, j := int(lo), int(hi)
	return b.Samples[i:j:j]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FrameStore accumulates decoded PCM chunks in arrival order.
// Not safe for concurrent use; a store belongs to exactly one request.
type FrameStore struct {
	sampleRate int
	chunks     [][]int16
	total      int
	frozen     *SampleBuffer
}

// NewFrameStore creates an empty store for audio at sampleRate samples/second.
func NewFrameStore(sampleRate int) (*FrameStore, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", analysiserr.ErrAudioFormat, sampleRate)
	}
	return &FrameStore{sampleRate: sampleRate}, nil
}

// SampleRate returns the store's sample rate.
func (s *FrameStore) SampleRate() int {
	return s.sampleRate
}

// Len returns the number of samples appended so far.
func (s *FrameStore) Len() int {
	return s.total
}

// Append copies chunk onto the end of the store.
func (s *FrameStore) Append(chunk []int16) error {
	if s.frozen != nil {
		return ErrFrozen
	}
	if len(chunk) == 0 {
		return nil
	}
	c := make([]int16, len(chunk))
	copy(c, chunk)
	s.chunks = append(s.chunks, c)
	s.total += len(c)
	return nil
}

// AppendPCM decodes little-endian signed 16-bit PCM and appends it.
func (s *FrameStore) AppendPCM(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("%w: pcm payload not aligned (%d bytes)", analysiserr.ErrAudioFormat, len(pcm))
	}
	return s.Append(DecodePCM16(pcm))
}

// Freeze concatenates all chunks into one SampleBuffer. Later calls return the
// same buffer.
func (s *FrameStore) Freeze() SampleBuffer {
	if s.frozen != nil {
		return *s.frozen
	}
	samples := make([]int16, 0, s.total)
	for _, c := range s.chunks {
		samples = append(samples, c...)
	}
	s.chunks = nil
	s.frozen = &SampleBuffer{Samples: samples, SampleRate: s.sampleRate}
	return *s.frozen
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples. A trailing odd
// byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// EncodePCM16 converts samples to little-endian 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}
