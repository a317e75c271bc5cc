package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/testutil"
)

func TestDecoder_ReadsChunksInOrder(t *testing.T) {
	samples := testutil.Tone(440, 8000, 1.25, 8000)
	raw := testutil.WAV(t, samples, 8000, 1, 16)

	dec, err := NewDecoder(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.SampleRate() != 8000 {
		t.Fatalf("expected sample rate 8000, got %d", dec.SampleRate())
	}

	var got []int16
	var chunks int
	for {
		c, err := dec.Next(DefaultChunkFrames)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if len(c.PCM) != 2*len(c.Samples) {
			t.Errorf("chunk %d: pcm length %d does not match %d samples", chunks, len(c.PCM), len(c.Samples))
		}
		chunks++
		got = append(got, c.Samples...)
	}

	// 10000 samples in 4000-frame chunks
	if chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", chunks)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestDecoder_RejectsUnsupportedFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  func(t *testing.T) []byte
	}{
		{"not a wav", func(t *testing.T) []byte { return []byte("definitely not RIFF data") }},
		{"stereo", func(t *testing.T) []byte { return testutil.WAV(t, make([]int16, 800), 8000, 2, 16) }},
		{"24 bit", func(t *testing.T) []byte { return testutil.WAV(t, make([]int16, 800), 8000, 1, 24) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.raw(t)))
			if !errors.Is(err, analysiserr.ErrAudioFormat) {
				t.Errorf("expected ErrAudioFormat, got %v", err)
			}
		})
	}
}
