package audio

import (
	"errors"
	"math"
	"testing"

	"ai-dialog-analysis-service/internal/analysiserr"
)

func TestNewFrameStore_RejectsNonPositiveRate(t *testing.T) {
	for _, rate := range []int{0, -8000} {
		_, err := NewFrameStore(rate)
		if !errors.Is(err, analysiserr.ErrAudioFormat) {
			t.Errorf("rate %d: expected ErrAudioFormat, got %v", rate, err)
		}
	}
}

func TestFrameStore_PreservesOrder(t *testing.T) {
	s, err := NewFrameStore(8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = s.Append([]int16{1, 2, 3})
	_ = s.Append(nil)
	_ = s.Append([]int16{4})
	if err := s.AppendPCM([]byte{5, 0, 0xff, 0xff}); err != nil {
		t.Fatalf("append pcm: %v", err)
	}

	buf := s.Freeze()
	want := []int16{1, 2, 3, 4, 5, -1}
	if buf.Len() != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), buf.Len())
	}
	for i := range want {
		if buf.Samples[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], buf.Samples[i])
		}
	}
	if buf.SampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", buf.SampleRate)
	}
}

func TestFrameStore_AppendCopiesChunk(t *testing.T) {
	s, _ := NewFrameStore(8000)
	chunk := []int16{7, 7}
	_ = s.Append(chunk)
	chunk[0] = 9

	if got := s.Freeze().Samples[0]; got != 7 {
		t.Errorf("expected store to keep its own copy, got %d", got)
	}
}

func TestFrameStore_FreezeIsFinal(t *testing.T) {
	s, _ := NewFrameStore(8000)
	_ = s.Append([]int16{1})
	first := s.Freeze()

	if err := s.Append([]int16{2}); !errors.Is(err, ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}
	second := s.Freeze()
	if second.Len() != first.Len() {
		t.Errorf("expected freeze to be idempotent, got %d then %d samples", first.Len(), second.Len())
	}
}

func TestFrameStore_AppendPCM_Misaligned(t *testing.T) {
	s, _ := NewFrameStore(8000)
	if err := s.AppendPCM([]byte{1, 2, 3}); !errors.Is(err, analysiserr.ErrAudioFormat) {
		t.Errorf("expected ErrAudioFormat, got %v", err)
	}
}

func TestSampleBuffer_Slice(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = int16(i)
	}
	buf := SampleBuffer{Samples: samples, SampleRate: 10}

	tests := []struct {
		name       string
		start, end float64
		wantLen    int
		wantFirst  int16
	}{
		{"whole seconds", 1.0, 2.0, 10, 10},
		{"floors both bounds", 1.05, 2.19, 11, 10},
		{"zero width", 3.0, 3.0, 0, 0},
		{"inverted", 4.0, 3.0, 0, 0},
		{"upper clamped", 9.5, 20.0, 5, 95},
		{"start past end", 10.0, 11.0, 0, 0},
		{"negative start", -1.0, 1.0, 0, 0},
		{"nan", math.NaN(), 1.0, 0, 0},
		{"inf", 0, math.Inf(1), 0, 0},
		{"sub-sample span", 2.01, 2.05, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buf.Slice(tt.start, tt.end)
			if len(got) != tt.wantLen {
				t.Fatalf("Slice(%v, %v) len = %d, want %d", tt.start, tt.end, len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0] != tt.wantFirst {
				t.Errorf("Slice(%v, %v)[0] = %d, want %d", tt.start, tt.end, got[0], tt.wantFirst)
			}
		})
	}
}

func TestSampleBuffer_SliceHasNoSpareCapacity(t *testing.T) {
	buf := SampleBuffer{Samples: []int16{1, 2, 3, 4}, SampleRate: 1}
	s := buf.Slice(0, 2)
	_ = append(s, 42)
	if buf.Samples[2] != 3 {
		t.Errorf("append through slice mutated buffer: %v", buf.Samples)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out := DecodePCM16(EncodePCM16(in))
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}
