// Package testutil provides audio fixtures shared by package tests.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Tone returns seconds of a sine wave at freq Hz.
func Tone(freq float64, sampleRate int, seconds float64, amplitude float64) []int16 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// Concat joins sample slices in order.
func Concat(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// WAV encodes samples (interleaved when channels > 1) into a PCM WAV file and
// returns its bytes.
func WAV(t *testing.T, samples []int16, sampleRate, channels, bitDepth int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close fixture encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}
