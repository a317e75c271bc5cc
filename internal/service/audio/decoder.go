package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"ai-dialog-analysis-service/internal/analysiserr"
)

// DefaultChunkFrames is the number of frames read per chunk.
const DefaultChunkFrames = 4000

const wavFormatPCM = 1

// Chunk is one block of decoded audio together with its raw PCM bytes, which
// is what recognizers consume.
type Chunk struct {
	Samples []int16
	PCM     []byte
}

// Decoder reads a mono 16-bit PCM WAV stream chunk by chunk.
type Decoder struct {
	dec        *wav.Decoder
	sampleRate int
}

// NewDecoder validates the WAV header of r. Anything other than mono 16-bit
// PCM with a positive sample rate is rejected with ErrAudioFormat.
func NewDecoder(r io.ReadSeeker) (*Decoder, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: invalid wav container: %v", analysiserr.ErrAudioFormat, err)
		}
		return nil, fmt.Errorf("%w: invalid wav container", analysiserr.ErrAudioFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: only PCM supported, got format %d", analysiserr.ErrAudioFormat, dec.WavAudioFormat)
	}
	if dec.NumChans != 1 {
		return nil, fmt.Errorf("%w: only mono supported, got %d channels", analysiserr.ErrAudioFormat, dec.NumChans)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: only 16-bit samples supported, got %d", analysiserr.ErrAudioFormat, dec.BitDepth)
	}
	if dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", analysiserr.ErrAudioFormat)
	}
	return &Decoder{dec: dec, sampleRate: int(dec.SampleRate)}, nil
}

// SampleRate returns the stream's sample rate in Hz.
func (d *Decoder) SampleRate() int {
	return d.sampleRate
}

// Next returns up to frames samples. It returns io.EOF once the stream is
// exhausted.
func (d *Decoder) Next(frames int) (Chunk, error) {
	if frames <= 0 {
		frames = DefaultChunkFrames
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: d.sampleRate},
		Data:   make([]int, frames),
	}
	n, err := d.dec.PCMBuffer(buf)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: read pcm: %v", analysiserr.ErrAudioFormat, err)
	}
	if n > len(buf.Data) {
		n = len(buf.Data)
	}
	if n == 0 {
		return Chunk{}, io.EOF
	}

	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(buf.Data[i])
	}
	return Chunk{Samples: samples, PCM: EncodePCM16(samples)}, nil
}
