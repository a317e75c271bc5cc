package dialog

import (
	"fmt"
	"math"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/service/audio"
	"ai-dialog-analysis-service/internal/service/spectral"
	"ai-dialog-analysis-service/internal/service/stt"
)

// DefaultThresholdHz separates both the gender and the raised voice labels.
const DefaultThresholdHz = 300

// Config holds classification thresholds and estimator options.
type Config struct {
	// RaisedVoiceHz: dominant frequencies strictly above are a raised voice.
	RaisedVoiceHz float64
	// GenderHz: dominant frequencies strictly below are female.
	GenderHz float64
	Welch    spectral.Options
}

// DefaultConfig returns the 300 Hz thresholds and default Welch options.
func DefaultConfig() Config {
	return Config{
		RaisedVoiceHz: DefaultThresholdHz,
		GenderHz:      DefaultThresholdHz,
	}
}

// Analyzer characterises recognizer results against a frozen sample buffer.
// It holds no per-request state.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze runs one pass over results in order. Results without words are
// skipped. The first error aborts the pass and no utterances are returned.
func (a *Analyzer) Analyze(buf audio.SampleBuffer, results []stt.RecognitionResult) ([]Utterance, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", analysiserr.ErrAudioFormat, buf.SampleRate)
	}

	var out []Utterance
	for i, res := range results {
		u, ok, err := a.AnalyzeResult(buf, i, res)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// AnalyzeResult analyses the result at position index. ok is false when the
// result carries no words.
func (a *Analyzer) AnalyzeResult(buf audio.SampleBuffer, index int, res stt.RecognitionResult) (u Utterance, ok bool, err error) {
	if !res.HasWords() {
		return Utterance{}, false, nil
	}

	u = Utterance{Index: index, Text: res.Text, Words: res.Words}
	for _, w := range res.Words {
		if !finite(w.Start) || !finite(w.End) {
			return Utterance{}, false, fmt.Errorf("%w: result %d word %q has non-finite timing", analysiserr.ErrTimingData, index, w.Word)
		}
		u.Duration += w.Start - w.End
		u.SpanStart, u.SpanEnd = w.Start, w.End
	}

	span := buf.Slice(u.SpanStart, u.SpanEnd)
	peak, err := spectral.DominantFrequency(span, buf.SampleRate, a.cfg.Welch)
	if err != nil {
		return Utterance{}, false, fmt.Errorf("result %d: %w", index, err)
	}
	u.DominantFrequency = peak.Frequency
	u.Power = peak.Power
	u.RaisedVoice, u.Gender = a.Classify(peak.Frequency)
	return u, true, nil
}

// Classify labels a dominant frequency. With equal thresholds a frequency
// exactly at the threshold is male and not raised.
func (a *Analyzer) Classify(freq float64) (raisedVoice bool, gender string) {
	raisedVoice = freq > a.cfg.RaisedVoiceHz
	if freq < a.cfg.GenderHz {
		return raisedVoice, GenderFemale
	}
	return raisedVoice, GenderMale
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
