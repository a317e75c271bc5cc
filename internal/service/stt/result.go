package stt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"ai-dialog-analysis-service/internal/analysiserr"
)

// WordHypothesis is one recognized word with its time span in seconds from the
// start of the audio.
type WordHypothesis struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf,omitempty"`
}

// UnmarshalJSON requires start and end to be present JSON numbers.
func (w *WordHypothesis) UnmarshalJSON(data []byte) error {
	var raw struct {
		Word  string          `json:"word"`
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
		Conf  json.RawMessage `json:"conf"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: word: %v", analysiserr.ErrTimingData, err)
	}

	start, err := parseSeconds(raw.Word, "start", raw.Start)
	if err != nil {
		return err
	}
	end, err := parseSeconds(raw.Word, "end", raw.End)
	if err != nil {
		return err
	}

	var conf float64
	if len(raw.Conf) > 0 && !bytes.Equal(raw.Conf, []byte("null")) {
		if err := json.Unmarshal(raw.Conf, &conf); err != nil {
			return fmt.Errorf("%w: word %q conf: %v", analysiserr.ErrTimingData, raw.Word, err)
		}
	}

	*w = WordHypothesis{Word: raw.Word, Start: start, End: end, Conf: conf}
	return nil
}

func parseSeconds(word, field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: word %q has no %s", analysiserr.ErrTimingData, word, field)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: word %q %s is not a number: %s", analysiserr.ErrTimingData, word, field, raw)
	}
	return v, nil
}

// RecognitionResult is one recognizer output. Words is empty for results that
// only carry text, such as silence between utterances. A missing, null or
// empty "result" list all decode to no words.
type RecognitionResult struct {
	Text  string           `json:"text"`
	Words []WordHypothesis `json:"result,omitempty"`

	// Final marks the result delivered when the session was closed.
	Final bool `json:"-"`
}

// HasWords reports whether the result carries word-level data.
func (r RecognitionResult) HasWords() bool {
	return len(r.Words) > 0
}

// ParseResult decodes a recognizer result in the {"text", "result": [...]}
// layout. Any decoding problem is reported as ErrTimingData.
func ParseResult(data []byte) (RecognitionResult, error) {
	var res RecognitionResult
	if err := json.Unmarshal(data, &res); err != nil {
		if errors.Is(err, analysiserr.ErrTimingData) {
			return RecognitionResult{}, err
		}
		return RecognitionResult{}, fmt.Errorf("%w: %v", analysiserr.ErrTimingData, err)
	}
	return res, nil
}
