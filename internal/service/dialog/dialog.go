// Package dialog turns recognizer results into an annotated two-party dialog.
//
// The Analyzer makes one ordered pass over the collected results, skipping
// those without word data and characterising the rest by the dominant
// frequency of their last word's audio. The Assembler attributes analysed
// utterances to alternating roles and accumulates per-role durations.
package dialog

import "ai-dialog-analysis-service/internal/service/stt"

// Speaker roles, assigned by alternation over analysed utterances.
const (
	SourceReceiver    = "receiver"
	SourceTransmitter = "transmitter"
)

// Gender labels derived from the dominant frequency.
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// Utterance is the analysis of one recognizer result that carried words.
type Utterance struct {
	// Index is the position of the result in the collected sequence.
	Index int
	Text  string
	Words []stt.WordHypothesis

	// Duration is the running sum of (start - end) over the words.
	Duration float64

	// SpanStart and SpanEnd bound the audio used for spectral analysis: the
	// span of the last word.
	SpanStart float64
	SpanEnd   float64

	DominantFrequency float64
	Power             float64
	RaisedVoice       bool
	Gender            string
}

// Turn is one entry of the assembled dialog.
type Turn struct {
	Source      string  `json:"source" validate:"required,oneof=receiver transmitter"`
	Text        string  `json:"text"`
	Duration    float64 `json:"duration"`
	RaisedVoice bool    `json:"raised_voice"`
	Gender      string  `json:"gender" validate:"required,oneof=female male"`
}

// DurationTotals sums turn durations per role.
type DurationTotals struct {
	Receiver    float64 `json:"receiver"`
	Transmitter float64 `json:"transmitter"`
}

// Result is the response shape. Every Dialog entry is a separately encoded
// JSON object.
type Result struct {
	Dialog         []string       `json:"dialog"`
	ResultDuration DurationTotals `json:"result_duration"`
}
