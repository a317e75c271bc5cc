package dialog

import (
	"encoding/json"
	"fmt"
)

// Assembler folds analysed utterances into an ordered dialog. It is used by a
// single request and is not safe for concurrent use.
type Assembler struct {
	turns  []Turn
	totals DurationTotals
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Add attributes u to the next role in the alternation, starting with the
// receiver, and returns the appended turn.
func (a *Assembler) Add(u Utterance) Turn {
	source := SourceReceiver
	if len(a.turns)%2 == 1 {
		source = SourceTransmitter
	}

	turn := Turn{
		Source:      source,
		Text:        u.Text,
		Duration:    u.Duration,
		RaisedVoice: u.RaisedVoice,
		Gender:      u.Gender,
	}
	a.turns = append(a.turns, turn)

	if source == SourceReceiver {
		a.totals.Receiver += u.Duration
	} else {
		a.totals.Transmitter += u.Duration
	}
	return turn
}

// Turns returns a copy of the turns assembled so far.
func (a *Assembler) Turns() []Turn {
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Totals returns the per-role duration totals.
func (a *Assembler) Totals() DurationTotals {
	return a.totals
}

// Result encodes each turn on its own and returns the response shape.
func (a *Assembler) Result() (*Result, error) {
	res := &Result{
		Dialog:         make([]string, 0, len(a.turns)),
		ResultDuration: a.totals,
	}
	for i, t := range a.turns {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode turn %d: %w", i, err)
		}
		res.Dialog = append(res.Dialog, string(b))
	}
	return res, nil
}

// Assemble is NewAssembler, Add for each utterance, then Result.
func Assemble(utterances []Utterance) (*Result, error) {
	a := NewAssembler()
	for _, u := range utterances {
		a.Add(u)
	}
	return a.Result()
}

// Turns decodes the dialog entries of r.
func (r *Result) Turns() ([]Turn, error) {
	out := make([]Turn, 0, len(r.Dialog))
	for i, s := range r.Dialog {
		var t Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
