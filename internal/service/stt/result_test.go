package stt

import (
	"errors"
	"testing"

	"ai-dialog-analysis-service/internal/analysiserr"
)

func TestParseResult_WithWords(t *testing.T) {
	res, err := ParseResult([]byte(`{
		"result": [
			{"conf": 1.0, "end": 0.51, "start": 0.12, "word": "hello"},
			{"conf": 0.87, "end": 1.02, "start": 0.51, "word": "there"}
		],
		"text": "hello there"
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("expected text 'hello there', got %q", res.Text)
	}
	if !res.HasWords() || len(res.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(res.Words))
	}
	w := res.Words[1]
	if w.Word != "there" || w.Start != 0.51 || w.End != 1.02 || w.Conf != 0.87 {
		t.Errorf("unexpected second word: %+v", w)
	}
}

func TestParseResult_TextOnly(t *testing.T) {
	for _, raw := range []string{
		`{"text": ""}`,
		`{"text": "", "result": []}`,
		`{"text": "", "result": null}`,
		`{"text": "uh", "result": null}`,
	} {
		res, err := ParseResult([]byte(raw))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", raw, err)
		}
		if res.HasWords() {
			t.Errorf("%s: expected no words", raw)
		}
	}
}

func TestParseResult_MalformedTiming(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing start", `{"text": "a", "result": [{"word": "a", "end": 1.0}]}`},
		{"missing end", `{"text": "a", "result": [{"word": "a", "start": 1.0}]}`},
		{"null start", `{"text": "a", "result": [{"word": "a", "start": null, "end": 1.0}]}`},
		{"string end", `{"text": "a", "result": [{"word": "a", "start": 0, "end": "1.0"}]}`},
		{"word not an object", `{"text": "a", "result": ["a"]}`},
		{"result not a list", `{"text": "a", "result": 3}`},
		{"invalid json", `{"text": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResult([]byte(tt.raw))
			if !errors.Is(err, analysiserr.ErrTimingData) {
				t.Errorf("expected ErrTimingData, got %v", err)
			}
		})
	}
}
