package mock

import (
	"context"
	"sync"
	"testing"

	"ai-dialog-analysis-service/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu       sync.Mutex
	partials []string
	results  []stt.RecognitionResult
	errors   []error
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnResult(res stt.RecognitionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func pcm(samples int) []byte {
	return make([]byte, samples*2)
}

func TestModel_NewAdapter(t *testing.T) {
	m := NewModel()
	if m.Name() != "mock" {
		t.Errorf("expected name 'mock', got %s", m.Name())
	}
	if _, err := m.NewAdapter(0); err == nil {
		t.Error("expected error for zero sample rate")
	}
	a, err := m.NewAdapter(8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
}

func TestAdapter_Script(t *testing.T) {
	m := &Model{
		Script: []stt.RecognitionResult{
			{Text: "hello", Words: []stt.WordHypothesis{{Word: "hello", Start: 0, End: 1}}},
			{Text: ""},
			{Text: "hi", Words: []stt.WordHypothesis{{Word: "hi", Start: 1, End: 1.5}}},
		},
		Partials: []string{"hel"},
	}
	a, _ := m.NewAdapter(8000)
	cb := &testCallback{}
	ctx := context.Background()

	if err := a.Start(ctx, cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Only one accepted result per chunk, the final is held back for Close.
	for i := 0; i < 4; i++ {
		_ = a.SendAudio(ctx, pcm(4000))
	}
	if len(cb.results) != 2 {
		t.Fatalf("expected 2 results before close, got %d", len(cb.results))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(cb.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(cb.results))
	}
	if cb.results[2].Text != "hi" || !cb.results[2].Final {
		t.Errorf("expected final 'hi', got %+v", cb.results[2])
	}
	if cb.results[0].Final || cb.results[1].Final {
		t.Error("expected only the last result to be final")
	}
	if len(cb.partials) != 1 || cb.partials[0] != "hel" {
		t.Errorf("expected one partial 'hel', got %v", cb.partials)
	}
}

func TestAdapter_ScriptFlushedOnEarlyClose(t *testing.T) {
	m := &Model{Script: []stt.RecognitionResult{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	a, _ := m.NewAdapter(8000)
	cb := &testCallback{}
	_ = a.Start(context.Background(), cb)
	_ = a.Close()

	if len(cb.results) != 3 {
		t.Fatalf("expected all 3 results flushed, got %d", len(cb.results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if cb.results[i].Text != want {
			t.Errorf("result %d: expected %q, got %q", i, want, cb.results[i].Text)
		}
	}
}

func TestAdapter_SynthesizedUtterancesCoverAudio(t *testing.T) {
	m := &Model{ChunksPerResult: 2, Utterances: []string{"one two", "three four five"}}
	a, _ := m.NewAdapter(8000)
	cb := &testCallback{}
	ctx := context.Background()
	_ = a.Start(ctx, cb)

	// 4 chunks of 0.5s: two utterances, nothing left for the final.
	for i := 0; i < 4; i++ {
		_ = a.SendAudio(ctx, pcm(4000))
	}
	_ = a.Close()

	if len(cb.results) != 3 {
		t.Fatalf("expected 2 utterances and a final, got %d", len(cb.results))
	}

	first := cb.results[0]
	if first.Text != "one two" || len(first.Words) != 2 {
		t.Fatalf("unexpected first utterance: %+v", first)
	}
	if first.Words[0].Start != 0 || first.Words[1].End != 1.0 {
		t.Errorf("expected first utterance to span 0-1s, got %+v", first.Words)
	}

	second := cb.results[1]
	if second.Words[0].Start != 1.0 || second.Words[2].End != 2.0 {
		t.Errorf("expected second utterance to span 1-2s, got %+v", second.Words)
	}

	final := cb.results[2]
	if !final.Final || final.HasWords() {
		t.Errorf("expected empty final result, got %+v", final)
	}
	if len(cb.partials) == 0 {
		t.Error("expected interim partials")
	}
}

func TestAdapter_FinalCarriesTrailingAudio(t *testing.T) {
	m := &Model{ChunksPerResult: 3}
	a, _ := m.NewAdapter(8000)
	cb := &testCallback{}
	ctx := context.Background()
	_ = a.Start(ctx, cb)

	_ = a.SendAudio(ctx, pcm(4000))
	_ = a.Close()

	if len(cb.results) != 1 {
		t.Fatalf("expected only the final result, got %d", len(cb.results))
	}
	if !cb.results[0].Final || !cb.results[0].HasWords() {
		t.Errorf("expected final with words, got %+v", cb.results[0])
	}
}

func TestAdapter_CloseIdempotent(t *testing.T) {
	a, _ := NewModel().NewAdapter(8000)
	cb := &testCallback{}
	_ = a.Start(context.Background(), cb)

	_ = a.Close()
	_ = a.Close()

	if len(cb.results) != 1 {
		t.Errorf("expected exactly one final result, got %d", len(cb.results))
	}
	if err := a.SendAudio(context.Background(), pcm(10)); err != nil {
		t.Errorf("expected send after close to be a no-op, got %v", err)
	}
}
