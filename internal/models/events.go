// Package models defines the events published by the analysis pipeline.
package models

import "ai-dialog-analysis-service/internal/service/dialog"

// Event types.
const (
	EventTranscriptPartial = "interaction.transcript.partial"
	EventDialogCompleted   = "interaction.dialog.completed"
)

// TranscriptPartial is an interim recognizer hypothesis seen while collecting.
type TranscriptPartial struct {
	EventType  string `json:"eventType" validate:"required,eq=interaction.transcript.partial"`
	AnalysisID string `json:"analysisId" validate:"required,uuid"`
	Principal  string `json:"principal,omitempty"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
	Sequence   int    `json:"sequence" validate:"gte=1"`
	Text       string `json:"text"`
}

// DialogCompleted carries the assembled dialog of a finished analysis.
type DialogCompleted struct {
	EventType       string                `json:"eventType" validate:"required,eq=interaction.dialog.completed"`
	AnalysisID      string                `json:"analysisId" validate:"required,uuid"`
	Principal       string                `json:"principal,omitempty"`
	Timestamp       int64                 `json:"timestamp" validate:"gt=0"`
	Source          string                `json:"source" validate:"required,oneof=file url"`
	STTProvider     string                `json:"sttProvider" validate:"required"`
	SampleRate      int                   `json:"sampleRate" validate:"gt=0"`
	AudioSeconds    float64               `json:"audioSeconds" validate:"gte=0"`
	ResultCount     int                   `json:"resultCount" validate:"gte=0"`
	Turns           []dialog.Turn         `json:"turns" validate:"dive"`
	ResultDuration  dialog.DurationTotals `json:"resultDuration"`
	ProcessingMilli int64                 `json:"processingMs"`
}
