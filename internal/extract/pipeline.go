// Package extract turns receipt images, PDFs and voice memos into
// persisted transaction records through the generative content API.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"strings"
	"time"

	"github.com/bishleshok-ai/bishleshok/internal/busy"
	"github.com/bishleshok-ai/bishleshok/internal/collection"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// Status messages shared by both pipelines.
const (
	MsgBadFileType   = "Error: Please upload an image (JPG, PNG) or PDF."
	MsgSaveFailed    = "Error: Could not save data to database."
	MsgDBNotReady    = "Error: Database not ready. Cannot save data."
	MsgReady         = "Ready for input."
	defaultAudioMIME = "audio/webm;codecs=opus"
)

// Appender persists a record. collection.Store implements it.
type Appender interface {
	Append(ctx context.Context, rec model.Record) (string, error)
}

// Input is one media blob.
type Input struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Result is a persisted record.
type Result struct {
	ID     string
	Record model.Record
}

// Deps wires a pipeline to its collaborators. Zero-valued model names fall
// back to the gemini defaults.
type Deps struct {
	Client       gemini.Client
	Store        Appender
	Sink         status.Sink
	Busy         *busy.Indicator
	ContentModel string
	Now          func() time.Time
}

func (d *Deps) defaults() {
	if d.Sink == nil {
		d.Sink = status.Discard
	}
	if d.Busy == nil {
		d.Busy = busy.New(d.Sink)
	}
	if d.ContentModel == "" {
		d.ContentModel = gemini.DefaultContentModel
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// IsReceiptType reports whether mimeType is an image or a PDF.
func IsReceiptType(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/pdf"
}

// structuredRequest builds a schema-constrained, deterministic request
// carrying one instruction and one blob.
func structuredRequest(prompt string, in Input, schema *gemini.Schema) *gemini.Request {
	return &gemini.Request{
		Contents: []gemini.Content{{
			Parts: []gemini.Part{
				gemini.TextPart(prompt),
				gemini.BlobPart(in.MIMEType, in.Data),
			},
		}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
			Temperature:      gemini.Float(0),
		},
	}
}

// decodeFirstText unmarshals the first candidate's text into v.
func decodeFirstText(resp *gemini.Response, emptyReason string, v any) error {
	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return &ExtractionError{Reason: emptyReason}
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &ExtractionError{Reason: "response was not valid JSON", Err: err}
	}
	return nil
}

// saveMessage picks the status line for a failed Append.
func saveMessage(err error) string {
	if errors.Is(err, collection.ErrNotReady) {
		return MsgDBNotReady
	}
	return MsgSaveFailed
}
