package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// ReceiptPipeline extracts a receipt record from an image or PDF.
type ReceiptPipeline struct {
	deps Deps
}

// NewReceiptPipeline creates a ReceiptPipeline.
func NewReceiptPipeline(deps Deps) *ReceiptPipeline {
	deps.defaults()
	return &ReceiptPipeline{deps: deps}
}

// Process validates, extracts and persists one receipt. Every failure is
// also posted to the status sink.
func (p *ReceiptPipeline) Process(ctx context.Context, in Input) (*Result, error) {
	d := p.deps
	if !IsReceiptType(in.MIMEType) {
		status.Error(d.Sink, MsgBadFileType)
		return nil, &ValidationError{MIMEType: in.MIMEType}
	}

	lease := d.Busy.Acquire("Processing " + in.Name)
	defer lease.Release()

	log := zap.L().With(zap.String("file", in.Name), zap.String("mime", in.MIMEType))

	resp, err := d.Client.GenerateContent(ctx, d.ContentModel, structuredRequest(ReceiptPrompt, in, ReceiptSchema))
	if err != nil {
		log.Error("extract: receipt request failed", zap.Error(err))
		status.Error(d.Sink, "Extraction Failed: "+err.Error())
		return nil, err
	}

	var rec model.Receipt
	if err := decodeFirstText(resp, "API returned no content or malformed response.", &rec); err != nil {
		log.Error("extract: receipt response unusable", zap.Error(err))
		status.Error(d.Sink, "Extraction Failed: "+err.Error())
		return nil, err
	}
	rec.File = in.Name
	rec.Normalize()

	id, err := d.Store.Append(ctx, &rec)
	if err != nil {
		status.Error(d.Sink, saveMessage(err))
		return nil, err
	}

	log.Info("extract: receipt saved", zap.String("id", id), zap.String("merchant", rec.MerchantName))
	status.Info(d.Sink, fmt.Sprintf("Successfully extracted and saved data from %s. Data will appear in the table shortly...", in.Name))
	return &Result{ID: id, Record: &rec}, nil
}
