// Package notionsync mirrors stored records into a Notion database.
package notionsync

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/resilience"
	"github.com/bishleshok-ai/bishleshok/pkg/notion"
)

// Property names in the target database.
const (
	PropName     = "Name"
	PropRecordID = "Record ID"
	PropSource   = "Source"
	PropDate     = "Date"
	PropAmount   = "Amount"
	PropProduct  = "Product"
	PropPhone    = "Phone"
)

// Result counts one sync run.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Syncer pushes records that are not yet in the database.
type Syncer struct {
	client notion.Client
	dbID   string
	retry  resilience.RetryConfig
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithRetry overrides the retry schedule for page creation.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Syncer) { s.retry = cfg }
}

// New creates a Syncer.
func New(client notion.Client, dbID string, opts ...Option) *Syncer {
	s := &Syncer{client: client, dbID: dbID, retry: resilience.DefaultRetryConfig()}
	for _, o := range opts {
		o(s)
	}
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger("notion", "create_page")
	}
	return s
}

// Sync creates a page for every document whose ID is not already present
// under PropRecordID. Individual create failures are counted and the run
// continues.
func (s *Syncer) Sync(ctx context.Context, docs []model.Document) (Result, error) {
	var res Result

	pages, err := notion.QueryAll(ctx, s.client, s.dbID, nil)
	if err != nil {
		return res, eris.Wrap(err, "notionsync: list existing pages")
	}
	existing := make(map[string]bool, len(pages))
	for _, p := range pages {
		if id := notion.PlainText(p.Properties[PropRecordID]); id != "" {
			existing[id] = true
		}
	}

	for _, doc := range docs {
		if existing[doc.ID] {
			res.Skipped++
			continue
		}
		props := Properties(doc)
		err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			_, err := notion.CreateInDatabase(ctx, s.client, s.dbID, props)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "notionsync: cancelled")
			}
			zap.L().Warn("notionsync: create page failed", zap.String("id", doc.ID), zap.Error(err))
			res.Failed++
			continue
		}
		existing[doc.ID] = true
		res.Created++
	}

	zap.L().Info("notionsync: done",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return res, eris.Errorf("notionsync: %d of %d pages failed", res.Failed, res.Failed+res.Created)
	}
	return res, nil
}

// Properties maps a document to page properties.
func Properties(doc model.Document) notionapi.Properties {
	props := notionapi.Properties{
		PropRecordID: notion.Text(doc.ID),
		PropSource:   notion.Select(string(doc.Record.Source())),
	}

	var name, product string
	var amount float64
	switch r := doc.Record.(type) {
	case *model.Receipt:
		name = r.MerchantName
		amount = r.TotalAmount
		names := make([]string, 0, len(r.LineItems))
		for _, li := range r.LineItems {
			names = append(names, li.Description)
		}
		product = strings.Join(names, "; ")
	case *model.Voice:
		name = r.UserName
		product = r.ProductName
		amount = r.ProductPrice * float64(r.AmountPurchased)
		if r.PhoneNumber != "" {
			props[PropPhone] = notion.Text(r.PhoneNumber)
		}
	}
	if name == "" {
		name = "(unnamed)"
	}
	props[PropName] = notion.Title(name)
	props[PropAmount] = notion.Number(amount)
	if product != "" {
		props[PropProduct] = notion.Text(product)
	}
	if d, ok := notion.Date(doc.Record.EventDate()); ok {
		props[PropDate] = d
	}
	return props
}
