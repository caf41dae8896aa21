// Package model holds the transaction record variants and the date filter.
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// Source discriminates the record variants.
type Source string

// Record sources.
const (
	SourceReceipt Source = "Receipt"
	SourceVoice   Source = "Voice"
)

// VoiceFileName is the file name stamped on voice-derived records.
const VoiceFileName = "Voice Input"

// Record is either *Receipt or *Voice. Consumers type-switch on it.
type Record interface {
	Source() Source
	FileName() string
	// EventDate is the date the record is filed under: the receipt date or
	// the voice buying date.
	EventDate() string
	isRecord()
}

// LineItem is one line of a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// Receipt is a record extracted from a receipt image or PDF.
type Receipt struct {
	Date         string     `json:"date"`
	MerchantName string     `json:"merchant_name"`
	TotalAmount  float64    `json:"total_amount"`
	Currency     string     `json:"currency"`
	LineItems    []LineItem `json:"line_items,omitempty"`
	File         string     `json:"-"`
}

// Voice is a record extracted from a spoken memo.
type Voice struct {
	UserName           string  `json:"user_name"`
	PhoneNumber        string  `json:"phone_number"`
	ProductName        string  `json:"product_name"`
	ProductPrice       float64 `json:"product_price"`
	AmountPurchased    Count   `json:"amount_purchased"`
	BuyingDate         string  `json:"buying_date"`
	SellingDate        string  `json:"selling_date"`
	DateDifferenceDays Count   `json:"date_difference_days"`
	File               string  `json:"-"`
}

func (*Receipt) Source() Source      { return SourceReceipt }
func (r *Receipt) FileName() string  { return r.File }
func (r *Receipt) EventDate() string { return r.Date }
func (*Receipt) isRecord()           {}

func (*Voice) Source() Source      { return SourceVoice }
func (v *Voice) FileName() string  { return v.File }
func (v *Voice) EventDate() string { return v.BuyingDate }
func (*Voice) isRecord()           {}

type receiptAlias Receipt

type receiptJSON struct {
	receiptAlias
	Source   Source `json:"Source"`
	FileName string `json:"File Name"`
}

// MarshalJSON adds the Source and File Name keys.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	return json.Marshal(receiptJSON{receiptAlias: receiptAlias(*r), Source: SourceReceipt, FileName: r.File})
}

// UnmarshalJSON reads the File Name key into File.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var aux receiptJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Receipt(aux.receiptAlias)
	r.File = aux.FileName
	return nil
}

type voiceAlias Voice

type voiceJSON struct {
	voiceAlias
	Source   Source `json:"Source"`
	FileName string `json:"File Name"`
}

// MarshalJSON adds the Source and File Name keys.
func (v *Voice) MarshalJSON() ([]byte, error) {
	return json.Marshal(voiceJSON{voiceAlias: voiceAlias(*v), Source: SourceVoice, FileName: v.File})
}

// UnmarshalJSON reads the File Name key into File.
func (v *Voice) UnmarshalJSON(data []byte) error {
	var aux voiceJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*v = Voice(aux.voiceAlias)
	v.File = aux.FileName
	return nil
}

// DecodeRecord decodes a stored record, choosing the variant from its
// Source key.
func DecodeRecord(data []byte) (Record, error) {
	var head struct {
		Source Source `json:"Source"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "model: decode record")
	}

	switch head.Source {
	case SourceReceipt:
		var r Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "model: decode receipt")
		}
		return &r, nil
	case SourceVoice:
		var v Voice
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, eris.Wrap(err, "model: decode voice record")
		}
		return &v, nil
	default:
		return nil, eris.Errorf("model: unknown record source %q", head.Source)
	}
}

// DecodeMap decodes a record from a generic document map, as returned by
// document stores.
func DecodeMap(m map[string]any) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal document map")
	}
	return DecodeRecord(data)
}

// ToMap converts a record to a generic map for document stores.
func ToMap(r Record) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal record")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "model: unmarshal record map")
	}
	return m, nil
}

// Count is a non-negative integer that also accepts JSON floats and
// numeric strings, rounding to the nearest integer.
type Count int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if s == "" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "model: invalid count %s", string(data))
	}
	*c = Count(math.Round(f))
	return nil
}

// Document is a persisted record with its storage identifier.
type Document struct {
	ID     string
	Record Record
}

// MarshalJSON renders the record with an "id" key.
func (d Document) MarshalJSON() ([]byte, error) {
	m, err := ToMap(d.Record)
	if err != nil {
		return nil, err
	}
	m["id"] = d.ID
	return json.Marshal(m)
}

// Records returns the records of docs in order.
func Records(docs []Document) []Record {
	out := make([]Record, len(docs))
	for i, d := range docs {
		out[i] = d.Record
	}
	return out
}
