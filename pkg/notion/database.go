package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// pageSize is the largest page the query endpoint returns.
const pageSize = 100

// QueryAll pages through a database and returns every matching page. query
// may be nil; its filter and sorts are reused on every page.
func QueryAll(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	req := notionapi.DatabaseQueryRequest{PageSize: pageSize}
	if query != nil {
		req.Filter, req.Sorts = query.Filter, query.Sorts
		if query.PageSize > 0 {
			req.PageSize = query.PageSize
		}
	}

	var pages []notionapi.Page
	for {
		page := req
		resp, err := c.QueryDatabase(ctx, dbID, &page)
		if err != nil {
			return nil, eris.Wrapf(err, "notion: query %s after %d pages", dbID, len(pages))
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// CreateInDatabase adds a page with props to the database.
func CreateInDatabase(ctx context.Context, c Client, dbID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: create page in %s", dbID)
	}
	return page, nil
}

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Title: richText(s)}
}

// Text builds a rich text property.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: richText(s)}
}

// Number builds a number property.
func Number(f float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: f}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}

// Date builds a date property from an ISO date. ok is false when s does not
// parse.
func Date(s string) (notionapi.DateProperty, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return notionapi.DateProperty{}, false
	}
	d := notionapi.Date(t)
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}, true
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// PlainText returns the text of a title or rich text property, or "".
func PlainText(p notionapi.Property) string {
	var parts []notionapi.RichText
	switch v := p.(type) {
	case *notionapi.RichTextProperty:
		parts = v.RichText
	case notionapi.RichTextProperty:
		parts = v.RichText
	case *notionapi.TitleProperty:
		parts = v.Title
	case notionapi.TitleProperty:
		parts = v.Title
	default:
		return ""
	}
	var out string
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			out += rt.PlainText
		case rt.Text != nil:
			out += rt.Text.Content
		}
	}
	return out
}
