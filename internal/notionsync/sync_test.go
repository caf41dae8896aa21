package notionsync

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/resilience"
	"github.com/bishleshok-ai/bishleshok/pkg/notion"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func docs() []model.Document {
	return []model.Document{
		{ID: "a", Record: &model.Receipt{Date: "2025-03-01", MerchantName: "Shwapno", TotalAmount: 450, LineItems: []model.LineItem{{Description: "Rice"}, {Description: "Oil"}}}},
		{ID: "b", Record: &model.Voice{UserName: "Rahim", PhoneNumber: "017", ProductName: "Dal", ProductPrice: 100, AmountPurchased: 3, BuyingDate: "2025-03-02"}},
	}
}

func withRecordID(id string) notionapi.Page {
	return notionapi.Page{ID: notionapi.ObjectID("page-" + id), Properties: notionapi.Properties{
		PropRecordID: &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: id}}},
	}}
}

func isCreateFor(id string) any {
	return mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return notion.PlainText(req.Properties[PropRecordID]) == id
	})
}

func TestSync_SkipsExisting(t *testing.T) {
	mc := new(mockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{withRecordID("a")},
	}, nil).Once()
	mc.On("CreatePage", ctx, isCreateFor("b")).Return(&notionapi.Page{ID: "page-b"}, nil).Once()

	res, err := New(mc, "db").Sync(ctx, docs())
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Skipped: 1}, res)
	mc.AssertExpectations(t)
}

func TestSync_CountsFailures(t *testing.T) {
	mc := new(mockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, isCreateFor("a")).Return(nil, assert.AnError).Once()
	mc.On("CreatePage", ctx, isCreateFor("b")).Return(&notionapi.Page{ID: "page-b"}, nil).Once()

	res, err := New(mc, "db").Sync(ctx, docs())
	require.Error(t, err)
	assert.Equal(t, Result{Created: 1, Failed: 1}, res)
	mc.AssertExpectations(t)
}

func TestSync_RetriesTransientCreate(t *testing.T) {
	mc := new(mockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{withRecordID("b")},
	}, nil).Once()
	mc.On("CreatePage", ctx, isCreateFor("a")).Return(nil, resilience.NewTransientError(assert.AnError, 503)).Once()
	mc.On("CreatePage", ctx, isCreateFor("a")).Return(&notionapi.Page{ID: "page-a"}, nil).Once()

	retry := resilience.DefaultRetryConfig()
	retry.Sleep = func(context.Context, time.Duration) error { return nil }

	res, err := New(mc, "db", WithRetry(retry)).Sync(ctx, docs())
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Skipped: 1}, res)
	mc.AssertExpectations(t)
}

func TestSync_QueryFails(t *testing.T) {
	mc := new(mockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := New(mc, "db").Sync(ctx, docs())
	require.Error(t, err)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestProperties(t *testing.T) {
	d := docs()

	receipt := Properties(d[0])
	assert.Equal(t, "Shwapno", notion.PlainText(receipt[PropName]))
	assert.Equal(t, "Rice; Oil", notion.PlainText(receipt[PropProduct]))
	assert.Equal(t, 450.0, receipt[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "Receipt", receipt[PropSource].(notionapi.SelectProperty).Select.Name)
	assert.Contains(t, receipt, PropDate)
	assert.NotContains(t, receipt, PropPhone)

	voice := Properties(d[1])
	assert.Equal(t, 300.0, voice[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "017", notion.PlainText(voice[PropPhone]))

	empty := Properties(model.Document{ID: "c", Record: &model.Voice{}})
	assert.Equal(t, "(unnamed)", notion.PlainText(empty[PropName]))
	assert.NotContains(t, empty, PropDate)
}
