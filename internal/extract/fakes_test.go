package extract

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

type call struct {
	model string
	req   *gemini.Request
}

// fakeClient answers GenerateContent from a per-model queue.
type fakeClient struct {
	mu        sync.Mutex
	calls     []call
	responses map[string][]*gemini.Response
	errs      map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{responses: map[string][]*gemini.Response{}, errs: map[string]error{}}
}

func (f *fakeClient) Call(context.Context, string, any) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeClient) GenerateContent(_ context.Context, model string, req *gemini.Request) (*gemini.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{model: model, req: req})
	if err := f.errs[model]; err != nil {
		return nil, err
	}
	q := f.responses[model]
	if len(q) == 0 {
		return &gemini.Response{}, nil
	}
	f.responses[model] = q[1:]
	return q[0], nil
}

func (f *fakeClient) textReply(model, text string) {
	f.responses[model] = append(f.responses[model], &gemini.Response{
		Candidates: []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{gemini.TextPart(text)}}}},
	})
}

func (f *fakeClient) audioReply(model, b64 string) {
	f.responses[model] = append(f.responses[model], &gemini.Response{
		Candidates: []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{
			{InlineData: &gemini.InlineData{MIMEType: "audio/L16;rate=24000", Data: b64}},
		}}}},
	})
}

type fakeAppender struct {
	mu   sync.Mutex
	recs []model.Record
	err  error
}

func (a *fakeAppender) Append(_ context.Context, rec model.Record) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.recs = append(a.recs, rec)
	return "doc-1", nil
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	errs []string
}

func (s *recordingSink) Post(text string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	if isError {
		s.errs = append(s.errs, text)
	}
}

func (s *recordingSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}
