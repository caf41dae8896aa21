package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers with the given statuses in order, then 200.
func scriptedServer(t *testing.T, statuses []int, okBody string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		w.Header().Set("Content-Type", "application/json")
		if n < len(statuses) {
			w.WriteHeader(statuses[n])
			_, _ = w.Write([]byte(`{"error":{"code":1,"message":"boom"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestClient(srv *httptest.Server, rec *sleepRecorder, opts ...Option) Client {
	opts = append([]Option{WithBaseURL(srv.URL), WithSleep(rec.sleep)}, opts...)
	return NewClient("test-key", opts...)
}

func TestCall_SuccessAfterRetryableFailures(t *testing.T) {
	t.Parallel()
	for _, seq := range [][]int{{}, {429}, {500, 503}, {503, 429, 500, 500}} {
		srv, calls := scriptedServer(t, seq, `{"ok":true}`)
		rec := &sleepRecorder{}
		c := newTestClient(srv, rec)

		raw, err := c.Call(context.Background(), srv.URL+"/x", map[string]string{"a": "b"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(raw))
		assert.Len(t, rec.delays, len(seq))
		assert.Equal(t, int32(len(seq)+1), calls.Load())
	}
}

func TestCall_ExhaustsRetryableAttempts(t *testing.T) {
	t.Parallel()
	srv, calls := scriptedServer(t, []int{503, 503, 429, 500, 503}, `{}`)
	rec := &sleepRecorder{}
	c := newTestClient(srv, rec)

	_, err := c.Call(context.Background(), srv.URL+"/x", struct{}{})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 503, reqErr.Status)
	assert.Equal(t, "boom", reqErr.Message)
	assert.Equal(t, int32(MaxRetries), calls.Load())
	assert.Len(t, rec.delays, MaxRetries-1)
}

func TestCall_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()
	srv, calls := scriptedServer(t, []int{400}, `{}`)
	rec := &sleepRecorder{}
	c := newTestClient(srv, rec)

	_, err := c.Call(context.Background(), srv.URL+"/x", struct{}{})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 400, reqErr.Status)
	assert.Equal(t, "API Error: 400 - boom", reqErr.Error())
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.delays)
}

func TestCall_UnparsableErrorBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>nope</html>"))
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})
	_, err := c.Call(context.Background(), srv.URL, struct{}{})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Unknown error", reqErr.Message)
}

func TestCall_DelaySchedule(t *testing.T) {
	t.Parallel()
	srv, _ := scriptedServer(t, []int{500, 500, 500, 500}, `{}`)
	rec := &sleepRecorder{}
	c := newTestClient(srv, rec)

	_, err := c.Call(context.Background(), srv.URL, struct{}{})
	require.NoError(t, err)
	require.Len(t, rec.delays, 4)
	for i, d := range rec.delays {
		base := time.Duration(1<<uint(i)) * time.Second
		assert.GreaterOrEqual(t, d, base, "attempt %d", i)
		assert.Less(t, d, base+time.Second, "attempt %d", i)
	}
}

func TestCall_RetryNotifier(t *testing.T) {
	t.Parallel()
	srv, _ := scriptedServer(t, []int{429}, `{}`)
	var notices []RetryNotice
	c := newTestClient(srv, &sleepRecorder{}, WithRetryNotifier(func(n RetryNotice) {
		notices = append(notices, n)
	}))

	_, err := c.Call(context.Background(), srv.URL, struct{}{})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, 1, notices[0].Attempt)
	assert.Equal(t, 429, notices[0].Status)
	assert.Regexp(t, `^Server error \(429\)\. Retrying in [12]s\.\.\.$`, notices[0].Message())
}

func TestCall_NetworkFailurePropagatesFault(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	var notices []RetryNotice
	c := NewClient("k", WithBaseURL(addr), WithSleep(rec.sleep), WithRetryNotifier(func(n RetryNotice) {
		notices = append(notices, n)
	}))

	_, err := c.Call(context.Background(), addr, struct{}{})
	require.Error(t, err)
	var reqErr *RequestError
	assert.NotErrorAs(t, err, &reqErr)
	assert.Len(t, rec.delays, MaxRetries-1)
	require.NotEmpty(t, notices)
	assert.Zero(t, notices[0].Status)
}

func TestGenerateContent_RequestShape(t *testing.T) {
	t.Parallel()
	var got map[string]any
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"parts":[{"text":"{\"a\":1}"}]}}],
			"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":4}
		}`))
	}))
	defer srv.Close()

	var usedModel string
	var usage UsageMetadata
	c := NewClient("secret", WithBaseURL(srv.URL), WithUsageHook(func(m string, u UsageMetadata) {
		usedModel, usage = m, u
	}))

	req := &Request{
		Contents: []Content{{Parts: []Part{TextPart("hi"), BlobPart("image/png", []byte{1, 2, 3})}}},
		GenerationConfig: &GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   &Schema{Type: TypeObject, Required: []string{"a"}},
			Temperature:      Float(0),
		},
	}
	resp, err := c.GenerateContent(context.Background(), DefaultContentModel, req)
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/"+DefaultContentModel+":generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, `{"a":1}`, resp.FirstText())
	assert.Equal(t, DefaultContentModel, usedModel)
	assert.Equal(t, 10, usage.PromptTokenCount)

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "AQID", inline["data"])

	gc := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gc["responseMimeType"])
	assert.Equal(t, float64(0), gc["temperature"])
}

func TestResponse_FirstInlineData(t *testing.T) {
	t.Parallel()
	var r *Response
	assert.Nil(t, r.FirstInlineData())
	assert.Empty(t, r.FirstText())

	r = &Response{Candidates: []Candidate{{Content: Content{Parts: []Part{
		{Text: "x"},
		{InlineData: &InlineData{MIMEType: "audio/L16;rate=24000", Data: "AAA="}},
	}}}}}
	require.NotNil(t, r.FirstInlineData())
	assert.Equal(t, "AAA=", r.FirstInlineData().Data)
}

func TestSpeechAndToolShapes(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(&Request{
		GenerationConfig: &GenerationConfig{ResponseModalities: []string{"AUDIO"}, SpeechConfig: NewSpeechConfig("Kore")},
		Tools:            []Tool{GoogleSearchTool()},
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"speechConfig":{"voiceConfig":{"prebuiltVoiceConfig":{"voiceName":"Kore"}}}`)
	assert.Contains(t, string(b), `"tools":[{"google_search":{}}]`)
}
