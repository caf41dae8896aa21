// Package assistant answers business questions over the stored records and
// summarises current market trends.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/epoch"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// Canned answers that need no model call.
const (
	MsgNoQuestion = "Please enter a question in the text box."
	MsgNoData     = "There is no data in the database to analyze. Please add data first."
	apologyPrefix = "দুঃখিত, একটি ত্রুটি ঘটেছে: "
)

// ErrSuperseded is returned when a newer request started before this one
// finished. Its result was discarded.
var ErrSuperseded = eris.New("assistant: superseded by a newer request")

// instructions is the analyst persona; the verb is today's date.
const instructions = `You are 'Bishleshok.ai' (বিশ্লেষক), an expert business analyst AI for a small business in Bangladesh. Start with greeting the user as Bishleshok.ai. The current date is %s. answer in actionable Bangla.Also if there is any missing business data dont hallucinate rather give instructions to that related fields and some datas related to that so that user feels confident and not focus on the missing data. Also if user asks outside the JSON data, answer properly with the business plan. And the currency is only BDT.
Please format your entire response using Markdown (e.g., **bold**, *italic*, lists, and tables).`

// Answer is the outcome of one question.
type Answer struct {
	Question string    `json:"question"`
	Markdown string    `json:"markdown"`
	IsError  bool      `json:"isError"`
	At       time.Time `json:"at"`
}

// Trends is the market trends panel.
type Trends struct {
	Items   []string  `json:"items"`
	Summary string    `json:"summary"`
	IsError bool      `json:"isError"`
	At      time.Time `json:"at"`
}

// Assistant serialises asks and trend lookups by epoch: only the newest of
// each kind is kept.
type Assistant struct {
	answerer Answerer
	trends   gemini.Client
	model    string
	dhaka    *time.Location
	now      func() time.Time

	askEpoch    epoch.Counter
	trendsEpoch epoch.Counter

	mu         sync.RWMutex
	lastAnswer *Answer
	lastTrends *Trends
}

// New creates an Assistant. trendsClient may be nil, which disables Trends.
func New(answerer Answerer, trendsClient gemini.Client, trendsModel string) *Assistant {
	if trendsModel == "" {
		trendsModel = gemini.DefaultContentModel
	}
	loc, err := time.LoadLocation("Asia/Dhaka")
	if err != nil {
		loc = time.FixedZone("BST", 6*60*60)
	}
	return &Assistant{answerer: answerer, trends: trendsClient, model: trendsModel, dhaka: loc, now: time.Now}
}

// Ask answers question over recs. Provider failures come back as an
// apology answer together with the error.
func (a *Assistant) Ask(ctx context.Context, question string, recs []model.Record) (*Answer, error) {
	question = strings.TrimSpace(question)
	ticket := a.askEpoch.Next()
	now := a.now()

	if question == "" {
		return a.storeAnswer(ticket, &Answer{Markdown: MsgNoQuestion, At: now}, nil)
	}
	if len(recs) == 0 {
		return a.storeAnswer(ticket, &Answer{Question: question, Markdown: MsgNoData, At: now}, nil)
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return nil, eris.Wrap(err, "assistant: marshal records")
	}
	prompt := "DATA:\n" + string(data) + "\n\nQUESTION:\n" + question + "\n\nANSWER (in Markdown):"
	sys := fmt.Sprintf(instructions, now.Format("2006-01-02"))

	text, err := a.answerer.Answer(ctx, sys, prompt)
	if err != nil {
		zap.L().Error("assistant: ask failed", zap.Error(err))
		ans := &Answer{Question: question, Markdown: apologyPrefix + err.Error(), IsError: true, At: a.now()}
		return a.storeAnswer(ticket, ans, err)
	}
	return a.storeAnswer(ticket, &Answer{Question: question, Markdown: text, At: a.now()}, nil)
}

func (a *Assistant) storeAnswer(ticket epoch.Ticket, ans *Answer, err error) (*Answer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !ticket.Current() {
		zap.L().Info("assistant: dropping stale answer", zap.Uint64("epoch", ticket.Value()))
		return nil, ErrSuperseded
	}
	a.lastAnswer = ans
	return ans, err
}

// LastAnswer returns the newest applied answer, or nil.
func (a *Assistant) LastAnswer() *Answer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastAnswer
}

var listLine = regexp.MustCompile(`^\d\.\s`)

// Trends asks for the top fast-moving goods in Bangladesh, grounded with
// web search.
func (a *Assistant) Trends(ctx context.Context) (*Trends, error) {
	if a.trends == nil {
		return nil, eris.New("assistant: trends need a gemini client")
	}
	ticket := a.trendsEpoch.Next()

	today := a.now().In(a.dhaka).Format("1/2/2006")
	prompt := "What are the top 5 most sold goodies along with the current market price or fast-moving consumer goods in Bangladesh right now? List them as a simple numbered list. GIVE ME THE RESPONSE IN BANGLA. After the list, provide a very brief 1-2 sentence summary of the current market trend. Use today's date, " +
		today + ", for context."
	req := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{gemini.TextPart(prompt)}}},
		Tools:    []gemini.Tool{gemini.GoogleSearchTool()},
	}

	resp, err := a.trends.GenerateContent(ctx, a.model, req)
	if err == nil && strings.TrimSpace(resp.FirstText()) == "" {
		err = eris.New("No text returned from Gemini.")
	}
	if err != nil {
		zap.L().Error("assistant: trends failed", zap.Error(err))
		return a.storeTrends(ticket, &Trends{Summary: "Error fetching trends: " + err.Error(), IsError: true, At: a.now()}, err)
	}

	t := ParseTrends(resp.FirstText())
	t.At = a.now()
	return a.storeTrends(ticket, t, nil)
}

func (a *Assistant) storeTrends(ticket epoch.Ticket, t *Trends, err error) (*Trends, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !ticket.Current() {
		return nil, ErrSuperseded
	}
	a.lastTrends = t
	return t, err
}

// LastTrends returns the newest applied trends, or nil.
func (a *Assistant) LastTrends() *Trends {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastTrends
}

// ParseTrends splits a model answer into numbered items and a summary of
// every other non-blank line.
func ParseTrends(text string) *Trends {
	t := &Trends{Items: []string{}}
	var rest []string
	for _, line := range strings.Split(text, "\n") {
		if listLine.MatchString(line) {
			t.Items = append(t.Items, strings.TrimSpace(line[strings.Index(line, " ")+1:]))
			continue
		}
		if s := strings.TrimSpace(line); s != "" {
			rest = append(rest, s)
		}
	}
	t.Summary = strings.Join(rest, " ")
	return t
}
