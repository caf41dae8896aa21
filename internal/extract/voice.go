package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/audio"
	"github.com/bishleshok-ai/bishleshok/internal/busy"
	"github.com/bishleshok-ai/bishleshok/internal/epoch"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// Confirmation status lines.
const (
	MsgTTSGenerating = "🔊 Generating Bangla confirmation..."
	MsgTTSPlaying    = "🔊 Playing confirmation..."
	MsgTTSComplete   = "Confirmation complete."
	MsgTTSFailed     = "Error: TTS generation failed."
)

// VoiceResult adds the spoken confirmation to a persisted voice record.
type VoiceResult struct {
	Result
	// WAV is the confirmation clip, nil if it failed or was superseded.
	WAV []byte
	// ConfirmationErr is why no clip was played. The record is saved either
	// way.
	ConfirmationErr error
}

// VoicePipeline extracts a voice record from recorded audio, persists it
// and reads a confirmation back.
type VoicePipeline struct {
	deps     Deps
	ttsModel string
	voice    string
	player   audio.Player
	epoch    epoch.Counter
}

// NewVoicePipeline creates a VoicePipeline. An empty ttsModel or voice
// uses the defaults; a nil player keeps clips in memory only.
func NewVoicePipeline(deps Deps, ttsModel, voice string, player audio.Player) *VoicePipeline {
	deps.defaults()
	if ttsModel == "" {
		ttsModel = gemini.DefaultTTSModel
	}
	if voice == "" {
		voice = "Kore"
	}
	if player == nil {
		player = audio.NewClipStore("")
	}
	return &VoicePipeline{deps: deps, ttsModel: ttsModel, voice: voice, player: player}
}

// Process runs the whole voice flow. The busy lease taken here is handed to
// the confirmation step and only released once playback ends or fails.
func (p *VoicePipeline) Process(ctx context.Context, in Input) (*VoiceResult, error) {
	d := p.deps
	if in.MIMEType == "" {
		in.MIMEType = defaultAudioMIME
	}
	if in.Name == "" {
		in.Name = model.VoiceFileName
	}

	ticket := p.epoch.Next()
	lease := d.Busy.Acquire("Converting voice to text")
	handedOff := false
	defer func() {
		if !handedOff {
			lease.Release()
		}
	}()

	req := structuredRequest(VoicePrompt(d.Now()), in, VoiceSchema)
	resp, err := d.Client.GenerateContent(ctx, d.ContentModel, req)
	if err != nil {
		zap.L().Error("extract: voice request failed", zap.Error(err))
		status.Error(d.Sink, "Voice Extraction Failed: "+err.Error())
		return nil, err
	}

	var rec model.Voice
	if err := decodeFirstText(resp, "Gemini could not parse voice data.", &rec); err != nil {
		zap.L().Error("extract: voice response unusable", zap.Error(err))
		status.Error(d.Sink, "Voice Extraction Failed: "+err.Error())
		return nil, err
	}
	rec.File = model.VoiceFileName
	rec.Normalize()

	id, err := d.Store.Append(ctx, &rec)
	if err != nil {
		status.Error(d.Sink, saveMessage(err))
		return nil, err
	}
	status.Info(d.Sink, "Voice data extracted successfully.")

	res := &VoiceResult{Result: Result{ID: id, Record: &rec}}
	handedOff = true
	res.WAV, res.ConfirmationErr = p.confirm(ctx, &rec, lease, ticket)
	return res, nil
}

// confirm speaks the record back. It owns lease and releases it on every
// path.
func (p *VoicePipeline) confirm(ctx context.Context, rec *model.Voice, lease *busy.Lease, ticket epoch.Ticket) ([]byte, error) {
	d := p.deps
	defer status.Info(d.Sink, MsgReady)
	defer lease.Release()

	lease.Retask("Generating Audio")
	status.Info(d.Sink, MsgTTSGenerating)

	req := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{gemini.TextPart(ConfirmationText(rec))}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       gemini.NewSpeechConfig(p.voice),
		},
	}

	wav, err := p.synthesize(ctx, req)
	if err != nil {
		zap.L().Error("extract: confirmation failed", zap.Error(err))
		status.Error(d.Sink, MsgTTSFailed)
		return nil, err
	}

	if !ticket.Current() {
		zap.L().Info("extract: newer voice entry started, dropping confirmation")
		return nil, eris.New("extract: confirmation superseded")
	}

	status.Info(d.Sink, MsgTTSPlaying)
	if err := p.player.Play(ctx, wav); err != nil {
		zap.L().Error("extract: playback failed", zap.Error(err))
		status.Error(d.Sink, MsgTTSFailed)
		return nil, err
	}
	status.Info(d.Sink, MsgTTSComplete)
	return wav, nil
}

func (p *VoicePipeline) synthesize(ctx context.Context, req *gemini.Request) ([]byte, error) {
	resp, err := p.deps.Client.GenerateContent(ctx, p.ttsModel, req)
	if err != nil {
		return nil, err
	}
	data := resp.FirstInlineData()
	if data == nil || data.Data == "" {
		return nil, &ExtractionError{Reason: "No audio data received from API."}
	}
	return audio.SpeechToWAV(data.Data)
}
