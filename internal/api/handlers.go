package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/analytics"
	"github.com/bishleshok-ai/bishleshok/internal/assistant"
	"github.com/bishleshok-ai/bishleshok/internal/busy"
	"github.com/bishleshok-ai/bishleshok/internal/collection"
	"github.com/bishleshok-ai/bishleshok/internal/export"
	"github.com/bishleshok-ai/bishleshok/internal/extract"
	"github.com/bishleshok-ai/bishleshok/internal/media"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/recorder"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// ExportBaseName is the download name of exports, without extension.
const ExportBaseName = "ProductData"

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Latest    *status.Message   `json:"latest,omitempty"`
	History   []status.Message  `json:"history"`
	Busy      busy.State        `json:"busy"`
	Recording string            `json:"recording,omitempty"`
	Records   int               `json:"records"`
	Ready     bool              `json:"ready"`
	Answer    *assistant.Answer `json:"answer,omitempty"`
	Trends    *assistant.Trends `json:"trends,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		History: s.deps.Board.History(),
		Busy:    s.deps.Busy.State(),
		Records: s.deps.Store.Len(),
	}
	if m, ok := s.deps.Board.Latest(); ok {
		resp.Latest = &m
	}
	if s.deps.Recorder != nil {
		resp.Recording = s.deps.Recorder.State().String()
	}
	if s.deps.Assistant != nil {
		resp.Answer = s.deps.Assistant.LastAnswer()
		resp.Trends = s.deps.Assistant.LastTrends()
	}
	select {
	case <-s.deps.Store.Ready():
		resp.Ready = true
	default:
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload reads the "file" part of a multipart form, or the raw body
// for any other content type.
func readUpload(w http.ResponseWriter, r *http.Request) (*media.Blob, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, eris.Wrap(err, "api: read file part")
		}
		defer f.Close() //nolint:errcheck
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, eris.Wrap(err, "api: read file part")
		}
		mt := hdr.Header.Get("Content-Type")
		if mt == "" || mt == "application/octet-stream" {
			mt = media.DetectMIME(hdr.Filename, data)
		}
		return &media.Blob{Name: hdr.Filename, MIMEType: mt, Data: data}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, eris.Wrap(err, "api: read body")
	}
	name := r.URL.Query().Get("name")
	if ct == "" {
		ct = media.DetectMIME(name, data)
	}
	return &media.Blob{Name: name, MIMEType: ct, Data: data}, nil
}

type acceptedResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

func (s *Server) postReceipt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Receipts == nil {
		writeError(w, http.StatusNotImplemented, "receipt extraction is not configured")
		return
	}
	blob, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !extract.IsReceiptType(blob.MIMEType) {
		status.Error(s.deps.Board, extract.MsgBadFileType)
		writeError(w, http.StatusUnsupportedMediaType, extract.MsgBadFileType)
		return
	}

	s.goAsync(func(ctx context.Context) {
		s.archive(ctx, blob)
		in := extract.Input{Name: blob.Name, MIMEType: blob.MIMEType, Data: blob.Data}
		if _, err := s.deps.Receipts.Process(ctx, in); err != nil {
			zap.L().Warn("api: receipt processing failed", zap.String("name", blob.Name), zap.Error(err))
		}
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Name: blob.Name})
}

func (s *Server) postVoice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voice == nil {
		writeError(w, http.StatusNotImplemented, "voice extraction is not configured")
		return
	}
	blob, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(blob.Data) == 0 {
		status.Error(s.deps.Board, recorder.MsgNoAudio)
		writeError(w, http.StatusBadRequest, recorder.MsgNoAudio)
		return
	}

	s.goAsync(func(ctx context.Context) {
		s.archive(ctx, blob)
		in := extract.Input{Name: blob.Name, MIMEType: blob.MIMEType, Data: blob.Data}
		if _, err := s.deps.Voice.Process(ctx, in); err != nil {
			zap.L().Warn("api: voice processing failed", zap.Error(err))
		}
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Name: blob.Name})
}

// archive copies the raw upload to object storage. Failures only warn.
func (s *Server) archive(ctx context.Context, b *media.Blob) {
	if s.deps.Archiver == nil {
		return
	}
	if _, err := s.deps.Archiver.Archive(ctx, b); err != nil {
		zap.L().Warn("api: archive upload failed", zap.String("name", b.Name), zap.Error(err))
	}
}

type recordingResponse struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) toggleRecording(w http.ResponseWriter, r *http.Request) {
	rec := s.deps.Recorder
	if rec == nil {
		writeError(w, http.StatusNotImplemented, "recording is not configured")
		return
	}
	// Stopping runs the voice pipeline, so it finishes in the background.
	if rec.State() == recorder.Recording {
		s.goAsync(func(ctx context.Context) {
			if err := rec.Toggle(ctx); err != nil {
				zap.L().Warn("api: recording stop failed", zap.Error(err))
			}
		})
		writeJSON(w, http.StatusAccepted, recordingResponse{State: recorder.Stopping.String()})
		return
	}

	err := rec.Toggle(s.deps.BaseCtx)
	resp := recordingResponse{State: rec.State().String(), Reason: rec.UnavailableReason()}

	var perr *recorder.PermissionError
	switch {
	case errors.As(err, &perr):
		writeJSON(w, http.StatusForbidden, resp)
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

type recordsResponse struct {
	Count     int              `json:"count"`
	Documents []model.Document `json:"documents"`
}

func (s *Server) listRecords(w http.ResponseWriter, _ *http.Request) {
	docs := s.deps.Store.Documents()
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Count: len(docs), Documents: docs})
}

func (s *Server) showRecord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	pretty, err := s.deps.Store.Select(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, pretty)
}

func (s *Server) clearRecords(w http.ResponseWriter, r *http.Request) {
	lease := s.deps.Busy.Acquire("Clearing database")
	defer lease.Release()

	if err := s.deps.Store.ClearAll(r.Context()); err != nil {
		zap.L().Error("api: clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": collection.MsgCleared})
}

func (s *Server) setFilter(w http.ResponseWriter, r *http.Request) {
	var dr model.DateRange
	if err := json.NewDecoder(r.Body).Decode(&dr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.deps.Engine.SetFilter(dr)
	writeJSON(w, http.StatusOK, s.deps.Engine.Filter())
}

func (s *Server) clearFilter(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.ClearFilter()
	writeJSON(w, http.StatusOK, s.deps.Engine.Filter())
}

func (s *Server) getAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.View())
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusNotImplemented, "assistant is not configured")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lease := s.deps.Busy.Acquire("Thinking")
	defer lease.Release()

	ans, err := s.deps.Assistant.Ask(r.Context(), req.Question, s.deps.Store.Records())
	switch {
	case errors.Is(err, assistant.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case ans == nil && err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, ans)
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}

func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusNotImplemented, "assistant is not configured")
		return
	}
	t, err := s.deps.Assistant.Trends(r.Context())
	switch {
	case errors.Is(err, assistant.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case t == nil && err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, t)
	default:
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) exportCSV(w http.ResponseWriter, _ *http.Request) {
	s.export(w, "CSV", "text/csv; charset=utf-8", ExportBaseName+".csv", export.WriteCSV)
}

func (s *Server) exportXLSX(w http.ResponseWriter, _ *http.Request) {
	s.export(w, "XLSX", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ExportBaseName+".xlsx", export.WriteXLSX)
}

// export writes the records the analytics view currently shows: the
// filtered set when a filter is active, otherwise everything.
func (s *Server) export(w http.ResponseWriter, format, contentType, filename string, write func(io.Writer, []model.Record) error) {
	recs := exportRecords(s.deps.Engine.View())

	var buf bytes.Buffer
	err := write(&buf, recs)
	if errors.Is(err, export.ErrNothingToExport) {
		status.Error(s.deps.Board, export.MsgNothingToExport)
		writeError(w, http.StatusNotFound, export.MsgNothingToExport)
		return
	}
	if err != nil {
		zap.L().Error("api: export failed", zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status.Info(s.deps.Board, export.SuccessMessage(format, len(recs)))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportRecords(v *analytics.View) []model.Record {
	if v == nil {
		return nil
	}
	return v.Records
}

func (s *Server) latestClip(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Clips == nil {
		writeError(w, http.StatusNotFound, "no audio")
		return
	}
	clip := s.deps.Clips.Latest()
	if clip == nil {
		writeError(w, http.StatusNotFound, "no audio")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Last-Modified", clip.At.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.WAV)
}
