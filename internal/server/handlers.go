package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/analysis"
	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/KaramelBytes/sheetqa/internal/parser"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.len()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.create()
	s.log.Debug("session created", "session", sess.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"id": sess.ID, "createdAt": sess.CreatedAt})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	s.sessions.remove(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var (
		name    string
		content []byte
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		name = "upload.json"
		content, err = io.ReadAll(r.Body)
	} else {
		name, content, err = readMultipartFile(r, s.opts.MaxUploadBytes)
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	opt := parser.Options{SheetName: r.FormValue("sheet")}
	if v := r.FormValue("sheet_index"); v != "" {
		opt.SheetIndex, _ = strconv.Atoi(v)
	}
	table, err := parser.ParseBytes(name, content, opt)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusUnprocessableEntity
		}
		writeErrorResponse(w, code, err.Error())
		return
	}
	schema := sess.Load(table)
	s.log.Info("dataset loaded", "session", sess.ID, "file", name, "rows", len(table.Records), "columns", len(schema.Columns))
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"schema": schema,
		"rows":   len(table.Records),
		"page":   sess.Page(1),
	})
}

// readMultipartFile returns the name and content of the "file" form field.
func readMultipartFile(r *http.Request, maxBytes int64) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("no file uploaded")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, content, nil
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, sessionFrom(r).Schema())
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSONResponse(w, http.StatusOK, sess.Page(parseIntParam(r, "page", 1)))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	requested := r.URL.Query().Get("column")
	p, err := sess.Profile(requested)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"profile":     p,
		"top":         p.Top(10),
		"substituted": requested != p.Column,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	requested := r.URL.Query().Get("column")
	col, series, err := sess.Chart(requested)
	if err != nil {
		writeError(w, err)
		return
	}
	if series == nil {
		series = []analysis.ChartPoint{}
	}
	writeJSONResponse(w, http.StatusOK, chartResponse{
		Column:      col,
		Substituted: requested != col.Name,
		ChartData:   series,
	})
}

type chartResponse struct {
	Column      dataset.Column        `json:"column"`
	Substituted bool                  `json:"substituted"`
	ChartData   []analysis.ChartPoint `json:"chartData"`
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// a dispatched question runs to completion or to its timeout, even if
	// the client goes away
	res, err := s.orch.Ask(context.WithoutCancel(r.Context()), sess, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.opts.HistoryDir != "" {
		if err := sess.SaveHistory(assistant.HistoryPath(s.opts.HistoryDir, sess.ID)); err != nil {
			s.log.Warn("save history", "session", sess.ID, "err", err)
		}
	}
	writeJSONResponse(w, http.StatusOK, res)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := sessionFrom(r).Current()
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "no result yet")
		return
	}
	writeJSONResponse(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"entries": sessionFrom(r).History()})
}

type sqlRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !sess.HasData() {
		writeError(w, assistant.ErrNoDataLoaded)
		return
	}
	limit := req.Limit
	if limit <= 0 || (s.opts.QueryLimit > 0 && limit > s.opts.QueryLimit) {
		limit = s.opts.QueryLimit
	}
	db, err := sqlexec.Open(r.Context(), sess.Schema(), sess.Records())
	if err != nil {
		writeError(w, err)
		return
	}
	defer db.Close()
	res, err := db.Query(r.Context(), req.Query, limit)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, res)
}
