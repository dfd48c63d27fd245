package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"simpleml/internal/api"
	"simpleml/internal/chart"
	"simpleml/internal/common"
	"simpleml/internal/roster"
	"simpleml/internal/screening"
	"simpleml/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

var errBadUpload = errors.New("bad upload")

type langLink struct {
	Name   string
	URL    string
	Active bool
}

// page is the data handed to every HTML template.
type page struct {
	L            Locale
	Languages    []langLink
	Error        string
	SessionID    string
	Filename     string
	Table        [][]string
	Rows         int
	AtRisk       int
	Dropped      []string
	ModelVersion string
	Threshold    float64
}

func (s *Server) newPage(r *http.Request, togglePath string) *page {
	l := s.requestLocale(r)
	p := &page{L: l}
	for _, code := range localeOrder {
		p.Languages = append(p.Languages, langLink{
			Name:   locales[code].Name,
			URL:    togglePath + "?lang=" + url.QueryEscape(code),
			Active: code == l.Code,
		})
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, status int, name string, p *page) {
	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logFailure(r, status, err)

	p := s.newPage(r, "/")
	p.Error = err.Error()
	s.render(w, status, "error", p)
}

func logFailure(r *http.Request, status int, err error) {
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", s.newPage(r, "/"))
}

// handleUpload stores the roster and redirects to its preview.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := s.store.SaveUpload(*up); err != nil {
		s.renderError(w, r, fmt.Errorf("save upload: %w", err))
		return
	}
	s.uploaded()

	log.Info().
		Str("session", up.ID).
		Str("filename", up.Filename).
		Int("bytes", len(up.Data)).
		Msg("roster uploaded")

	http.Redirect(w, r, sessionURL(up.ID, "", s.requestLocale(r).Code), http.StatusSeeOther)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	up, err := s.store.GetUpload(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	students, err := roster.Load(bytes.NewReader(up.Data))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	p := s.newPage(r, r.URL.Path)
	p.SessionID = id
	p.Filename = up.Filename
	p.Table = students.Preview(s.cfg.PreviewRows)
	p.Rows = students.Len()
	s.render(w, http.StatusOK, "preview", p)
}

// handlePredict screens a stored upload and redirects to its results.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	up, err := s.store.GetUpload(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if _, err := s.screen(r.Context(), up); err != nil {
		s.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, sessionURL(id, "/results", s.requestLocale(r).Code), http.StatusSeeOther)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	res, err := s.store.GetResult(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	students, err := roster.Load(bytes.NewReader(res.CSV))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	p := s.newPage(r, r.URL.Path)
	p.SessionID = id
	p.Table = students.Display(s.cfg.NameColumn)
	p.Rows = res.Rows
	p.AtRisk = res.AtRisk
	p.Dropped = res.Dropped
	p.ModelVersion = res.ModelVersion
	p.Threshold = res.Threshold
	s.render(w, http.StatusOK, "results", p)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetResult(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	opts := chart.Options{
		Title:      s.requestLocale(r).ExplainHeading,
		MaxDisplay: s.cfg.MaxDisplay,
	}
	if err := chart.ImportanceBar(&buf, res.Importance, opts); err != nil {
		logFailure(r, http.StatusInternalServerError, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetResult(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", common.ResultMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", common.ResultFilename))
	w.Write(res.CSV)

	if s.metrics != nil {
		s.metrics.ExportsInc()
	}
}

// handleAPIPredict runs upload and screening in one JSON round trip.
func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	if err := s.store.SaveUpload(*up); err != nil {
		writeJSONError(w, r, fmt.Errorf("save upload: %w", err))
		return
	}
	s.uploaded()

	report, err := s.screen(r.Context(), up)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.predictResponse(up.ID, report))
}

func (s *Server) uploaded() {
	if s.metrics != nil {
		s.metrics.UploadsInc()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:       "ok",
		ModelVersion: s.cfg.ModelVersion,
		Features:     s.cfg.ModelFeatures,
	})
}

// readUpload reads the multipart "file" field and checks it parses as a
// roster.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*storage.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field: %v", errBadUpload, err)
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return nil, fmt.Errorf("%w: %s is not a .csv file", errBadUpload, header.Filename)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}

	if _, err := roster.Load(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	up := &storage.Upload{
		ID:        uuid.NewString(),
		Filename:  filepath.Base(header.Filename),
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
	return up, nil
}

// screen runs the pipeline on a stored upload and saves the result.
func (s *Server) screen(ctx context.Context, up *storage.Upload) (*screening.Report, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	students, err := roster.Load(bytes.NewReader(up.Data))
	if err != nil {
		return nil, err
	}

	report, err := s.screener.Screen(ctx, students)
	if err != nil {
		return nil, err
	}

	data, err := report.CSV()
	if err != nil {
		return nil, fmt.Errorf("export results: %w", err)
	}

	res := storage.Result{
		ID:           up.ID,
		CreatedAt:    time.Now().UTC(),
		ModelVersion: report.ModelVersion,
		Threshold:    report.Threshold,
		Rows:         report.Roster.Len(),
		AtRisk:       report.AtRisk,
		Features:     report.Features,
		Dropped:      report.Dropped,
		Expected:     report.Explanation.Expected,
		Importance:   report.Importance,
		CSV:          data,
	}
	if err := s.store.SaveResult(res); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	return report, nil
}

func (s *Server) predictResponse(id string, report *screening.Report) api.PredictResponse {
	return api.PredictResponse{
		SessionID:    id,
		ModelVersion: report.ModelVersion,
		Threshold:    report.Threshold,
		Rows:         report.Roster.Len(),
		AtRisk:       report.AtRisk,
		Features:     report.Features,
		Dropped:      report.Dropped,
		Expected:     report.Explanation.Expected,
		Importance:   report.Importance,
		Predictions:  report.Students(s.cfg.NameColumn),
		DownloadURL:  sessionURL(id, "/download", ""),
	}
}

func sessionURL(id, suffix, lang string) string {
	u := "/sessions/" + url.PathEscape(id) + suffix
	if lang != "" {
		u += "?lang=" + url.QueryEscape(lang)
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logFailure(r, status, err)
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
