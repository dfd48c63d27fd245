// Package web serves the SimpleML user interface and JSON API.
// Teachers upload a roster, preview it, run the at-risk screening and then
// read the results table, the SHAP importance chart and download the
// labelled CSV. The same flow is exposed as JSON for the prediction client.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"simpleml/internal/common"
	"simpleml/internal/ml"
	"simpleml/internal/roster"
	"simpleml/internal/screening"
	"simpleml/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "preview", "results", "error"}

// Screener runs the at-risk pipeline on a loaded roster.
type Screener interface {
	Screen(ctx context.Context, students *roster.Roster) (*screening.Report, error)
}

// SessionStore keeps uploads and results between requests.
type SessionStore interface {
	SaveUpload(u storage.Upload) error
	GetUpload(id string) (*storage.Upload, error)
	SaveResult(r storage.Result) error
	GetResult(id string) (*storage.Result, error)
}

// MetricsInterface defines metrics methods needed by the server
type MetricsInterface interface {
	HTTPRequestObserve(route, method string, status int, seconds float64)
	UploadsInc()
	ExportsInc()
}

// Config holds the server settings.
type Config struct {
	Port           int
	MaxUploadBytes int64
	DefaultLang    string
	NameColumn     string
	MaxDisplay     int
	PreviewRows    int
	RequestTimeout time.Duration
	ModelVersion   string
	ModelFeatures  []string
	MetricsHandler http.Handler // defaults to promhttp.Handler()
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	screener Screener
	store    SessionStore
	metrics  MetricsInterface
	pages    map[string]*template.Template
	router   *mux.Router
	server   *http.Server

	mu        sync.Mutex
	isRunning bool
}

// New creates the server and its routes. metrics may be nil.
func New(cfg Config, screener Screener, store SessionStore, metrics MetricsInterface) (*Server, error) {
	if cfg.DefaultLang == "" || !SupportedLanguage(cfg.DefaultLang) {
		cfg.DefaultLang = common.DefaultLang
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = common.DefaultMaxUploadBytes
	}
	if cfg.MaxDisplay <= 0 {
		cfg.MaxDisplay = common.DefaultMaxDisplay
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 100
	}
	if cfg.NameColumn == "" {
		cfg.NameColumn = common.DefaultNameColumn
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		screener: screener,
		store:    store,
		metrics:  metrics,
		pages:    pages,
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/sessions/{id}", s.handlePreview).Methods("GET")
	r.HandleFunc("/sessions/{id}/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/sessions/{id}/results", s.handleResults).Methods("GET")
	r.HandleFunc("/sessions/{id}/chart.png", s.handleChart).Methods("GET")
	r.HandleFunc("/sessions/{id}/download", s.handleDownload).Methods("GET")
	r.HandleFunc("/api/predict", s.handleAPIPredict).Methods("POST")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", cfg.MetricsHandler).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout + 10*time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
	}

	return s, nil
}

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"join": strings.Join,
		"riskClass": func(v string) string {
			switch v {
			case common.LabelAtRisk:
				return "at-risk"
			case common.LabelSafe:
				return "safe"
			}
			return ""
		},
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}

	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting SimpleML server")

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("SimpleML server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown SimpleML server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("SimpleML server stopped")
	return nil
}

// statusFor maps pipeline and storage errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadUpload),
		errors.Is(err, roster.ErrMalformedCSV),
		errors.Is(err, roster.ErrNoRows),
		errors.Is(err, roster.ErrNoFeatures),
		errors.Is(err, ml.ErrFeatureMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
