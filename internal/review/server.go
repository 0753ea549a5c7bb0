package review

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const maxBodyBytes = 10 << 20

// Options wires the server's collaborators.
type Options struct {
	Records        Store
	Feedback       Store
	Speech         Synthesizer
	OutputDir      string
	AllowedOrigins []string
}

// Server is the review HTTP API.
type Server struct {
	router   *chi.Mux
	records  Store
	feedback Store
	speech   Synthesizer
	output   string
	origins  []string
}

// New creates a Server with its routes registered.
func New(opts Options) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		records:  opts.Records,
		feedback: opts.Feedback,
		speech:   opts.Speech,
		output:   opts.OutputDir,
		origins:  opts.AllowedOrigins,
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/records", s.handleList(s.records))
		r.Get("/records/{email}", s.handleGetByEmail(s.records))
		r.Put("/records/{email}", s.handlePutByEmail(s.records))
		r.Get("/feedback", s.handleList(s.feedback))
	})

	for _, p := range []string{"/update-record", "/update_record"} {
		s.router.Post(p, s.handleUpdate(s.records, msgRecordUpdated))
	}
	for _, p := range []string{"/update-feedback", "/update_feedback"} {
		s.router.Post(p, s.handleUpdate(s.feedback, msgFeedbackUpdate))
	}
	for _, p := range []string{"/synthesize-speech", "/synthesizeSpeech"} {
		s.router.Post(p, s.handleSpeech)
	}

	if s.output != "" {
		s.router.Handle("/output/*", http.StripPrefix("/output/", http.FileServer(http.Dir(s.output))))
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/{template}", s.handleIndex)
}

type statusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	AudioURL string `json:"audioUrl,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := st.List()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func (s *Server) handleGetByEmail(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, _, err := st.GetByEmail(chi.URLParam(r, "email"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handlePutByEmail(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec model.Record
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
			writeError(w, r, &ValidationError{Message: msgInvalidJSON})
			return
		}
		if err := st.PutByEmail(chi.URLParam(r, "email"), rec); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: msgRecordUpdated})
	}
}

// handleUpdate replaces the record at a position: {"index": n, "record": {...}}.
func (s *Server) handleUpdate(st Store, success string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, rec, err := decodeUpdate(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := st.Put(idx, rec); err != nil {
			writeError(w, r, err)
			return
		}
		zap.L().Info("review: record updated",
			zap.Int("index", idx),
			zap.String("email", rec.Email()),
			zap.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: success})
	}
}

func decodeUpdate(body io.Reader) (int, model.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return 0, nil, &ValidationError{Message: msgInvalidJSON}
	}
	if len(raw) == 0 {
		return 0, nil, &ValidationError{Message: msgNoData}
	}

	var rec model.Record
	if data, ok := raw["record"]; !ok || json.Unmarshal(data, &rec) != nil || len(rec) == 0 {
		return 0, nil, &ValidationError{Message: msgNoRecord}
	}

	idx, ok := parseIndex(raw["index"])
	if !ok {
		return 0, nil, &ValidationError{Message: msgInvalidIndex}
	}
	return idx, rec, nil
}

// parseIndex accepts an integer or a string holding one.
func parseIndex(data json.RawMessage) (int, bool) {
	if len(data) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return n, true
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(str))
	return n, err == nil
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, &ValidationError{Message: msgInvalidJSON})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = DefaultSpeechText
	}
	if s.speech == nil {
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "speech synthesis is not configured"})
		return
	}

	url, err := s.speech.Synthesize(r.Context(), text)
	if err != nil {
		zap.L().Error("review: speech synthesis failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Speech synthesized", AudioURL: url})
}

type pageData struct {
	Title       string
	Records     []model.Record
	UpdatePath  string
	GeneratedAt string
}

// handleIndex renders the review page, or the raw records for JSON clients.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, recs)
		return
	}

	title := chi.URLParam(r, "template")
	if title == "" {
		title = "index.html"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = pageTemplate.Execute(w, pageData{
		Title:       title,
		Records:     recs,
		UpdatePath:  "/update-record",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		zap.L().Error("review: render page", zap.Error(err))
	}
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: ve.Message})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: "Record not found."})
	default:
		zap.L().Error("review: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("review: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("review: server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "review: listen")
	case <-ctx.Done():
	}

	zap.L().Info("review: shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "review: shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "review: listen")
	}
	return nil
}
