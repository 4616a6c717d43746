package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/corpus"
	"github.com/jpalmerr/corpuswatch/internal/metrics"
	"github.com/jpalmerr/corpuswatch/internal/poller"
	"github.com/jpalmerr/corpuswatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// importTimeout bounds the backend call behind POST .../import and .../enrich.
	importTimeout = 30 * time.Second

	// maxEnrichBodySize caps the enrichment configuration a client may post.
	maxEnrichBodySize = 64 << 10

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "corpuswatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// ErrUnknownCorpus is returned by an [Importer] for a corpus that is not watched.
var ErrUnknownCorpus = errors.New("corpus is not watched")

// Importer starts the import of a watched corpus.
type Importer interface {
	Import(ctx context.Context, corpusID string) (taskID string, err error)
}

// Enricher starts an enrichment of a watched corpus. An [Importer] that also
// implements Enricher enables POST /api/corpora/{corpus_id}/enrich.
type Enricher interface {
	Enrich(ctx context.Context, corpusID string, payload map[string]any) error
}

// Server handles HTTP requests for the corpuswatch dashboard and API.
//
// Routes:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /healthz: Liveness check
//   - GET /api/corpora: Returns all current corpus statuses as JSON
//   - GET /api/corpora/{corpus_id}: Returns one corpus status
//   - POST /api/corpora/{corpus_id}/import: Starts an import via the Importer
//   - POST /api/corpora/{corpus_id}/enrich: Starts an enrichment via the Enricher
//   - GET /api/sse: Server-Sent Events stream for real-time updates
//   - GET /metrics: Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	importer   Importer
	port       int
	httpServer *http.Server
	router     chi.Router
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store implementation for status data
//   - imp: Importer for POST requests (may be nil, imports then answer 501)
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "corpuswatch" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, imp Importer, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	metrics.Init()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    st,
		importer: imp,
		port:     port,
		assets:   assets,
		title:    title,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/", s.handleDashboard)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sse", s.handleSSE)
		r.Route("/corpora", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Route("/{corpus_id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Post("/import", s.handleImport)
				r.Post("/enrich", s.handleEnrich)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with an http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleList returns all current statuses as JSON.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

// handleGet returns the status of one corpus.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "corpus_id")
	status, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("corpus %q is not watched", id))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, status)
}

// handleImport starts an import and answers 202 with the backend task id.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.writeError(w, http.StatusNotImplemented, "imports are disabled")
		return
	}
	id := chi.URLParam(r, "corpus_id")

	ctx, cancel := context.WithTimeout(r.Context(), importTimeout)
	defer cancel()

	taskID, err := s.importer.Import(ctx, id)
	if err != nil {
		code, outcome := importErrorStatus(err)
		metrics.ObserveImport(outcome)
		s.logger.Warn("import failed", "corpus_id", id, "status_code", code, "error", err.Error())
		s.writeError(w, code, err.Error())
		return
	}

	metrics.ObserveImport("started")
	s.logger.Info("import started", "corpus_id", id, "task_id", taskID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"corpus_id": id, "task_id": taskID})
}

// handleEnrich starts an enrichment configured by the JSON request body and
// answers 202. An empty body sends an empty configuration.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	enricher, ok := s.importer.(Enricher)
	if !ok {
		s.writeError(w, http.StatusNotImplemented, "enrichments are disabled")
		return
	}
	id := chi.URLParam(r, "corpus_id")

	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnrichBodySize))
	if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), importTimeout)
	defer cancel()

	if err := enricher.Enrich(ctx, id, payload); err != nil {
		code, outcome := importErrorStatus(err)
		metrics.ObserveEnrich(outcome)
		s.logger.Warn("enrichment failed", "corpus_id", id, "status_code", code, "error", err.Error())
		s.writeError(w, code, err.Error())
		return
	}

	metrics.ObserveEnrich("started")
	s.logger.Info("enrichment started", "corpus_id", id)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"corpus_id": id})
}

// importErrorStatus maps an import or enrichment failure to a response code
// and a metrics outcome.
func importErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownCorpus), errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, backend.ErrConflict), errors.Is(err, backend.ErrBadRequest):
		return http.StatusConflict, "conflict"
	case errors.Is(err, backend.ErrUnauthenticated), errors.Is(err, corpus.ErrCannotEnrich):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, poller.ErrNotActive):
		return http.StatusServiceUnavailable, "error"
	default:
		return http.StatusBadGateway, "error"
	}
}

// handleSSE streams status updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	// If the client is slow or disconnected, the write will timeout rather than
	// blocking indefinitely, allowing the handler to detect shutdown signals.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe to store updates
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send initial statuses (also protected by write deadline)
	for _, status := range s.store.GetAll() {
		data, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	// stream updates
	for {
		select {
		case status, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				correlationID := uuid.NewString()
				s.logger.Error("handler panic",
					"correlation_id", correlationID,
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error (correlation_id: "+correlationID+")")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
