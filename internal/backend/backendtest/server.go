// Package backendtest provides an in-memory fake of the corpus-management API.
//
// The fake simulates imports: after ImportCorpus a corpus reports busy for a
// configurable number of status polls, then reports imported. It is used by
// tests and by the mock backend binary under example/.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/corpuswatch/internal/backend"
)

// CSRFToken is the value of the csrftoken cookie the fake hands out.
const CSRFToken = "test-csrf-token"

// Backend is the fake API state. Zero value is not usable; use [New].
type Backend struct {
	mu sync.Mutex

	// Token, when non-empty, is required as "Authorization: Token <Token>".
	Token string

	// BusyPolls is how many corpus status reads report busy after an import starts.
	BusyPolls int

	corpora       map[string]*corpusState
	user          backend.User
	queries       map[string][]backend.QuerySummary
	hierarchy     backend.Hierarchy
	hierarchyFail bool
	queryFail     map[string]bool
	enrichments   map[string][]map[string]any
	requests      map[string]int
	nextTask      int
	tasks         map[string]backend.TaskStatus
}

type corpusState struct {
	corpus    backend.Corpus
	busyLeft  int
	failNext  int
	taskID    string
	taskError string
}

// New returns a Backend with a superuser and no corpora.
func New() *Backend {
	return &Backend{
		BusyPolls:   2,
		corpora:     make(map[string]*corpusState),
		user:        backend.User{ID: 1, Username: "admin", IsSuperuser: true},
		queries:     make(map[string][]backend.QuerySummary),
		queryFail:   make(map[string]bool),
		enrichments: make(map[string][]map[string]any),
		hierarchy:   DefaultHierarchy(),
		requests:    make(map[string]int),
		tasks:       make(map[string]backend.TaskStatus),
	}
}

// DefaultHierarchy is a small two-level hierarchy with duplicate properties
// across type and token lists.
func DefaultHierarchy() backend.Hierarchy {
	return backend.Hierarchy{
		AnnotationTypes: []string{"word", "phone"},
		TypeProperties: map[string][]backend.Property{
			"word":  {{Name: "label", Type: "str"}, {Name: "transcription", Type: "str"}},
			"phone": {{Name: "label", Type: "str"}},
		},
		TokenProperties: map[string][]backend.Property{
			"word":  {{Name: "label", Type: "str"}, {Name: "begin", Type: "float"}},
			"phone": {{Name: "begin", Type: "float"}, {Name: "end", Type: "float"}},
		},
		SubsetTypes: map[string][]string{
			"phone": {"syllabic", "sibilant"},
		},
		SubsetTokens: map[string][]string{
			"phone": {"sibilant", "stressed"},
		},
	}
}

// AddCorpus registers a corpus. The id is the map key used in URLs.
func (b *Backend) AddCorpus(c backend.Corpus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corpora[fmt.Sprint(c.ID)] = &corpusState{corpus: c}
}

// SetUser replaces the authenticated user.
func (b *Backend) SetUser(u backend.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = u
}

// SetQueries sets the saved queries returned for an annotation type.
func (b *Backend) SetQueries(annotationType string, qs []backend.QuerySummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries[annotationType] = qs
}

// SetHierarchy replaces the hierarchy returned for every corpus.
func (b *Backend) SetHierarchy(h backend.Hierarchy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hierarchy = h
}

// FailHierarchy makes hierarchy requests return 500 while fail is true.
func (b *Backend) FailHierarchy(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hierarchyFail = fail
}

// FailQueries makes saved-query requests for annotationType return 500
// while fail is true.
func (b *Backend) FailQueries(annotationType string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryFail[annotationType] = fail
}

// Enrichments returns the payloads of the enrichments accepted for corpusID.
func (b *Backend) Enrichments(corpusID string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.enrichments[corpusID]...)
}

// FailCorpus makes the next n status reads of corpusID return 503.
func (b *Backend) FailCorpus(corpusID string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.corpora[corpusID]; ok {
		st.failNext = n
	}
}

// FailTask makes the import task of corpusID report an error.
func (b *Backend) FailTask(corpusID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.corpora[corpusID]; ok {
		st.taskError = message
	}
}

// Requests returns how many requests hit the route pattern, e.g.
// "GET /api/corpus/{corpus_id}/".
func (b *Backend) Requests(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[route]
}

// Handler returns the HTTP handler serving the fake API.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.countRequests)
	r.Use(b.csrfCookie)

	r.Group(func(r chi.Router) {
		r.Use(b.requireToken)

		r.Get("/api/rest-auth/user/", b.handleAuthUser)
		r.Get("/api/users/current_user/", b.handleCurrentUser)
		r.Get("/api/tasks/{task_id}/", b.handleTask)

		r.Route("/api/corpus/{corpus_id}", func(r chi.Router) {
			r.Get("/", b.handleCorpus)
			r.Get("/hierarchy/", b.handleHierarchy)
			r.Get("/query/", b.handleQueries)
			r.With(b.requireCSRF).Post("/import_corpus/", b.handleImport)
			r.With(b.requireCSRF).Post("/enrich/", b.handleEnrich)
		})
	})

	return r
}

// NewServer starts an httptest server for the fake. Callers must Close it.
func (b *Backend) NewServer() *httptest.Server {
	return httptest.NewServer(b.Handler())
}

func (b *Backend) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		b.mu.Lock()
		b.requests[r.Method+" "+route]++
		b.mu.Unlock()
	})
}

func (b *Backend) csrfCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("csrftoken"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: CSRFToken, Path: "/"})
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.Token
		b.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Token "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRFToken") != CSRFToken {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token missing or incorrect."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleAuthUser(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	u := b.user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"pk": u.ID, "username": u.Username})
}

func (b *Backend) handleCurrentUser(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	u := b.user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handleCorpus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.corpora[chi.URLParam(r, "corpus_id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if st.failNext > 0 {
		st.failNext--
		writeJSON(w, http.StatusServiceUnavailable, "database is restarting")
		return
	}

	if st.corpus.Busy && st.busyLeft > 0 {
		st.busyLeft--
	} else if st.corpus.Busy && st.taskError == "" {
		st.corpus.Busy = false
		st.corpus.Imported = true
		st.corpus.CurrentTaskID = ""
		if st.taskID != "" {
			b.tasks[st.taskID] = backend.TaskStatus{TaskID: st.taskID, Status: "SUCCESS"}
		}
	}
	writeJSON(w, http.StatusOK, st.corpus)
}

func (b *Backend) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.corpora[chi.URLParam(r, "corpus_id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if b.hierarchyFail || !st.corpus.Imported {
		writeJSON(w, http.StatusInternalServerError, "Could not connect to the graph database.")
		return
	}
	writeJSON(w, http.StatusOK, b.hierarchy)
}

func (b *Backend) handleQueries(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.corpora[chi.URLParam(r, "corpus_id")]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	atype := r.URL.Query().Get("annotation_type")
	if b.queryFail[atype] {
		writeJSON(w, http.StatusInternalServerError, "Could not connect to the graph database.")
		return
	}
	qs := b.queries[atype]
	if qs == nil {
		qs = []backend.QuerySummary{}
	}
	writeJSON(w, http.StatusOK, qs)
}

func (b *Backend) handleImport(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.corpora[chi.URLParam(r, "corpus_id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if st.corpus.Imported {
		writeJSON(w, http.StatusBadRequest, "The corpus has already been imported.")
		return
	}
	if st.corpus.Busy {
		writeJSON(w, http.StatusConflict, "The corpus is currently busy, please try once the current process is finished.")
		return
	}

	b.nextTask++
	taskID := fmt.Sprintf("task-%d", b.nextTask)
	st.taskID = taskID
	st.corpus.Busy = true
	st.corpus.CurrentTaskID = taskID
	st.busyLeft = b.BusyPolls

	status := backend.TaskStatus{TaskID: taskID, Status: "STARTED"}
	if st.taskError != "" {
		status = backend.TaskStatus{TaskID: taskID, Status: "FAILURE", Error: st.taskError}
	}
	b.tasks[taskID] = status

	w.Header().Set("task", taskID)
	w.WriteHeader(http.StatusAccepted)
}

func (b *Backend) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed request.")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := chi.URLParam(r, "corpus_id")
	st, ok := b.corpora[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if !st.corpus.Imported {
		writeJSON(w, http.StatusBadRequest, "The corpus has not been imported yet.")
		return
	}
	if st.corpus.Busy {
		writeJSON(w, http.StatusConflict, "The corpus is currently busy, please try once the current process is finished.")
		return
	}

	b.enrichments[id] = append(b.enrichments[id], payload)
	st.corpus.Busy = true
	st.busyLeft = b.BusyPolls
	w.WriteHeader(http.StatusAccepted)
}

func (b *Backend) handleTask(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	taskID := strings.TrimSpace(chi.URLParam(r, "task_id"))
	ts, ok := b.tasks[taskID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
