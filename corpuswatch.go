package corpuswatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/corpuswatch/dashboard"
	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/corpus"
	"github.com/jpalmerr/corpuswatch/internal/metrics"
	"github.com/jpalmerr/corpuswatch/internal/poller"
	"github.com/jpalmerr/corpuswatch/internal/server"
	"github.com/jpalmerr/corpuswatch/internal/store"
)

const (
	defaultPollingInterval = corpus.DefaultInterval
	defaultPort            = 8080
	defaultMaxConcurrency  = 10

	// updateBuffer sizes the channel between the pollers and the single
	// goroutine that feeds the store and the callbacks.
	updateBuffer = 64
)

// Watcher is the main orchestrator for corpus polling and dashboard serving.
//
// Watcher opens one self-refreshing view per configured [Target], keeps the
// dashboard's store up to date from the views' poll states, and serves the
// dashboard and its JSON API over HTTP. It is created using [New] with
// functional options and started with [Watcher.Start].
//
// The typical lifecycle is:
//
//	w, err := corpuswatch.New(
//	    corpuswatch.WithBackend("https://pgdb.example.org"),
//	    corpuswatch.WithTarget(t),
//	)
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
type Watcher struct {
	title           string
	client          *backend.Client
	targets         []Target
	pollingInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	statusCallbacks []func(StatusResult)
}

// New creates a new [Watcher] with the given options.
//
// A backend must be configured via [WithBackend] and at least one target via
// [WithTarget] or [WithTargets]. Other options have defaults:
//   - Polling interval: 10 seconds
//   - Port: 8080
//   - Max concurrency: 10
//   - Request timeout: 10 seconds
//
// Returns an error if the backend URL is invalid, no targets are configured,
// two targets share a corpus id, or any option is invalid.
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		targets:         []Target{},
		pollingInterval: defaultPollingInterval,
		port:            defaultPort,
		maxConcurrency:  defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.backendURL == "" {
		return nil, errors.New("backend URL is required")
	}
	if len(cfg.targets) == 0 {
		return nil, errors.New("at least one target is required")
	}

	// one view per corpus: the view owns its poller
	seen := make(map[string]bool, len(cfg.targets))
	for _, t := range cfg.targets {
		if seen[t.corpusID] {
			return nil, fmt.Errorf("duplicate corpus id: %q", t.corpusID)
		}
		seen[t.corpusID] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := backend.New(cfg.backendURL, backend.Options{
		Token:   cfg.token,
		Timeout: cfg.requestTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	return &Watcher{
		title:           cfg.title,
		client:          client,
		targets:         cfg.targets,
		pollingInterval: cfg.pollingInterval,
		port:            cfg.port,
		maxConcurrency:  cfg.maxConcurrency,
		logger:          logger,
		statusCallbacks: cfg.statusCallbacks,
	}, nil
}

// watchedCorpus pairs a target with its view.
type watchedCorpus struct {
	target Target
	view   *corpus.View
}

// update is one poll state change on its way to the consumer goroutine.
type update struct {
	watched *watchedCorpus
	state   poller.PollState[corpus.Detail]
}

// Start opens a view for every target and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Each target's view checks permissions and refreshes immediately, then
//     at its interval. Targets that cannot be opened are logged and skipped.
//   - The HTTP server starts on the configured port.
//   - Every completed refresh updates the dashboard and runs the status
//     callbacks.
//
// Returns nil on graceful shutdown. Returns an error if no view could be
// opened or the HTTP server fails to start.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("corpuswatch starting",
		"corpus_count", len(w.targets),
		"backend", w.client.BaseURL(),
	)
	w.logger.Info("polling configured", "interval", w.pollingInterval.String())
	w.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", w.port))

	if ctx.Err() != nil {
		return nil
	}

	metrics.Init()
	statusStore := store.NewMemoryStore()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan update, updateBuffer)
	stop := make(chan struct{})

	watched, err := w.newViews(updates, stop)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.consume(updates, stop, statusStore)
	}()

	opened, openErr := w.openViews(runCtx, watched)

	// cleanup closes every view, then stops the consumer
	cleanup := func() {
		for _, wc := range opened {
			wc.view.Close()
		}
		close(stop)
		wg.Wait()
		w.client.Close()
	}

	if len(opened) == 0 {
		cleanup()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("no corpus view could be opened: %w", openErr)
	}

	importer := make(viewImporter, len(opened))
	for _, wc := range opened {
		importer[wc.target.corpusID] = wc.view
	}

	httpServer := server.NewServer(statusStore, importer, w.port, dashboard.Assets, w.title, w.logger)
	if err := httpServer.Start(runCtx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	w.logger.Info("corpuswatch stopped")
	return nil
}

// newViews creates a closed view per target. Poll state changes are sent to
// updates until stop is closed.
func (w *Watcher) newViews(updates chan<- update, stop <-chan struct{}) ([]*watchedCorpus, error) {
	watched := make([]*watchedCorpus, 0, len(w.targets))
	for _, t := range w.targets {
		interval := t.interval
		if interval == 0 {
			interval = w.pollingInterval
		}

		wc := &watchedCorpus{target: t}
		view, err := corpus.NewView(w.client, t.corpusID, corpus.ViewOptions{
			Interval: interval,
			Logger:   w.logger,
			Observer: metrics.PollObserver{},
			OnUpdate: func(s poller.PollState[corpus.Detail]) {
				select {
				case updates <- update{watched: wc, state: s}:
				case <-stop:
				}
			},
		})
		if err != nil {
			return nil, fmt.Errorf("corpus %s: %w", t.corpusID, err)
		}
		wc.view = view
		watched = append(watched, wc)
	}
	return watched, nil
}

// openViews opens the views, at most maxConcurrency at a time, and returns
// those that opened. The error joins every open failure.
func (w *Watcher) openViews(ctx context.Context, watched []*watchedCorpus) ([]*watchedCorpus, error) {
	var (
		mu     sync.Mutex
		opened []*watchedCorpus
		errs   []error
	)

	g := new(errgroup.Group)
	g.SetLimit(w.maxConcurrency)
	for _, wc := range watched {
		g.Go(func() error {
			err := wc.view.Open(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.logger.Warn("corpus view not opened",
					"corpus_id", wc.target.corpusID,
					"error", err.Error(),
				)
				errs = append(errs, fmt.Errorf("corpus %s: %w", wc.target.corpusID, err))
				return nil
			}
			opened = append(opened, wc)
			return nil
		})
	}
	_ = g.Wait()

	return opened, errors.Join(errs...)
}

// consume turns completed refreshes into store updates and callback
// invocations. It is the only goroutine that runs callbacks.
func (w *Watcher) consume(updates <-chan update, stop <-chan struct{}, st store.Store) {
	lastTicks := make(map[string]int)
	lastStatus := make(map[string]Status)

	for {
		var u update
		select {
		case u = <-updates:
		case <-stop:
			return
		}

		id := u.watched.target.corpusID
		// only completed refreshes are published; snapshots may arrive out
		// of order since they are sent from the pollers' goroutines
		if u.state.Ticks <= lastTicks[id] {
			continue
		}
		lastTicks[id] = u.state.Ticks

		result := toStatusResult(u.watched.target, u.watched.view.CanEnrich(), u.state)

		// store update first, callbacks fire after data is persisted
		st.Update(toCorpusStatus(result, u.state.Version))
		for _, cb := range w.statusCallbacks {
			invokeCallbackSafe(cb, result, w.logger)
		}

		logAttrs := []any{
			"corpus_id", id,
			"name", result.Name,
			"status", result.Status,
			"error_count", result.ErrorCount,
		}
		if prev, ok := lastStatus[id]; !ok || prev != result.Status {
			w.logger.Info("corpus status changed", append(logAttrs, "previous", prev)...)
		} else {
			w.logger.Debug("corpus refreshed", logAttrs...)
		}
		lastStatus[id] = result.Status
	}
}

// Targets returns a copy of the configured targets.
func (w *Watcher) Targets() []Target {
	cp := make([]Target, len(w.targets))
	copy(cp, w.targets)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (w *Watcher) Port() int {
	return w.port
}

// PollingInterval returns the default interval between refreshes.
func (w *Watcher) PollingInterval() time.Duration {
	return w.pollingInterval
}

// viewImporter starts imports and enrichments on the open views, keyed by
// corpus id.
type viewImporter map[string]*corpus.View

func (vi viewImporter) Import(ctx context.Context, corpusID string) (string, error) {
	v, ok := vi[corpusID]
	if !ok {
		return "", fmt.Errorf("%w: %s", server.ErrUnknownCorpus, corpusID)
	}
	return v.Import(ctx)
}

func (vi viewImporter) Enrich(ctx context.Context, corpusID string, payload map[string]any) error {
	v, ok := vi[corpusID]
	if !ok {
		return fmt.Errorf("%w: %s", server.ErrUnknownCorpus, corpusID)
	}
	return v.Enrich(ctx, payload)
}

// toStatusResult converts a view's poll state to the public result type.
// Maps are copied so callbacks cannot reach into the view's state.
func toStatusResult(t Target, canEnrich bool, s poller.PollState[corpus.Detail]) StatusResult {
	r := StatusResult{
		CorpusID:   t.corpusID,
		Name:       t.displayName,
		Status:     statusOf(s),
		Labels:     copyMap(t.labels),
		CanEnrich:  canEnrich,
		ErrorCount: s.ErrorCount,
		Error:      s.LastError,
		CheckedAt:  time.Now(),
	}

	if s.HasResource {
		d := s.Resource
		if r.Name == "" {
			r.Name = d.Corpus.Name
		}
		r.Imported = d.Corpus.Imported
		r.Busy = d.Corpus.Busy
		r.TaskID = d.TaskID
		r.ErrorMessage = d.ErrorMessage
		r.Properties = copyLists(d.Properties)
		r.Subsets = copyLists(d.Subsets)
		r.QueryCounts = queryCounts(d.AvailableQueries)
		if s.ErrorCount == 0 {
			r.CheckedAt = d.FetchedAt
		}
	}
	if r.Name == "" {
		r.Name = t.corpusID
	}
	return r
}

// toCorpusStatus converts a result to the store's record. seq orders
// records from the same view.
func toCorpusStatus(r StatusResult, seq uint64) store.CorpusStatus {
	var errStr *string
	if r.Error != nil {
		s := r.Error.Error()
		errStr = &s
	}

	return store.CorpusStatus{
		ID:           r.CorpusID,
		Name:         r.Name,
		Status:       r.Status.String(),
		Labels:       r.Labels,
		Imported:     r.Imported,
		Busy:         r.Busy,
		TaskID:       r.TaskID,
		CanEnrich:    r.CanEnrich,
		ErrorCount:   r.ErrorCount,
		Error:        errStr,
		ErrorMessage: r.ErrorMessage,
		Properties:   r.Properties,
		Subsets:      r.Subsets,
		QueryCounts:  r.QueryCounts,
		CheckedAt:    r.CheckedAt,
		Seq:          seq,
	}
}

func copyLists(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = append([]string(nil), v...)
	}
	return cp
}

func queryCounts(m map[string][]backend.QuerySummary) map[string]int {
	if m == nil {
		return nil
	}
	counts := make(map[string]int, len(m))
	for atype, qs := range m {
		counts[atype] = len(qs)
	}
	return counts
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged under a correlation id but do not propagate.
func invokeCallbackSafe(cb func(StatusResult), result StatusResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"corpus_id", result.CorpusID,
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(result)
}
