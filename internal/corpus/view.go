// Package corpus implements the corpus detail view: a permission-checked,
// self-refreshing picture of one corpus on the backend.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/poller"
)

// DefaultInterval is the refresh interval when ViewOptions.Interval is zero.
const DefaultInterval = 10 * time.Second

// ErrForbidden is returned by Open when the user may not query the corpus.
var ErrForbidden = errors.New("corpus: user cannot query this corpus")

// ErrCannotEnrich is returned by Enrich when the user may not run
// enrichments on the corpus.
var ErrCannotEnrich = errors.New("corpus: user cannot enrich this corpus")

// API is the subset of the backend client the view needs.
// *backend.Client satisfies it.
type API interface {
	AuthenticationStatus(ctx context.Context) error
	CurrentUser(ctx context.Context) (backend.User, error)
	Corpus(ctx context.Context, corpusID string) (backend.Corpus, error)
	Hierarchy(ctx context.Context, corpusID string) (backend.Hierarchy, error)
	TypeQueries(ctx context.Context, corpusID, annotationType string) ([]backend.QuerySummary, error)
	ImportCorpus(ctx context.Context, corpusID string) (string, error)
	Enrich(ctx context.Context, corpusID string, payload map[string]any) error
	TaskStatus(ctx context.Context, taskID string) (backend.TaskStatus, error)
}

// Detail is everything the view knows about a corpus after one refresh.
type Detail struct {
	Corpus backend.Corpus `json:"corpus"`

	// AvailableQueries holds saved queries per annotation type. Empty until
	// the corpus is imported. A type whose list failed to load is absent.
	AvailableQueries map[string][]backend.QuerySummary `json:"available_queries,omitempty"`

	Hierarchy  *backend.Hierarchy  `json:"hierarchy,omitempty"`
	Properties map[string][]string `json:"properties,omitempty"`
	Subsets    map[string][]string `json:"subsets,omitempty"`

	// TaskID is the import task being followed, if any.
	TaskID     string              `json:"task_id,omitempty"`
	TaskStatus *backend.TaskStatus `json:"task_status,omitempty"`

	// ErrorMessage is set when the hierarchy or a saved-query list could not
	// be loaded, or the import task failed. The refresh itself still counts
	// as successful.
	ErrorMessage string `json:"error_message,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// ViewOptions configures a [View].
type ViewOptions struct {
	// Interval between refreshes. Defaults to [DefaultInterval].
	Interval time.Duration

	// Timer drives the refresh schedule. Defaults to the system timer.
	Timer poller.Timer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnUpdate receives every poll state change.
	OnUpdate func(poller.PollState[Detail])

	// Observer records tick outcomes, typically for metrics.
	Observer poller.Observer
}

// View keeps a [Detail] fresh for one corpus. It owns its poller: nothing
// else starts, reschedules or cancels it.
type View struct {
	api      API
	corpusID string
	interval time.Duration
	logger   *slog.Logger
	poller   *poller.Poller[Detail]

	mu        sync.Mutex
	canEnrich bool
	taskID    string
}

// NewView creates a closed view of corpusID. Call [View.Open] to start it.
func NewView(api API, corpusID string, opts ViewOptions) (*View, error) {
	if api == nil {
		return nil, errors.New("corpus: api is required")
	}
	if corpusID == "" {
		return nil, errors.New("corpus: corpus id is required")
	}
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("corpus: %w", poller.ErrInvalidInterval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("corpus_id", corpusID)

	v := &View{
		api:      api,
		corpusID: corpusID,
		interval: interval,
		logger:   logger,
	}
	p, err := poller.New(poller.Config[Detail]{
		Name:     corpusID,
		Fetch:    v.Refresh,
		Timer:    opts.Timer,
		Logger:   logger,
		OnUpdate: opts.OnUpdate,
		Observer: opts.Observer,
	})
	if err != nil {
		return nil, err
	}
	v.poller = p
	return v, nil
}

// CorpusID returns the id of the viewed corpus.
func (v *View) CorpusID() string {
	return v.corpusID
}

// Open checks that the user is authenticated and may query the corpus, then
// starts polling with one immediate refresh.
//
// Returns [ErrForbidden] without polling when the user lacks query access.
// A corpus that does not exist fails Open with an error matching
// backend.ErrNotFound; any other refresh failure is left to the poll cycle.
// Open on an open view does nothing. Cancelling ctx closes the view.
func (v *View) Open(ctx context.Context) error {
	if v.poller.Snapshot().Active {
		return nil
	}

	if err := v.api.AuthenticationStatus(ctx); err != nil {
		return fmt.Errorf("authentication check: %w", err)
	}
	user, err := v.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("load current user: %w", err)
	}
	perm, ok := user.Permission(v.corpusID)
	if !ok || !perm.CanQuery {
		return ErrForbidden
	}
	v.mu.Lock()
	v.canEnrich = perm.CanEnrich
	v.mu.Unlock()

	if err := v.poller.Start(ctx, v.interval); err != nil {
		return err
	}
	if err := v.poller.Tick(ctx); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			v.poller.Cancel()
			return err
		}
		v.logger.Warn("initial refresh failed", "error", err.Error())
	}
	v.logger.Info("corpus view opened",
		"user", user.Username,
		"can_enrich", perm.CanEnrich,
		"interval", v.interval.String(),
	)
	return nil
}

// CanEnrich reports whether the user may run enrichments, as recorded by Open.
func (v *View) CanEnrich() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canEnrich
}

// Snapshot returns the current poll state.
func (v *View) Snapshot() poller.PollState[Detail] {
	return v.poller.Snapshot()
}

// Done is closed when the view is closed.
func (v *View) Done() <-chan struct{} {
	return v.poller.Done()
}

// Close stops polling. It is idempotent.
func (v *View) Close() {
	v.poller.Cancel()
}

// Import starts importing the corpus and schedules an immediate refresh so
// the busy state shows up without waiting a full interval. It returns the
// backend task id, which may be empty.
//
// Returns poller.ErrNotActive if the view is not open.
func (v *View) Import(ctx context.Context) (string, error) {
	if !v.poller.Snapshot().Active {
		return "", poller.ErrNotActive
	}

	taskID, err := v.api.ImportCorpus(ctx, v.corpusID)
	if err != nil {
		return "", fmt.Errorf("import corpus %s: %w", v.corpusID, err)
	}
	v.mu.Lock()
	v.taskID = taskID
	v.mu.Unlock()
	v.logger.Info("import started", "task_id", taskID)

	// the view may have been closed while the request was in flight
	if err := v.poller.Reschedule(0); err != nil && !errors.Is(err, poller.ErrNotActive) {
		return taskID, err
	}
	return taskID, nil
}

// Enrich starts an enrichment described by payload and schedules an
// immediate refresh so the busy state shows up without waiting a full
// interval.
//
// Returns poller.ErrNotActive if the view is not open and [ErrCannotEnrich]
// if Open found the user lacks enrichment rights.
func (v *View) Enrich(ctx context.Context, payload map[string]any) error {
	if !v.poller.Snapshot().Active {
		return poller.ErrNotActive
	}
	if !v.CanEnrich() {
		return ErrCannotEnrich
	}

	if err := v.api.Enrich(ctx, v.corpusID, payload); err != nil {
		return fmt.Errorf("enrich corpus %s: %w", v.corpusID, err)
	}
	v.logger.Info("enrichment started", "enrichment_type", payload["enrichment_type"])

	if err := v.poller.Reschedule(0); err != nil && !errors.Is(err, poller.ErrNotActive) {
		return err
	}
	return nil
}

// Refresh loads the corpus and, depending on its state, its queries and
// hierarchy or the status of the running import. It is the view's poll
// fetch; calling it directly does not touch the poll state.
//
// Only a failure to load the corpus itself is an error. Hierarchy and
// saved-query failures are reported in Detail.ErrorMessage.
func (v *View) Refresh(ctx context.Context) (Detail, error) {
	c, err := v.api.Corpus(ctx, v.corpusID)
	if err != nil {
		return Detail{}, fmt.Errorf("load corpus %s: %w", v.corpusID, err)
	}

	d := Detail{Corpus: c, TaskID: v.followTask(c)}
	switch {
	case c.Imported:
		v.loadImported(ctx, &d)
	case c.Busy && d.TaskID != "":
		ts, err := v.api.TaskStatus(ctx, d.TaskID)
		if err != nil {
			v.logger.Warn("task status check failed", "task_id", d.TaskID, "error", err.Error())
			break
		}
		d.TaskStatus = &ts
		if ts.Failed() {
			d.ErrorMessage = ts.Error
		}
	}
	d.FetchedAt = time.Now()
	return d, nil
}

// followTask returns the task id to follow for c. A task the backend reports
// is adopted when none is known, and the id is dropped once c is imported.
func (v *View) followTask(c backend.Corpus) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c.Imported {
		v.taskID = ""
		return ""
	}
	if v.taskID == "" && c.CurrentTaskID != "" {
		v.taskID = c.CurrentTaskID
	}
	return v.taskID
}

func (v *View) loadImported(ctx context.Context, d *Detail) {
	queries := make([][]backend.QuerySummary, len(backend.AnnotationTypes))
	queryErrs := make([]error, len(backend.AnnotationTypes))
	var (
		hierarchy    backend.Hierarchy
		hierarchyErr error
	)

	// every load reports through the detail, none fails the group
	var g errgroup.Group
	for i, atype := range backend.AnnotationTypes {
		g.Go(func() error {
			queries[i], queryErrs[i] = v.api.TypeQueries(ctx, v.corpusID, atype)
			return nil
		})
	}
	g.Go(func() error {
		hierarchy, hierarchyErr = v.api.Hierarchy(ctx, v.corpusID)
		return nil
	})
	_ = g.Wait()

	var messages []string
	d.AvailableQueries = make(map[string][]backend.QuerySummary, len(queries))
	for i, atype := range backend.AnnotationTypes {
		if err := queryErrs[i]; err != nil {
			messages = append(messages, fmt.Sprintf("%s queries: %s", atype, errorMessage(err)))
			v.logger.Warn("saved queries load failed", "annotation_type", atype, "error", err.Error())
			continue
		}
		d.AvailableQueries[atype] = queries[i]
	}

	if hierarchyErr != nil {
		messages = append([]string{errorMessage(hierarchyErr)}, messages...)
		v.logger.Warn("hierarchy load failed", "error", hierarchyErr.Error())
		// the corpus may have changed state underneath us
		if c, err := v.api.Corpus(ctx, v.corpusID); err == nil {
			d.Corpus = c
		}
	} else {
		d.Hierarchy = &hierarchy
		d.Properties = DeriveProperties(hierarchy)
		d.Subsets = DeriveSubsets(hierarchy)
	}
	d.ErrorMessage = strings.Join(messages, "; ")
}

// errorMessage prefers the message the API sent over the wrapped error text.
func errorMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
