package corpuswatch

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/corpus"
	"github.com/jpalmerr/corpuswatch/internal/poller"
)

func stateWith(c backend.Corpus, errorCount int) poller.PollState[corpus.Detail] {
	return poller.PollState[corpus.Detail]{
		Name:        "1",
		Active:      true,
		ErrorCount:  errorCount,
		Resource:    corpus.Detail{Corpus: c},
		HasResource: true,
		Ticks:       1,
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name  string
		state poller.PollState[corpus.Detail]
		want  Status
	}{
		{"no refresh yet", poller.PollState[corpus.Detail]{Active: true}, StatusUnknown},
		{"first refresh failed", poller.PollState[corpus.Detail]{Active: true, ErrorCount: 1}, StatusUnreachable},
		{"not imported", stateWith(backend.Corpus{}, 0), StatusNotImported},
		{"importing", stateWith(backend.Corpus{Busy: true}, 0), StatusImporting},
		{"ready", stateWith(backend.Corpus{Imported: true}, 0), StatusReady},
		{"busy", stateWith(backend.Corpus{Imported: true, Busy: true}, 0), StatusBusy},
		{"failing keeps last data", stateWith(backend.Corpus{Imported: true}, 2), StatusUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.state); got != tt.want {
				t.Errorf("statusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	if StatusNotImported.String() != "not_imported" {
		t.Errorf("String() = %q, want %q", StatusNotImported.String(), "not_imported")
	}
}

func TestToStatusResult(t *testing.T) {
	fetched := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := stateWith(backend.Corpus{ID: 1, Name: "timit", Imported: true}, 0)
	s.Resource.FetchedAt = fetched
	s.Resource.Properties = map[string][]string{"word": {"label"}}
	s.Resource.Subsets = map[string][]string{"phone": {}}
	s.Resource.AvailableQueries = map[string][]backend.QuerySummary{
		"word":  {{ID: 1, Name: "vowels"}, {ID: 2, Name: "stops"}},
		"phone": nil,
	}

	tg := mustTarget(t, "1", WithLabels("lab", "phonetics"))
	r := toStatusResult(tg, true, s)

	if r.Name != "timit" {
		t.Errorf("Name = %q, want backend name %q", r.Name, "timit")
	}
	if r.Status != StatusReady {
		t.Errorf("Status = %v, want %v", r.Status, StatusReady)
	}
	if !r.Imported || r.Busy {
		t.Errorf("Imported, Busy = %v, %v, want true, false", r.Imported, r.Busy)
	}
	if !r.CanEnrich {
		t.Error("CanEnrich = false, want true")
	}
	if !r.CheckedAt.Equal(fetched) {
		t.Errorf("CheckedAt = %v, want %v", r.CheckedAt, fetched)
	}
	if r.QueryCounts["word"] != 2 || r.QueryCounts["phone"] != 0 {
		t.Errorf("QueryCounts = %v, want word=2 phone=0", r.QueryCounts)
	}
	if r.Labels["lab"] != "phonetics" {
		t.Errorf("Labels[lab] = %q, want %q", r.Labels["lab"], "phonetics")
	}

	// results own their maps
	r.Properties["word"][0] = "mutated"
	r.Labels["lab"] = "mutated"
	if s.Resource.Properties["word"][0] != "label" {
		t.Error("mutating the result changed the view's properties")
	}
	if tg.Labels()["lab"] != "phonetics" {
		t.Error("mutating the result changed the target's labels")
	}
}

func TestToStatusResult_NameFallback(t *testing.T) {
	// display name wins over the backend name
	s := stateWith(backend.Corpus{Name: "timit"}, 0)
	r := toStatusResult(mustTarget(t, "1", WithDisplayName("TIMIT")), false, s)
	if r.Name != "TIMIT" {
		t.Errorf("Name = %q, want %q", r.Name, "TIMIT")
	}

	// without any name the corpus id is shown
	r = toStatusResult(mustTarget(t, "5"), false, poller.PollState[corpus.Detail]{ErrorCount: 1})
	if r.Name != "5" {
		t.Errorf("Name = %q, want %q", r.Name, "5")
	}
	if r.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set for failed refreshes")
	}
}

func TestToCorpusStatus(t *testing.T) {
	r := StatusResult{
		CorpusID:   "1",
		Name:       "timit",
		Status:     StatusUnreachable,
		ErrorCount: 3,
		Error:      errors.New("database is restarting"),
	}

	cs := toCorpusStatus(r, 42)
	if cs.ID != "1" || cs.Status != "unreachable" {
		t.Errorf("ID, Status = %q, %q, want 1, unreachable", cs.ID, cs.Status)
	}
	if cs.Error == nil || *cs.Error != "database is restarting" {
		t.Errorf("Error = %v, want database is restarting", cs.Error)
	}
	if cs.Seq != 42 {
		t.Errorf("Seq = %d, want 42", cs.Seq)
	}

	r.Error = nil
	if cs := toCorpusStatus(r, 43); cs.Error != nil {
		t.Errorf("Error = %v, want nil", *cs.Error)
	}
}

func TestInvokeCallbackSafe_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	invokeCallbackSafe(func(StatusResult) {
		panic("intentional test panic")
	}, StatusResult{CorpusID: "1"}, logger)

	out := buf.String()
	if !strings.Contains(out, "status callback panicked") {
		t.Errorf("panic should have been logged, got %q", out)
	}
	if !strings.Contains(out, "correlation_id=") {
		t.Errorf("log should carry a correlation id, got %q", out)
	}
}
