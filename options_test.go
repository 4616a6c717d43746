package corpuswatch

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const testBackend = "https://pgdb.example.org"

func mustTarget(t *testing.T, id string, opts ...TargetOption) Target {
	t.Helper()
	tg, err := NewTarget(id, opts...)
	if err != nil {
		t.Fatalf("NewTarget(%q) error = %v", id, err)
	}
	return tg
}

func TestNew_Valid(t *testing.T) {
	w, err := New(WithBackend(testBackend), WithTarget(mustTarget(t, "1")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(w.Targets()) != 1 {
		t.Errorf("len(Targets()) = %v, want %v", len(w.Targets()), 1)
	}
}

func TestNew_NoTargets(t *testing.T) {
	_, err := New(WithBackend(testBackend))
	if err == nil {
		t.Error("New() expected error for no targets, got nil")
	}
}

func TestNew_NoBackend(t *testing.T) {
	_, err := New(WithTarget(mustTarget(t, "1")))
	if err == nil {
		t.Fatal("New() expected error for missing backend, got nil")
	}
	if !strings.Contains(err.Error(), "backend URL is required") {
		t.Errorf("New() error = %v, want error containing 'backend URL is required'", err)
	}
}

func TestNew_InvalidBackend(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "pgdb.example.org"},
		{"ftp", "ftp://pgdb.example.org"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithBackend(tt.url), WithTarget(mustTarget(t, "1")))
			if err == nil {
				t.Errorf("New() expected error for backend %q, got nil", tt.url)
			}
		})
	}
}

func TestNew_DuplicateCorpusIDs(t *testing.T) {
	_, err := New(
		WithBackend(testBackend),
		WithTarget(mustTarget(t, "1", WithDisplayName("TIMIT"))),
		WithTarget(mustTarget(t, "1", WithDisplayName("TIMIT copy"))),
	)
	if err == nil {
		t.Fatal("New() expected error for duplicate corpus ids, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate corpus id") {
		t.Errorf("New() error = %v, want error containing 'duplicate corpus id'", err)
	}
}

func TestNew_DuplicateCorpusIDs_WithTargets(t *testing.T) {
	_, err := New(
		WithBackend(testBackend),
		WithTargets(mustTarget(t, "1"), mustTarget(t, "2"), mustTarget(t, "1")),
	)
	if err == nil {
		t.Error("New() expected error for duplicate corpus ids via WithTargets, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(WithBackend(testBackend), WithTarget(mustTarget(t, "1")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.Port() != 8080 {
		t.Errorf("Port() = %v, want %v", w.Port(), 8080)
	}
	if w.PollingInterval() != 10*time.Second {
		t.Errorf("PollingInterval() = %v, want %v", w.PollingInterval(), 10*time.Second)
	}
	if w.maxConcurrency != defaultMaxConcurrency {
		t.Errorf("maxConcurrency = %v, want %v", w.maxConcurrency, defaultMaxConcurrency)
	}
	if w.title != "" {
		t.Errorf("title = %q, want empty string", w.title)
	}
}

func TestWithTargets(t *testing.T) {
	w, err := New(
		WithBackend(testBackend),
		WithTargets(mustTarget(t, "1"), mustTarget(t, "2")),
		WithTarget(mustTarget(t, "3")),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if len(w.Targets()) != 3 {
		t.Errorf("len(Targets()) = %v, want %v", len(w.Targets()), 3)
	}
}

func TestTargets_Immutability(t *testing.T) {
	w, err := New(WithBackend(testBackend), WithTarget(mustTarget(t, "1")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	targets := w.Targets()
	targets[0] = mustTarget(t, "99")

	if w.Targets()[0].CorpusID() != "1" {
		t.Error("Targets() mutation affected original Watcher")
	}
}

func TestWithPollingInterval(t *testing.T) {
	w, err := New(
		WithBackend(testBackend),
		WithTarget(mustTarget(t, "1")),
		WithPollingInterval(30*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.PollingInterval() != 30*time.Second {
		t.Errorf("PollingInterval() = %v, want %v", w.PollingInterval(), 30*time.Second)
	}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"zero interval", WithPollingInterval(0), "polling interval must be positive"},
		{"negative interval", WithPollingInterval(-time.Second), "polling interval must be positive"},
		{"zero timeout", WithRequestTimeout(0), "request timeout must be positive"},
		{"zero port", WithPort(0), "port must be between"},
		{"port too high", WithPort(65536), "port must be between"},
		{"zero concurrency", WithMaxConcurrency(0), "max concurrency must be positive"},
		{"negative concurrency", WithMaxConcurrency(-1), "max concurrency must be positive"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
		{"empty backend", WithBackend(""), "backend URL cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(
				WithBackend(testBackend),
				WithTarget(mustTarget(t, "1")),
				tt.opt,
			)
			if err == nil {
				t.Fatalf("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithPort_ValidEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"minimum", 1},
		{"maximum", 65535},
		{"common alt", 8080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(
				WithBackend(testBackend),
				WithTarget(mustTarget(t, "1")),
				WithPort(tt.port),
			)
			if err != nil {
				t.Fatalf("New() unexpected error for port %v: %v", tt.port, err)
			}
			if w.Port() != tt.port {
				t.Errorf("Port() = %v, want %v", w.Port(), tt.port)
			}
		})
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w, err := New(
		WithBackend(testBackend),
		WithTarget(mustTarget(t, "1")),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.logger != logger {
		t.Error("WithLogger() logger was not kept")
	}
}

func TestWithTitle(t *testing.T) {
	w, err := New(
		WithBackend(testBackend),
		WithTarget(mustTarget(t, "1")),
		WithTitle("Phonetics Lab"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w.title != "Phonetics Lab" {
		t.Errorf("title = %q, want %q", w.title, "Phonetics Lab")
	}
}

func TestWithStatusCallback_NilIgnored(t *testing.T) {
	w, err := New(
		WithBackend(testBackend),
		WithTarget(mustTarget(t, "1")),
		WithStatusCallback(nil),
		WithStatusCallback(func(StatusResult) {}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(w.statusCallbacks) != 1 {
		t.Errorf("len(statusCallbacks) = %d, want 1", len(w.statusCallbacks))
	}
}
