package corpuswatch

import (
	"testing"
	"time"
)

func TestNewTarget_Valid(t *testing.T) {
	tg, err := NewTarget("12")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	if tg.CorpusID() != "12" {
		t.Errorf("CorpusID() = %v, want %v", tg.CorpusID(), "12")
	}
	if tg.DisplayName() != "" {
		t.Errorf("DisplayName() = %v, want empty", tg.DisplayName())
	}
	if tg.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0", tg.Interval())
	}
}

func TestNewTarget_TrimsID(t *testing.T) {
	tg, err := NewTarget("  7 ")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	if tg.CorpusID() != "7" {
		t.Errorf("CorpusID() = %q, want %q", tg.CorpusID(), "7")
	}
}

func TestNewTarget_InvalidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"path", "1/hierarchy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTarget(tt.id)
			if err == nil {
				t.Errorf("NewTarget(%q) expected error, got nil", tt.id)
			}
		})
	}
}

func TestWithDisplayName(t *testing.T) {
	tg, err := NewTarget("1", WithDisplayName("TIMIT"))
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	if tg.DisplayName() != "TIMIT" {
		t.Errorf("DisplayName() = %v, want %v", tg.DisplayName(), "TIMIT")
	}
}

func TestWithLabels(t *testing.T) {
	tg, err := NewTarget("1",
		WithLabels("lab", "phonetics", "language", "en"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	labels := tg.Labels()
	if labels["lab"] != "phonetics" {
		t.Errorf("Labels()[lab] = %v, want %v", labels["lab"], "phonetics")
	}
	if labels["language"] != "en" {
		t.Errorf("Labels()[language] = %v, want %v", labels["language"], "en")
	}
}

func TestWithLabels_OddArgs(t *testing.T) {
	_, err := NewTarget("1",
		WithLabels("lab", "phonetics", "orphan"),
	)
	if err == nil {
		t.Error("NewTarget() expected error for odd number of label args, got nil")
	}
}

func TestWithLabels_Immutability(t *testing.T) {
	tg, err := NewTarget("1", WithLabels("lab", "phonetics"))
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	// modify returned labels
	labels := tg.Labels()
	labels["lab"] = "modified"
	labels["new"] = "value"

	// original should be unchanged
	originalLabels := tg.Labels()
	if originalLabels["lab"] != "phonetics" {
		t.Error("Labels() mutation affected original target")
	}
	if _, exists := originalLabels["new"]; exists {
		t.Error("Labels() mutation added new key to original target")
	}
}

func TestWithInterval(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		wantErr bool
	}{
		{"minimum", time.Second, false},
		{"typical", 30 * time.Second, false},
		{"maximum", time.Hour, false},
		{"below minimum", 999 * time.Millisecond, true},
		{"zero", 0, true},
		{"negative", -time.Second, true},
		{"above maximum", time.Hour + time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := NewTarget("1", WithInterval(tt.d))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tg.Interval() != tt.d {
				t.Errorf("Interval() = %v, want %v", tg.Interval(), tt.d)
			}
		})
	}
}

func TestCopyMap_Nil(t *testing.T) {
	if copyMap(nil) != nil {
		t.Error("copyMap(nil) should return nil")
	}
}
