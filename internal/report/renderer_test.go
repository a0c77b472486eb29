package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
)

func renderedText(t *testing.T, path string) string {
	t.Helper()
	f, r, err := pdf.Open(path)
	if err != nil {
		t.Fatalf("open pdf: %v", err)
	}
	defer f.Close()
	reader, err := r.GetPlainText()
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		t.Fatalf("read text: %v", err)
	}
	return buf.String()
}

func TestRenderWritesReadablePDF(t *testing.T) {
	r := New(t.TempDir())

	summary := "## Key Accomplishments\n- Shipped the importer\n\n## Issues & Blockers\nNothing major today.\n"
	path, err := r.Render(summary, Meta{
		ID:           "sum-001",
		Type:         "EOD",
		Style:        "technical",
		GeneratedAt:  time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC),
		MessageCount: 12,
		Channels:     []string{"general", "dev"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if path != r.Path("sum-001") {
		t.Errorf("path = %q, want %q", path, r.Path("sum-001"))
	}
	if filepath.Dir(path) != r.Dir() {
		t.Errorf("report written outside reports dir: %q", path)
	}

	text := renderedText(t, path)
	for _, want := range []string{"EOD Summary", "Key Accomplishments", "Shipped the importer", "Nothing major today."} {
		if !strings.Contains(text, want) {
			t.Errorf("pdf text missing %q", want)
		}
	}
}

func TestRenderCreatesReportsDir(t *testing.T) {
	dataDir := t.TempDir()
	r := New(dataDir)
	if _, err := os.Stat(r.Dir()); !os.IsNotExist(err) {
		t.Fatal("reports dir should not exist before first render")
	}
	if _, err := r.Render("hello", Meta{ID: "sum-002", Type: "EOW", GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(r.Path("sum-002")); err != nil {
		t.Fatalf("rendered file missing: %v", err)
	}
}

func TestRenderOverwritesExisting(t *testing.T) {
	r := New(t.TempDir())
	meta := Meta{ID: "sum-003", Type: "EOD", GeneratedAt: time.Now()}
	if _, err := r.Render("first pass", meta); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := r.Render("second pass", meta); err != nil {
		t.Fatalf("Render again: %v", err)
	}
	text := renderedText(t, r.Path("sum-003"))
	if !strings.Contains(text, "second pass") {
		t.Error("second render should replace the file")
	}
}
