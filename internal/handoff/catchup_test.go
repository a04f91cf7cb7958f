package handoff

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func writeFailoverFile(t *testing.T, dir, name string, hits []*hit.Hit, extraLines ...string) {
	t.Helper()
	var data []byte
	for _, h := range hits {
		line, err := json.Marshal(h)
		if err != nil {
			t.Fatal(err)
		}
		data = append(data, line...)
		data = append(data, '\n')
	}
	for _, l := range extraLines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileName_DailyRoll(t *testing.T) {
	ts := time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC)
	if got := FileName(ts); got != "failover_2026_03_05.jsonl" {
		t.Errorf("FileName = %q", got)
	}
	// Local times normalize to UTC before naming.
	loc := time.FixedZone("plus5", 5*3600)
	if got := FileName(time.Date(2026, 3, 6, 2, 0, 0, 0, loc)); got != "failover_2026_03_05.jsonl" {
		t.Errorf("FileName(local) = %q", got)
	}
}

func TestCatchup_ReplaysAndArchives(t *testing.T) {
	dir := t.TempDir()
	yesterday := FileName(time.Now().UTC().AddDate(0, 0, -1))
	hits := []*hit.Hit{
		{CompanyID: "acme", PixelID: "1", Address: "1.1.1.1"},
		{CompanyID: "acme", PixelID: "2", Address: "2.2.2.2"},
	}
	writeFailoverFile(t, dir, yesterday, hits, "not json at all")

	out := NewQueue("test", 16)
	c := NewCatchup(dir, time.Hour, false, out, zap.NewNop())
	c.scan(context.Background())

	if out.Len() != 2 {
		t.Fatalf("replayed %d hits, want 2", out.Len())
	}
	h, _ := out.TryDequeue()
	if h.PixelID != "1" {
		t.Errorf("first replayed hit = %q", h.PixelID)
	}

	// Source gone, archive copy present.
	if _, err := os.Stat(filepath.Join(dir, yesterday)); !os.IsNotExist(err) {
		t.Error("replayed file should be moved out of the failover directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", yesterday)); err != nil {
		t.Errorf("archive copy missing: %v", err)
	}
}

func TestCatchup_CompressedArchive(t *testing.T) {
	dir := t.TempDir()
	yesterday := FileName(time.Now().UTC().AddDate(0, 0, -1))
	writeFailoverFile(t, dir, yesterday, []*hit.Hit{{PixelID: "1"}})

	out := NewQueue("test", 16)
	c := NewCatchup(dir, time.Hour, true, out, zap.NewNop())
	c.scan(context.Background())

	if _, err := os.Stat(filepath.Join(dir, "archive", yesterday+".zst")); err != nil {
		t.Errorf("compressed archive missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, yesterday)); !os.IsNotExist(err) {
		t.Error("source file should be removed after compression")
	}
}

func TestCatchup_SkipsTodaysFile(t *testing.T) {
	dir := t.TempDir()
	today := FileName(time.Now())
	writeFailoverFile(t, dir, today, []*hit.Hit{{PixelID: "1"}})

	out := NewQueue("test", 16)
	c := NewCatchup(dir, time.Hour, false, out, zap.NewNop())
	c.scan(context.Background())

	if out.Len() != 0 {
		t.Error("today's file may still be written to and must not be replayed")
	}
	if _, err := os.Stat(filepath.Join(dir, today)); err != nil {
		t.Errorf("today's file must be left in place: %v", err)
	}
}

func TestCatchup_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := NewQueue("test", 16)
	c := NewCatchup(dir, time.Hour, false, out, zap.NewNop())
	c.scan(context.Background())

	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("foreign file must be untouched: %v", err)
	}
}

func TestCatchup_MissingDirIsQuiet(t *testing.T) {
	out := NewQueue("test", 16)
	c := NewCatchup(filepath.Join(t.TempDir(), "nope"), time.Hour, false, out, zap.NewNop())
	c.scan(context.Background()) // must not panic
}

func TestSpillThenCatchup_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewSpill(dir, 16, zap.NewNop())

	received := time.Now().UTC().AddDate(0, 0, -1)
	for i := 0; i < 5; i++ {
		s.Enqueue(&hit.Hit{CompanyID: "acme", PixelID: "p", Address: "9.9.9.9", ReceivedAt: received})
	}
	s.Close()

	ctx := context.Background()
	s.Run(ctx, time.Second) // consumes until close, then drains

	out := NewQueue("test", 16)
	c := NewCatchup(dir, time.Hour, false, out, zap.NewNop())
	c.scan(ctx)

	if out.Len() != 5 {
		t.Fatalf("round trip recovered %d hits, want 5", out.Len())
	}
	h, _ := out.TryDequeue()
	if h.CompanyID != "acme" || h.Address != "9.9.9.9" {
		t.Errorf("recovered hit mismatch: %+v", h)
	}
	if !h.ReceivedAt.Equal(received) {
		t.Errorf("receivedAt lost in round trip: %v != %v", h.ReceivedAt, received)
	}
}
