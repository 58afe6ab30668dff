package journal

import (
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "events")

	current := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return current }

	if err := w.Write(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(map[string]int{"seq": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"seq": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := w.PathForHour("2026-03-01-10")
	second := w.PathForHour("2026-03-01-11")
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	var seqs []int
	for _, p := range []string{first, second} {
		err := ReadFile(p, func(line json.RawMessage) error {
			var entry struct {
				Seq int `json:"seq"`
			}
			if err := json.Unmarshal(line, &entry); err != nil {
				return err
			}
			seqs = append(seqs, entry.Seq)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}

	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("seqs=%v want [1 2 3]", seqs)
	}
}
