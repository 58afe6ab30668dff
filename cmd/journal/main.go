// Command journal prints the world events recorded in journal files,
// optionally filtered by event type or user.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"corridor-server/internal/journal"
	"corridor-server/internal/notify"
)

func main() {
	var (
		dir       = flag.String("dir", "data/journal", "journal directory")
		prefix    = flag.String("prefix", "events", "journal file prefix")
		eventType = flag.String("type", "", "only print events of this type")
		userID    = flag.Int64("user", 0, "only print events addressed to this user")
		raw       = flag.Bool("raw", false, "print the stored JSON line")
	)
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*dir, *prefix+"-*.jsonl.zst"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	// hour stamps sort lexically
	sort.Strings(files)

	var shown, total int
	for _, path := range files {
		err := journal.ReadFile(path, func(line json.RawMessage) error {
			total++
			var ev notify.Event
			if err := json.Unmarshal(line, &ev); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if !matches(ev, notify.EventType(*eventType), *userID) {
				return nil
			}
			shown++
			if *raw {
				fmt.Println(string(line))
				return nil
			}
			fmt.Println(summary(ev))
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "%d of %d events from %d files\n", shown, total, len(files))
}

func matches(ev notify.Event, eventType notify.EventType, userID int64) bool {
	if eventType != "" && ev.Type != eventType {
		return false
	}
	if userID == 0 {
		return true
	}
	if ev.UserID == userID {
		return true
	}
	for _, id := range ev.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func summary(ev notify.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-18s", ev.At.Format("2006-01-02 15:04:05"), ev.Type)
	switch {
	case ev.ChannelID != "":
		fmt.Fprintf(&b, " channel=%s", ev.ChannelID)
	case ev.LocationID != 0:
		fmt.Fprintf(&b, " location=%d", ev.LocationID)
	case ev.UserID != 0:
		fmt.Fprintf(&b, " user=%d", ev.UserID)
	}
	if ev.Payload != nil && ev.Payload.Title != "" {
		fmt.Fprintf(&b, " %q", ev.Payload.Title)
	}
	return b.String()
}
