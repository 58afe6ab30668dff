package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ReadFile decodes every line of a journal file, calling fn with the raw
// JSON of each entry.
func ReadFile(path string, fn func(line json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
