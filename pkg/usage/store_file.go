package usage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps records as CSV lines: day,user_id,display_name.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// singleLine keeps every record on one physical line.
func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func (s *FileStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create usage log dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{rec.Day, rec.UserID, singleLine(rec.DisplayName)}); err != nil {
		return fmt.Errorf("write usage record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush usage record: %w", err)
	}
	return nil
}

// Records returns the records for day in file order. A missing log reads as
// empty. Each line is parsed on its own, so a broken line never swallows the
// lines after it: CSV first, then a plain split for legacy unquoted lines.
func (s *FileStore) Records(day string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fields, ok := parseLine(strings.TrimRight(scanner.Text(), "\r"))
		if !ok || fields[0] != day {
			continue
		}
		out = append(out, Record{Day: fields[0], UserID: fields[1], DisplayName: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read usage log: %w", err)
	}
	return out, nil
}

const maxLineBytes = 1024 * 1024

func parseLine(line string) ([]string, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	if fields, err := r.Read(); err == nil {
		if len(fields) < 3 {
			return nil, false
		}
		return fields, true
	}
	fields := strings.SplitN(line, ",", 3)
	if len(fields) < 3 {
		return nil, false
	}
	return fields, true
}
