package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "taskman/pkg/logx"
)

// fileStore appends one JSON record per line to <path>.
//
// Retention is applied when the file is reopened: if it holds more than
// Retain lines it is rewritten with the newest ones.
type fileStore struct {
	log    logx.Logger
	path   string
	retain int

	mu sync.Mutex
	f  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	if err := compactFile(path, cfg.Retain); err != nil {
		log.Warn("snapshot file compact failed", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if torn, _ := endsMidLine(path); torn {
		// Terminate a partial final record so the next append starts clean.
		_, _ = f.WriteString("\n")
	}
	return &fileStore{log: log, path: path, retain: cfg.Retain, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendSnapshot(ctx context.Context, r Record) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("snapshot file closed")
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentSnapshots(ctx context.Context, n int) ([]Record, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTail(s.path, n)
}

// readTail decodes the last n valid records of a JSON Lines file.
// Corrupt lines (e.g. a torn final write) are skipped.
func readTail(path string, n int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]Record, 0, n)
	start := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if len(ring) < n {
			ring = append(ring, r)
			continue
		}
		ring[start] = r
		start = (start + 1) % n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return append(ring[start:], ring[:start]...), nil
}

func compactFile(path string, retain int) error {
	if retain <= 0 {
		return nil
	}
	keep, err := readTail(path, retain+1)
	if err != nil || len(keep) <= retain {
		return err
	}
	keep = keep[1:]

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func endsMidLine(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return false, err
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, st.Size()-1); err != nil {
		return false, err
	}
	return b[0] != '\n', nil
}
