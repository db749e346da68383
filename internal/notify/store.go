package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "roombot/pkg/logx"
)

// ErrStorage marks load/save failures so callers can distinguish persistence
// trouble from delivery trouble.
var ErrStorage = errors.New("notification storage error")

// Store persists the full record set as one snapshot. Save replaces the
// whole set atomically; partial writes are never observable.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// FileStore keeps records in a single JSON file. Writes go through a temp
// file in the same directory followed by rename, so readers see either the
// old snapshot or the new one.
type FileStore struct {
	mu         sync.Mutex
	path       string
	legacyPath string
	log        logx.Logger
}

func NewFileStore(path, legacyPath string, log logx.Logger) *FileStore {
	return &FileStore{path: path, legacyPath: legacyPath, log: log}
}

func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readRecordFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStorage, s.path, err)
	}

	// One-time migration source: records that predate the current file live
	// in the legacy file and are merged by id, current file winning.
	if s.legacyPath != "" {
		legacy, lerr := readRecordFile(s.legacyPath)
		if lerr != nil {
			s.log.Warn("legacy notification file unreadable, skipping",
				logx.String("path", s.legacyPath), logx.Err(lerr))
		} else if len(legacy) > 0 {
			records = mergeByID(records, legacy)
		}
	}
	return records, nil
}

func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrStorage, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrStorage, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	serr := tmp.Sync()
	cerr := tmp.Close()
	if werr != nil || serr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write temp: %v", ErrStorage, errors.Join(werr, serr, cerr))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrStorage, err)
	}
	return nil
}

// readRecordFile returns an empty set when the file does not exist yet.
func readRecordFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func mergeByID(primary, secondary []Record) []Record {
	seen := make(map[string]struct{}, len(primary))
	for _, r := range primary {
		seen[r.ID] = struct{}{}
	}
	for _, r := range secondary {
		if _, ok := seen[r.ID]; !ok {
			primary = append(primary, r)
		}
	}
	return primary
}
