package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"llm-quiz-service/internal/domain"
)

// ScoreStore owns the on-disk score file: a JSON object mapping
// user -> level -> ScoreRecord. Saves are a read-merge-write of the whole
// store, serialized by an in-process mutex plus a cross-process advisory
// lock so near-simultaneous finalizations cannot lose updates. The file is
// written to a temp file and renamed so an interrupted write never leaves a
// truncated store behind.
type ScoreStore struct {
	path  string
	mu    sync.Mutex
	flock *flock.Flock
	now   func() time.Time
}

func NewScoreStore(path string) *ScoreStore {
	return &ScoreStore{
		path:  path,
		flock: flock.New(path + ".lock"),
		now:   time.Now,
	}
}

// NewScoreStoreWithClock allows deterministic timestamps in tests.
func NewScoreStoreWithClock(path string, now func() time.Time) *ScoreStore {
	s := NewScoreStore(path)
	s.now = now
	return s
}

// Load reads the full store. A missing or corrupt file yields an empty
// store; the initial state is simply "no file yet", so this never errors.
func (s *ScoreStore) Load() map[string]map[string]domain.ScoreRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]map[string]domain.ScoreRecord{}
	}
	var store map[string]map[string]domain.ScoreRecord
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return map[string]map[string]domain.ScoreRecord{}
	}
	return store
}

// Get returns the persisted record for (user, level), if any.
func (s *ScoreStore) Get(user, level string) (domain.ScoreRecord, bool) {
	levels, ok := s.Load()[user]
	if !ok {
		return domain.ScoreRecord{}, false
	}
	record, ok := levels[level]
	return record, ok
}

// Save merges a new record at [user][level], overwriting any prior record
// for that pair, and writes the whole store back atomically. The
// load-merge-write cycle runs under the exclusive lock.
func (s *ScoreStore) Save(user, level string, score int, answers map[string]domain.Answer) (domain.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.Lock(); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("lock score file: %w", err)
	}
	defer s.flock.Unlock()

	store := s.Load()
	if _, ok := store[user]; !ok {
		store[user] = map[string]domain.ScoreRecord{}
	}
	if answers == nil {
		answers = map[string]domain.Answer{}
	}
	record := domain.ScoreRecord{
		ScoreValue: score,
		Date:       domain.ScoreTime(s.now()),
		Answers:    answers,
	}
	store[user][level] = record

	if err := s.writeAtomic(store); err != nil {
		return domain.ScoreRecord{}, err
	}
	return record, nil
}

func (s *ScoreStore) writeAtomic(store map[string]map[string]domain.ScoreRecord) error {
	data, err := json.MarshalIndent(store, "", "    ")
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".scores-*.json")
	if err != nil {
		return fmt.Errorf("create temp score file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp score file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace score file: %w", err)
	}
	return nil
}
