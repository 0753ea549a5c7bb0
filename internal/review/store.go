// Package review serves the record review UI and owns every write to the
// review stores while it runs.
package review

import (
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/recordio"
)

// ErrNotFound is returned when no record carries the requested email.
var ErrNotFound = eris.New("review: record not found")

// ValidationError is a client mistake in a review request. Its message is
// returned to the caller as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation messages shared by the store and the HTTP handlers.
const (
	msgInvalidJSON    = "Invalid JSON."
	msgNoData         = "No data received."
	msgNoRecord       = "No record provided."
	msgInvalidIndex   = "Invalid record index."
	msgIndexRange     = "Record index out of range."
	msgEmailRequired  = "Record must carry a non-empty Email."
	msgRecordUpdated  = "Record updated successfully."
	msgFeedbackUpdate = "QA feedback updated successfully."
)

// Store is an ordered collection of records addressable by position and by
// Email.
type Store interface {
	List() ([]model.Record, error)
	Get(i int) (model.Record, error)
	Put(i int, rec model.Record) error
	GetByEmail(email string) (model.Record, int, error)
	PutByEmail(email string, rec model.Record) error
	// Update applies fn to the full record list and persists the result as
	// one step.
	Update(fn func([]model.Record) ([]model.Record, error)) error
}

// FileStore keeps records in a JSON array file. Every operation re-reads the
// file under a mutex and writes by atomic rename, so concurrent requests in
// one process never lose an update.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store over path. A missing file reads as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() ([]model.Record, error) {
	recs, err := recordio.ReadJSONArrayIfExists(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load %s", s.path)
	}
	return recs, nil
}

func (s *FileStore) List() ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if recs == nil && err == nil {
		recs = []model.Record{}
	}
	return recs, err
}

func (s *FileStore) Get(i int) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(recs) {
		return nil, &ValidationError{Message: msgIndexRange}
	}
	return recs[i], nil
}

// Put replaces the record at index i wholesale.
func (s *FileStore) Put(i int, rec model.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	return s.Update(func(recs []model.Record) ([]model.Record, error) {
		if i < 0 || i >= len(recs) {
			return nil, &ValidationError{Message: msgIndexRange}
		}
		recs[i] = rec
		return recs, nil
	})
}

func (s *FileStore) GetByEmail(email string) (model.Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return nil, -1, err
	}
	i := indexOf(recs, email)
	if i < 0 {
		return nil, -1, ErrNotFound
	}
	return recs[i], i, nil
}

// PutByEmail replaces the first record whose Email matches.
func (s *FileStore) PutByEmail(email string, rec model.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	return s.Update(func(recs []model.Record) ([]model.Record, error) {
		i := indexOf(recs, email)
		if i < 0 {
			return nil, ErrNotFound
		}
		recs[i] = rec
		return recs, nil
	})
}

func (s *FileStore) Update(fn func([]model.Record) ([]model.Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return err
	}
	recs, err = fn(recs)
	if err != nil {
		return err
	}
	if err := recordio.WriteJSONArray(s.path, recs); err != nil {
		return eris.Wrapf(err, "review: save %s", s.path)
	}
	return nil
}

func indexOf(recs []model.Record, email string) int {
	email = strings.TrimSpace(email)
	for i, r := range recs {
		if r.Email() == email {
			return i
		}
	}
	return -1
}

func checkRecord(rec model.Record) error {
	if len(rec) == 0 {
		return &ValidationError{Message: msgNoRecord}
	}
	if rec.Email() == "" {
		return &ValidationError{Message: msgEmailRequired}
	}
	return nil
}
