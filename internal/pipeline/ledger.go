package pipeline

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/recordio"
)

// Ledger is the set of emails already present in a job's output store.
type Ledger struct {
	done map[string]bool
}

// NewLedger builds a ledger from existing output records.
func NewLedger(recs []model.Record) *Ledger {
	l := &Ledger{done: make(map[string]bool, len(recs))}
	for _, r := range recs {
		l.Mark(r.Email())
	}
	return l
}

// LoadLedger reads the output store at path. A missing store yields an
// empty ledger.
func LoadLedger(path string) (*Ledger, error) {
	recs, err := readOutput(path)
	if err != nil {
		return nil, err
	}
	return NewLedger(recs), nil
}

func readOutput(path string) ([]model.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		recs, _, err := recordio.ReadJSONL(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return recs, err
	}
	return recordio.ReadJSONArrayIfExists(path)
}

// Done reports whether email has been processed.
func (l *Ledger) Done(email string) bool {
	return l.done[email]
}

// Mark records email as processed.
func (l *Ledger) Mark(email string) {
	if email != "" {
		l.done[email] = true
	}
}

// Len returns the number of processed emails.
func (l *Ledger) Len() int { return len(l.done) }

// Pending returns the records not yet processed, in input order.
func (l *Ledger) Pending(recs []model.Record) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if !l.Done(r.Email()) {
			out = append(out, r)
		}
	}
	return out
}
