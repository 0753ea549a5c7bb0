package recordio

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Sink is an append-only record store. Append must make the record durable
// before returning.
type Sink interface {
	Append(rec model.Record) error
	Close() error
}

// JSONArraySink keeps a JSON array file and rewrites it atomically on every
// append.
type JSONArraySink struct {
	path string
	recs []model.Record
}

// OpenJSONArraySink loads the existing array at path, if any.
func OpenJSONArraySink(path string) (*JSONArraySink, error) {
	recs, err := ReadJSONArrayIfExists(path)
	if err != nil {
		return nil, err
	}
	return &JSONArraySink{path: path, recs: recs}, nil
}

// Append adds rec and rewrites the file.
func (s *JSONArraySink) Append(rec model.Record) error {
	s.recs = append(s.recs, rec)
	if err := WriteJSONArray(s.path, s.recs); err != nil {
		s.recs = s.recs[:len(s.recs)-1]
		return err
	}
	return nil
}

// Records returns the records held, including those loaded at open.
func (s *JSONArraySink) Records() []model.Record { return s.recs }

func (s *JSONArraySink) Close() error { return nil }

// JSONLSink appends one JSON object per line and syncs after each.
type JSONLSink struct {
	f *os.File
}

// OpenJSONLSink opens path for appending, creating it if needed.
func OpenJSONLSink(path string) (*JSONLSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, eris.Wrapf(err, "jsonl: open %s", path)
	}
	return &JSONLSink{f: f}, nil
}

func (s *JSONLSink) Append(rec model.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "jsonl: encode record")
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "jsonl: write record")
	}
	return eris.Wrap(s.f.Sync(), "jsonl: sync")
}

func (s *JSONLSink) Close() error { return s.f.Close() }

// CSVSink appends rows projected onto fixed columns. The header is written
// only when the file is empty.
type CSVSink struct {
	f       *os.File
	w       *csv.Writer
	columns []string
}

// OpenCSVSink opens path for appending rows with the given columns.
func OpenCSVSink(path string, columns []string) (*CSVSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f), columns: columns}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "csv: stat")
	}
	if info.Size() == 0 {
		if err := s.flush(columns); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVSink) Append(rec model.Record) error {
	row := make([]string, len(s.columns))
	for i, c := range s.columns {
		row[i] = rec.String(c)
	}
	return s.flush(row)
}

func (s *CSVSink) flush(row []string) error {
	if err := s.w.Write(row); err != nil {
		return eris.Wrap(err, "csv: write row")
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	return eris.Wrap(s.f.Sync(), "csv: sync")
}

func (s *CSVSink) Close() error { return s.f.Close() }

// MultiSink appends to every sink in order.
type MultiSink []Sink

func (m MultiSink) Append(rec model.Record) error {
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openAppend opens path for appending. A file whose last line was cut off
// by a crash gets a newline first, so the next record starts on its own line.
func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if err := terminateLastLine(f); err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return f, nil
}

func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return err
	}
	return f.Sync()
}
