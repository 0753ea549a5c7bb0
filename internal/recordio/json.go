package recordio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ParseError is a malformed line met while recovering a JSON Lines file.
// The line is skipped.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadJSONArray decodes a file holding a JSON array of records. A missing
// file returns an error matching fs.ErrNotExist.
func ReadJSONArray(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "json: read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var recs []model.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrapf(err, "json: decode %s", path)
	}
	return recs, nil
}

// ReadJSONArrayIfExists is ReadJSONArray that treats a missing file as empty.
func ReadJSONArrayIfExists(path string) ([]model.Record, error) {
	recs, err := ReadJSONArray(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return recs, err
}

// ReadJSONL reads a JSON Lines file. Blank lines and lines starting with //
// are ignored. Lines that do not decode to an object are skipped and returned
// as ParseErrors.
func ReadJSONL(path string) ([]model.Record, []*ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "jsonl: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	recs, bad, err := DecodeJSONL(f, path)
	return recs, bad, err
}

// DecodeJSONL is ReadJSONL over a reader. name labels ParseErrors.
func DecodeJSONL(r io.Reader, name string) ([]model.Record, []*ParseError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var (
		recs []model.Record
		bad  []*ParseError
	)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec == nil {
			if err == nil {
				err = errors.New("not a JSON object")
			}
			pe := &ParseError{Path: name, Line: n, Err: err}
			zap.L().Warn("jsonl: skipping malformed line", zap.String("path", name), zap.Int("line", n), zap.Error(err))
			bad = append(bad, pe)
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "jsonl: scan %s", name)
	}
	return recs, bad, nil
}

// ReadRecords loads an input store, choosing the format by extension:
// .csv is a contact export, .jsonl is JSON Lines, anything else a JSON array.
func ReadRecords(path string, opts CSVOptions) ([]model.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadContactsFile(path, opts)
	case ".jsonl":
		recs, _, err := ReadJSONL(path)
		return recs, err
	default:
		return ReadJSONArray(path)
	}
}

// MarshalRecords renders records as an indented JSON array without HTML
// escaping, since record values routinely carry markup.
func MarshalRecords(recs []model.Record) ([]byte, error) {
	if recs == nil {
		recs = []model.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return nil, eris.Wrap(err, "json: encode records")
	}
	return buf.Bytes(), nil
}

// WriteJSONArray replaces path with recs. The file is written to a sibling
// temp file, synced, then renamed over the target, so readers see either the
// old or the new array.
func WriteJSONArray(path string, recs []model.Record) error {
	data, err := MarshalRecords(recs)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via temp file and rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "json: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "json: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "json: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "json: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "json: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "json: rename into %s", path)
	}
	return nil
}
