// Package recordio reads contact inputs and reads and writes the JSON, JSON
// Lines and CSV stores that pipeline stages exchange.
package recordio

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/outreach-cli/internal/model"
)

// CSVOptions configures contact CSV parsing.
type CSVOptions struct {
	// Charset names a legacy encoding (e.g. "windows-1252"). Empty means
	// UTF-8. A byte order mark always wins.
	Charset   string
	Delimiter rune
}

// decoder wraps r so that a leading BOM is stripped and the body is decoded
// from the configured charset into UTF-8.
func decoder(r io.Reader, charset string) (io.Reader, error) {
	fallback := unicode.UTF8.NewDecoder()
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unknown charset %q", charset)
		}
		fallback = enc.NewDecoder()
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback)), nil
}

// ReadContacts parses a contact CSV with a header row into records. Values
// are trimmed. Rows without an Email are skipped.
func ReadContacts(r io.Reader, opts CSVOptions) ([]model.Record, error) {
	body, err := decoder(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(body)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var out []model.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", line)
		}

		rec := make(model.Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			rec[name] = v
		}
		if rec.Email() == "" {
			zap.L().Warn("csv: skipping row with missing Email", zap.Int("line", line))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadContactsFile opens path and parses it with ReadContacts.
func ReadContactsFile(path string, opts CSVOptions) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadContacts(f, opts)
}
