// Package export writes reviewed records out as contact-list files for the
// sequencing tool.
package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/recordio"
	"github.com/sells-group/outreach-cli/internal/review"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatBoth = "both"
)

// Column maps a record key to an export header. HTML columns are flattened
// to plain text.
type Column struct {
	Header string
	Key    string
	HTML   bool
}

// Profile selects and shapes the records of one export.
type Profile struct {
	Name    string
	Include func(model.Record) bool
	Columns []Column
	// MarkExported sets exported=true on every written record.
	MarkExported bool
}

func contactColumns() []Column {
	return []Column{
		{Header: model.KeyEmail, Key: model.KeyEmail},
		{Header: model.KeyFirstName, Key: model.KeyFirstName},
		{Header: model.KeyLastName, Key: model.KeyLastName},
		{Header: model.KeyPersonLinkedin, Key: model.KeyPersonLinkedin},
		{Header: model.KeyTitle, Key: model.KeyTitle},
	}
}

// Drafts exports reviewed drafts that need no rework: not excluded, no
// feedback, not flagged, and viewed. A record without an exclude flag counts
// as excluded; one without a viewed flag counts as viewed.
func Drafts() Profile {
	return Profile{
		Name: "drafts",
		Include: func(r model.Record) bool {
			return !r.Bool(model.FlagExclude, true) &&
				strings.TrimSpace(r.String(model.FlagFeedback)) == "" &&
				!r.Bool(model.FlagFlag, false) &&
				r.Bool(model.FlagViewed, true)
		},
		Columns: append(contactColumns(),
			Column{Header: "email_subject_extract", Key: "email_subject_extract"},
			Column{Header: "email_output_final", Key: "email_output_final", HTML: true},
		),
		MarkExported: true,
	}
}

// Feedback exports regenerated emails for records that carried feedback.
func Feedback() Profile {
	return Profile{
		Name: "feedback",
		Include: func(r model.Record) bool {
			return !r.Bool(model.FlagExclude, true) &&
				strings.TrimSpace(r.String(model.FlagFeedback)) != ""
		},
		Columns: append(contactColumns(),
			Column{Header: "email_subject_extract_after_feedback", Key: "email_subject_extract_after_feedback"},
			Column{Header: "email_after_feedback", Key: "email_after_feedback", HTML: true},
		),
	}
}

// ProfileFor returns the named profile.
func ProfileFor(name string) (Profile, error) {
	switch name {
	case "drafts":
		return Drafts(), nil
	case "feedback":
		return Feedback(), nil
	default:
		return Profile{}, eris.Errorf("export: unknown profile %q (want drafts or feedback)", name)
	}
}

// Options names the export destination.
type Options struct {
	Dir    string
	List   string
	Format string
}

// Result reports what was written.
type Result struct {
	Files    []string
	Exported int
}

// Run writes the records of st selected by p to <dir>/<list>.<ext>. For
// profiles that mark records, the files are written and the flags saved in
// one store update, so a failed write leaves no record marked.
func Run(st review.Store, p Profile, opts Options) (*Result, error) {
	if opts.List == "" {
		return nil, eris.New("export: list name is required")
	}
	format := opts.Format
	if format == "" {
		format = FormatCSV
	}
	switch format {
	case FormatCSV, FormatXLSX, FormatBoth:
	default:
		return nil, eris.Errorf("export: unknown format %q", format)
	}

	res := &Result{}
	write := func(recs []model.Record) ([]model.Record, error) {
		var selected []model.Record
		for _, r := range recs {
			if p.Include(r) {
				selected = append(selected, r)
			}
		}
		rows, err := p.rows(selected)
		if err != nil {
			return nil, err
		}
		files, err := writeFiles(opts.Dir, opts.List, format, rows)
		if err != nil {
			return nil, err
		}
		if p.MarkExported {
			for _, r := range selected {
				r[model.FlagExported] = true
			}
		}
		res.Files = files
		res.Exported = len(selected)
		return recs, nil
	}

	if p.MarkExported {
		if err := st.Update(write); err != nil {
			return nil, err
		}
	} else {
		recs, err := st.List()
		if err != nil {
			return nil, err
		}
		if _, err := write(recs); err != nil {
			return nil, err
		}
	}

	zap.L().Info("export: wrote list",
		zap.String("profile", p.Name),
		zap.String("list", opts.List),
		zap.Int("records", res.Exported),
		zap.Strings("files", res.Files),
	)
	return res, nil
}

// rows renders the header and one row per record.
func (p Profile) rows(recs []model.Record) ([][]string, error) {
	header := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		header[i] = c.Header
	}
	out := [][]string{header}
	for _, r := range recs {
		row := make([]string, len(p.Columns))
		for i, c := range p.Columns {
			v := r.String(c.Key)
			if c.HTML {
				text, err := HTMLToText(v)
				if err != nil {
					return nil, eris.Wrapf(err, "export: %s field %s", r.Email(), c.Key)
				}
				v = text
			}
			row[i] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func writeFiles(dir, list, format string, rows [][]string) ([]string, error) {
	var files []string
	if format == FormatCSV || format == FormatBoth {
		path := filepath.Join(dir, list+".csv")
		if err := writeCSV(path, rows); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	if format == FormatXLSX || format == FormatBoth {
		path := filepath.Join(dir, list+".xlsx")
		if err := writeXLSX(path, list, rows); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func writeCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: encode csv")
	}
	return recordio.WriteFileAtomic(path, buf.Bytes())
}

// xlsx sheet names are limited to 31 characters.
const maxSheetName = 31

func writeXLSX(path, sheetName string, rows [][]string) error {
	if len(sheetName) > maxSheetName {
		sheetName = sheetName[:maxSheetName]
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return eris.Wrap(err, "export: encode xlsx")
	}
	return recordio.WriteFileAtomic(path, buf.Bytes())
}

// HTMLToText returns the text nodes of an HTML fragment, trimmed and joined
// by newlines. Plain text passes through unchanged.
func HTMLToText(fragment string) (string, error) {
	if !strings.Contains(fragment, "<") {
		return fragment, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", eris.Wrap(err, "export: parse html")
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Selection.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n"), nil
}
