package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/recordio"
	"github.com/sells-group/outreach-cli/internal/review"
)

func reviewedRecords() []model.Record {
	base := func(email string) model.Record {
		return model.Record{
			"Email":                 email,
			"First Name":            "Ann",
			"Last Name":             "Lee",
			"Title":                 "CEO",
			"email_subject_extract": "Quick question",
			"email_output_final":    "<p>Hi Ann,</p><p>Loved your talk.</p>",
			"exclude":               false,
			"email_feedback":        "",
			"flag":                  false,
			"viewed":                true,
			"exported":              false,
		}
	}
	ready := base("ready@x.com")
	excluded := base("excluded@x.com")
	excluded["exclude"] = true
	withFeedback := base("feedback@x.com")
	withFeedback["email_feedback"] = "more specific"
	withFeedback["email_after_feedback"] = "<div>Hi Ann, <b>specifically</b></div>"
	withFeedback["email_subject_extract_after_feedback"] = "Your SaaStr talk"
	flagged := base("flagged@x.com")
	flagged["flag"] = true
	unviewed := base("unviewed@x.com")
	unviewed["viewed"] = false
	noViewedKey := base("noviewed@x.com")
	delete(noViewedKey, "viewed")
	noExcludeKey := base("noexclude@x.com")
	delete(noExcludeKey, "exclude")
	return []model.Record{ready, excluded, withFeedback, flagged, unviewed, noViewedKey, noExcludeKey}
}

func newStore(t *testing.T, recs []model.Record) *review.FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "review.json")
	require.NoError(t, recordio.WriteJSONArray(path, recs))
	return review.NewFileStore(path)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun_Drafts(t *testing.T) {
	st := newStore(t, reviewedRecords())
	dir := t.TempDir()

	res, err := Run(st, Drafts(), Options{Dir: dir, List: "march"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Exported)
	assert.Equal(t, []string{filepath.Join(dir, "march.csv")}, res.Files)

	rows := readCSV(t, filepath.Join(dir, "march.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Email", "First Name", "Last Name", "Person Linkedin Url", "Title", "email_subject_extract", "email_output_final"}, rows[0])
	assert.Equal(t, "ready@x.com", rows[1][0])
	assert.Equal(t, "Hi Ann,\nLoved your talk.", rows[1][6])
	assert.Equal(t, "noviewed@x.com", rows[2][0])

	recs, err := st.List()
	require.NoError(t, err)
	exported := map[string]bool{}
	for _, r := range recs {
		exported[r.Email()] = r.Bool(model.FlagExported, false)
	}
	assert.Equal(t, map[string]bool{
		"ready@x.com":     true,
		"excluded@x.com":  false,
		"feedback@x.com":  false,
		"flagged@x.com":   false,
		"unviewed@x.com":  false,
		"noviewed@x.com":  true,
		"noexclude@x.com": false,
	}, exported)
}

func TestRun_Feedback(t *testing.T) {
	st := newStore(t, reviewedRecords())
	before, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	dir := t.TempDir()

	res, err := Run(st, Feedback(), Options{Dir: dir, List: "march-feedback"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exported)

	rows := readCSV(t, filepath.Join(dir, "march-feedback.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, "email_after_feedback", rows[0][6])
	assert.Equal(t, "feedback@x.com", rows[1][0])
	assert.Equal(t, "Your SaaStr talk", rows[1][5])
	assert.Equal(t, "Hi Ann,\nspecifically", rows[1][6])

	after, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "feedback export does not modify the store")
}

func TestRun_XLSX(t *testing.T) {
	st := newStore(t, reviewedRecords())
	dir := t.TempDir()

	res, err := Run(st, Drafts(), Options{Dir: dir, List: "a-list-name-that-is-longer-than-thirty-one", Format: FormatBoth})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	f, err := xlsx.OpenFile(res.Files[1])
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Len(t, sheet.Name, maxSheetName)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Email", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "ready@x.com", sheet.Rows[1].Cells[0].String())
}

func TestRun_Errors(t *testing.T) {
	st := newStore(t, reviewedRecords())
	_, err := Run(st, Drafts(), Options{Dir: t.TempDir()})
	assert.Error(t, err)

	_, err = Run(st, Drafts(), Options{Dir: t.TempDir(), List: "x", Format: "pdf"})
	assert.Error(t, err)

	_, err = ProfileFor("contacts")
	assert.Error(t, err)
	p, err := ProfileFor("feedback")
	require.NoError(t, err)
	assert.Equal(t, "feedback", p.Name)
}

func TestRun_WriteFailureMarksNothing(t *testing.T) {
	st := newStore(t, reviewedRecords())
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Run(st, Drafts(), Options{Dir: filepath.Join(blocker, "sub"), List: "x"})
	require.Error(t, err)

	recs, err := st.List()
	require.NoError(t, err)
	for _, r := range recs {
		assert.False(t, r.Bool(model.FlagExported, false), r.Email())
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"", ""},
		{"<p>One</p><p>Two <a href=\"https://x\">[1]</a></p>", "One\nTwo\n[1]"},
		{"<ul><li>a</li>\n<li>b</li></ul>", "a\nb"},
		{"Tom &amp; Jerry <br>", "Tom & Jerry"},
	}
	for _, tt := range tests {
		got, err := HTMLToText(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
