package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tmpl    string
		vars    map[string]string
		want    string
		wantPos int
		wantErr bool
	}{
		{
			name: "all placeholders resolved",
			tmpl: "Hi {first_name}, about {company}.",
			vars: map[string]string{"first_name": "Ada", "company": "Acme"},
			want: "Hi Ada, about Acme.",
		},
		{
			name: "repeated placeholder",
			tmpl: "{a}-{a}",
			vars: map[string]string{"a": "x"},
			want: "x-x",
		},
		{
			name: "no placeholders",
			tmpl: "plain text",
			want: "plain text",
		},
		{
			name: "names with spaces",
			tmpl: "{First Name} at {Company}",
			vars: map[string]string{"First Name": "Ada", "Company": "Acme"},
			want: "Ada at Acme",
		},
		{
			name:    "missing placeholder",
			tmpl:    "Hello {name}, welcome",
			vars:    map[string]string{},
			wantErr: true,
			wantPos: 6,
		},
		{
			name:    "unterminated brace",
			tmpl:    "ok {a} then {broken",
			vars:    map[string]string{"a": "1"},
			wantErr: true,
			wantPos: 12,
		},
		{
			name:    "stray brace",
			tmpl:    "json {",
			wantErr: true,
			wantPos: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Render(tt.tmpl, tt.vars)
			if tt.wantErr {
				var te *TemplateError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tt.wantPos, te.Pos)
				assert.Equal(t, tt.tmpl[tt.wantPos:], te.Snippet)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_BraceInValue(t *testing.T) {
	t.Parallel()

	_, err := Render("Write about {background}", map[string]string{
		"background": `uses {"json": 1} config`,
	})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, len("Write about uses "), te.Pos)
	assert.Equal(t, `{"json": 1} config`, te.Snippet)

	_, err = NewSet(map[string]string{"draft": "{a} and {b}"}).
		Render("draft", map[string]string{"a": "x", "b": "}{"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "draft", te.Template)
	assert.Equal(t, 7, te.Pos)
}

func TestRender_SnippetTruncated(t *testing.T) {
	t.Parallel()

	tmpl := "{missing_placeholder_with_a_very_long_name_indeed}"
	_, err := Render(tmpl, nil)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Len(t, te.Snippet, 30)
	assert.Equal(t, tmpl[:30], te.Snippet)
	assert.Contains(t, te.Error(), "offset 0")
}

func TestVars(t *testing.T) {
	t.Parallel()

	rec := model.Record{
		model.KeyEmail:     "a@x.com",
		model.KeyFirstName: "Ada",
		model.KeyCompany:   "Acme",
		"score":            float64(7),
		"sender":           "from record",
	}
	vars := Vars(rec, map[string]string{"sender": "global"})

	assert.Equal(t, "a@x.com", vars["email"])
	assert.Equal(t, "Ada", vars["first_name"])
	assert.Equal(t, "Ada", vars[model.KeyFirstName])
	assert.Equal(t, "Acme", vars["company"])
	assert.Equal(t, "", vars["last_name"])
	assert.Equal(t, "7", vars["score"])
	assert.Equal(t, "global", vars["sender"])
}

func TestLoadVariables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sender_name.txt"), []byte("  Blake \n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "offer.md"), []byte("free audit"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	vars, err := LoadVariables(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sender_name": "Blake", "offer": "free audit"}, vars)
}

func TestLoadVariables_MissingDir(t *testing.T) {
	t.Parallel()

	vars, err := LoadVariables(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLoadSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.txt"), []byte("Hi {first_name}"), 0o644))

	set, err := LoadSet(dir, []string{"greet", "greet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, set.Names())

	out, err := set.Render("greet", map[string]string{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out)

	_, err = set.Render("greet", map[string]string{})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "greet", te.Template)

	_, err = set.Render("other", nil)
	assert.ErrorContains(t, err, "unknown template")

	_, err = LoadSet(dir, []string{"absent"})
	assert.ErrorContains(t, err, "read template absent")
}
