// Package prompt renders stage templates with {name} placeholders.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

const snippetLen = 30

// TemplateError reports a brace that survived rendering. Pos is an offset
// into the rendered text when a substituted value carried the brace.
type TemplateError struct {
	Template string
	Pos      int
	Snippet  string
}

func (e *TemplateError) Error() string {
	name := e.Template
	if name == "" {
		name = "template"
	}
	return fmt.Sprintf("prompt: unresolved placeholder in %s at offset %d: %q", name, e.Pos, e.Snippet)
}

// Render substitutes every {name} in tmpl with vars[name]. A brace left in
// the result is an error, whether it came from tmpl or from a value.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	i := 0
	for i < len(tmpl) {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		open += i
		b.WriteString(tmpl[i:open])

		end := strings.IndexByte(tmpl[open+1:], '}')
		if end >= 0 {
			name := tmpl[open+1 : open+1+end]
			if val, ok := vars[name]; ok {
				b.WriteString(val)
				i = open + end + 2
				continue
			}
		}
		return "", &TemplateError{Pos: open, Snippet: snippet(tmpl, open)}
	}

	out := b.String()
	if pos := strings.IndexByte(out, '{'); pos >= 0 {
		return "", &TemplateError{Pos: pos, Snippet: snippet(out, pos)}
	}
	return out, nil
}

func snippet(s string, pos int) string {
	end := pos + snippetLen
	if end > len(s) {
		end = len(s)
	}
	return s[pos:end]
}

// Vars builds the substitution map for a record: every field stringified,
// lower-case aliases for the contact columns, then globals on top.
func Vars(rec model.Record, globals map[string]string) map[string]string {
	vars := make(map[string]string, len(rec)+len(globals)+5)
	for k, v := range rec {
		vars[k] = model.Stringify(v)
	}
	aliases := map[string]string{
		"email":      model.KeyEmail,
		"first_name": model.KeyFirstName,
		"last_name":  model.KeyLastName,
		"title":      model.KeyTitle,
		"company":    model.KeyCompany,
	}
	for alias, key := range aliases {
		if _, taken := vars[alias]; !taken {
			vars[alias] = rec.String(key)
		}
	}
	for k, v := range globals {
		vars[k] = v
	}
	return vars
}

// LoadVariables reads every regular file in dir as a global variable named
// after the file without its extension. A missing dir yields no variables.
func LoadVariables(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, eris.Wrapf(err, "prompt: read variables dir %s", dir)
	}

	vars := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "prompt: read variable %s", e.Name())
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		vars[name] = strings.TrimSpace(string(data))
	}
	return vars, nil
}

// Set holds named templates loaded from a prompts directory.
type Set struct {
	dir       string
	templates map[string]string
}

// LoadSet reads <dir>/<name>.txt for each name.
func LoadSet(dir string, names []string) (*Set, error) {
	s := &Set{dir: dir, templates: make(map[string]string, len(names))}
	for _, name := range names {
		if _, ok := s.templates[name]; ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name+".txt"))
		if err != nil {
			return nil, eris.Wrapf(err, "prompt: read template %s", name)
		}
		s.templates[name] = string(data)
	}
	return s, nil
}

// NewSet builds a Set from in-memory templates.
func NewSet(templates map[string]string) *Set {
	return &Set{templates: templates}
}

// Names lists the loaded template names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render renders the named template.
func (s *Set) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", eris.Errorf("prompt: unknown template %q", name)
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		if te, ok := err.(*TemplateError); ok {
			te.Template = name
		}
		return "", err
	}
	return out, nil
}
