// Package pipeline runs prompt stages over contact records and persists each
// finished record before moving on.
package pipeline

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Record filters a job can apply to its input.
const (
	FilterNone        = ""
	FilterHasFeedback = "has_feedback"
)

// Stage is one prompt applied to every record of a job.
type Stage struct {
	Name string `yaml:"name"`
	// Template names <prompts>/<template>.txt. Defaults to Name.
	Template string `yaml:"template,omitempty"`
	Model    string `yaml:"model"`
	// OutputKey is the record field written. Defaults to Name.
	OutputKey string `yaml:"output_key,omitempty"`
	MaxTokens int64  `yaml:"max_tokens,omitempty"`
	// Effort overrides the model family's reasoning effort; "none" omits it.
	Effort string `yaml:"effort,omitempty"`
	// System overrides the configured system prompt. Search stages send no
	// system message unless one is set here.
	System string `yaml:"system,omitempty"`
	// Fields fans the stage out over existing record fields: each non-empty
	// field is rendered as {content} and replaced by the completion.
	Fields []string `yaml:"fields,omitempty"`
	// Search marks a research stage whose sources are kept as citations.
	Search bool `yaml:"search,omitempty"`
}

// TemplateName returns the template file base name.
func (s Stage) TemplateName() string {
	if s.Template != "" {
		return s.Template
	}
	return s.Name
}

// Key returns the record field the stage writes.
func (s Stage) Key() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return s.Name
}

// UsageKey returns the usage counter prefix for one fan-out field.
func (s Stage) UsageKey(field string) string {
	return field + "_" + s.Name
}

// Job is a named, independently re-runnable pass over one input store.
type Job struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Input and Output are resolved against the data directory unless
	// absolute. Output may be .json (array) or .jsonl.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// RowsOutput is an optional CSV mirror of Output restricted to Columns.
	RowsOutput string   `yaml:"rows_output,omitempty"`
	Columns    []string `yaml:"columns,omitempty"`
	Filter     string   `yaml:"filter,omitempty"`
	// DropKeys are removed from each record before its stages run.
	DropKeys []string `yaml:"drop_keys,omitempty"`
	Stages   []Stage  `yaml:"stages"`
}

// TemplateNames lists the distinct templates the job renders.
func (j Job) TemplateNames() []string {
	seen := make(map[string]bool, len(j.Stages))
	var names []string
	for _, s := range j.Stages {
		n := s.TemplateName()
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// Validate checks the job for missing names, models and duplicate keys.
func (j Job) Validate() error {
	if j.Name == "" {
		return eris.New("pipeline: job without name")
	}
	if j.Input == "" || j.Output == "" {
		return eris.Errorf("pipeline: job %s: input and output are required", j.Name)
	}
	if len(j.Stages) == 0 {
		return eris.Errorf("pipeline: job %s: no stages", j.Name)
	}
	if j.RowsOutput != "" && len(j.Columns) == 0 {
		return eris.Errorf("pipeline: job %s: rows_output needs columns", j.Name)
	}
	switch j.Filter {
	case FilterNone, FilterHasFeedback:
	default:
		return eris.Errorf("pipeline: job %s: unknown filter %q", j.Name, j.Filter)
	}
	keys := make(map[string]bool, len(j.Stages))
	for i, s := range j.Stages {
		if s.Name == "" {
			return eris.Errorf("pipeline: job %s: stage %d without name", j.Name, i)
		}
		if s.Model == "" {
			return eris.Errorf("pipeline: job %s: stage %s without model", j.Name, s.Name)
		}
		if len(s.Fields) > 0 {
			continue
		}
		if keys[s.Key()] {
			return eris.Errorf("pipeline: job %s: duplicate output key %s", j.Name, s.Key())
		}
		keys[s.Key()] = true
	}
	return nil
}

// Jobs maps job names to jobs.
type Jobs map[string]Job

// Names returns the job names sorted.
func (js Jobs) Names() []string {
	names := make([]string, 0, len(js))
	for n := range js {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named job or an error listing the known names.
func (js Jobs) Get(name string) (Job, error) {
	j, ok := js[name]
	if !ok {
		return Job{}, eris.Errorf("pipeline: unknown job %q (known: %v)", name, js.Names())
	}
	return j, nil
}

const htmlSystemPrompt = "You are a converter that converts markdown to clean HTML while preserving inline citation links."

// researchColumns is the row layout of the research CSV mirror.
func researchColumns(keys ...string) []string {
	cols := append([]string{}, model.ContactColumns...)
	for _, k := range keys {
		cols = append(cols, k, k+model.SuffixCitations, k+model.SuffixCitationMapping)
	}
	return append(cols, model.KeyTotalCost)
}

// draftStageKeys are the outputs of the draft job, in stage order.
var draftStageKeys = []string{
	"company_background",
	"most_relevant_topic",
	"researching_topic",
	"relevant_painpoint",
	"why_them",
	"email_body",
	"email_output_final",
	"email_subject",
	"email_subject_extract",
}

// draftUsageKeys are the draft usage counters dropped before deduplication.
func draftUsageKeys() []string {
	var keys []string
	for _, k := range []string{"email_subject", "most_relevant_topic", "researching_topic", "relevant_painpoint", "email_body"} {
		keys = append(keys, model.UsageKeys(k)...)
	}
	return append(keys, model.KeyTotalCost)
}

// DefaultJobs returns the built-in five-job table.
func DefaultJobs() Jobs {
	draftColumns := []string{
		model.KeyFirstName, model.KeyLastName, model.KeyTitle, model.KeyCompany,
		model.KeyWebsite, model.KeyCompanyLinkedin, model.KeyFacebook, model.KeyEmail, model.KeyPersonLinkedin,
		"most_relevant_topic", "researching_topic", "relevant_painpoint", "email_body", "email_subject_extract", "email_subject",
		"background", "background_citation_mapping", "engagements_combined", "engagements_combined_citation_mapping",
		"roles_and_responsibilities", "roles_and_responsibilities_citation_mapping",
		model.KeyTotalCost,
	}

	return Jobs{
		"research": {
			Name:        "research",
			Description: "Search the web for each contact's engagements, role and background",
			Input:       "contacts.csv",
			Output:      "research.jsonl",
			RowsOutput:  "research.csv",
			Columns:     researchColumns("engagements_combined", "roles_and_responsibilities", "background"),
			Stages: []Stage{
				{Name: "engagements_combined", Model: "sonar-reasoning-pro", MaxTokens: 4000, Search: true},
				{Name: "roles_and_responsibilities", Model: "sonar", MaxTokens: 2000, Search: true},
				{Name: "background", Model: "sonar-pro", MaxTokens: 10000, Search: true},
			},
		},
		"draft": {
			Name:        "draft",
			Description: "Draft the outreach email from the research",
			Input:       "research.json",
			Output:      "drafts.json",
			RowsOutput:  "drafts.csv",
			Columns:     draftColumns,
			Stages: []Stage{
				{Name: "company_background", Model: "gpt-4o"},
				{Name: "most_relevant_topic", Model: "o3-mini", MaxTokens: 10000},
				{Name: "researching_topic", Model: "o3-mini", MaxTokens: 10000},
				{Name: "relevant_painpoint", Model: "o3-mini", MaxTokens: 10000},
				{Name: "why_them", Model: "o1", MaxTokens: 10000},
				{Name: "email_body", Model: "o1", MaxTokens: 10000},
				{Name: "email_output_final", Model: "o1", MaxTokens: 10000},
				{Name: "email_subject", Model: "o3-mini", MaxTokens: 4000},
				{Name: "email_subject_extract", Model: "gpt-4o"},
			},
		},
		"dedupe": {
			Name:        "dedupe",
			Description: "Merge the research blocks into one deduplicated prospect summary",
			Input:       "cited.json",
			Output:      "deduped.json",
			DropKeys:    draftUsageKeys(),
			Stages: []Stage{
				{Name: "prospect_info", Model: "o3-mini", MaxTokens: 10000, Effort: "none"},
			},
		},
		"html": {
			Name:        "html",
			Description: "Convert markdown content fields to HTML for review",
			Input:       "deduped.json",
			Output:      "review.json",
			Stages: []Stage{
				{
					Name:      "html",
					Model:     "o3-mini",
					MaxTokens: 10000,
					Effort:    "none",
					System:    htmlSystemPrompt,
					Fields: []string{
						"company_background",
						"engagements_combined",
						"roles_and_responsibilities",
						"background",
						"prospect_info",
					},
				},
			},
		},
		"feedback": {
			Name:        "feedback",
			Description: "Regenerate content for records with reviewer feedback",
			Input:       "review.json",
			Output:      "feedback.json",
			Filter:      FilterHasFeedback,
			Stages: []Stage{
				{Name: "content_after_feedback", Model: "o1", MaxTokens: 10000},
				{Name: "email_after_feedback", Model: "o1", MaxTokens: 10000},
				{Name: "email_subject_after_feedback", Model: "o3-mini", MaxTokens: 4000},
				{Name: "email_subject_extract_after_feedback", Model: "gpt-4o"},
			},
		},
	}
}

// CitedKeys are the research fields whose [n] markers the cite step links.
var CitedKeys = []string{"engagements_combined", "background", "roles_and_responsibilities"}

// CitedProjection is the field set kept by the cite step.
func CitedProjection() []string {
	keys := append([]string{}, model.ContactColumns...)
	keys = append(keys, "company_background", "engagements_combined", "roles_and_responsibilities", "background")
	for _, k := range draftStageKeys[1:] {
		if k == "why_them" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

type jobsFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobs returns DefaultJobs with the jobs from a YAML file added or
// replaced by name. An empty path returns the defaults.
func LoadJobs(path string) (Jobs, error) {
	jobs := DefaultJobs()
	if path == "" {
		return jobs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read jobs file %s", path)
	}
	var f jobsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse jobs file %s", path)
	}
	for _, j := range f.Jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
		jobs[j.Name] = j
	}
	return jobs, nil
}
