package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/citation"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/recordio"
)

// StepResult summarizes a non-LLM step.
type StepResult struct {
	Records int
	Skipped int
}

// Fixjson converts a JSON Lines store into a JSON array store. Malformed
// lines are logged and left out.
func Fixjson(in, out string) (*StepResult, error) {
	recs, bad, err := recordio.ReadJSONL(in)
	if err != nil {
		return nil, err
	}
	if err := recordio.WriteJSONArray(out, recs); err != nil {
		return nil, err
	}
	zap.L().Info("fixjson: wrote records",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("records", len(recs)),
		zap.Int("malformed", len(bad)),
	)
	return &StepResult{Records: len(recs), Skipped: len(bad)}, nil
}

// Cite links the [n] markers of the research fields to their sources and
// keeps only the fields later jobs read.
func Cite(in, out string) (*StepResult, error) {
	recs, err := recordio.ReadJSONArray(in)
	if err != nil {
		return nil, err
	}

	keep := CitedProjection()
	cited := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		p := rec.Project(keep)
		for _, k := range CitedKeys {
			if !rec.Has(k) {
				continue
			}
			p[k] = citation.RewriteText(rec.String(k), rec.String(k+model.SuffixCitationMapping))
		}
		cited = append(cited, p)
	}

	if err := recordio.WriteJSONArray(out, cited); err != nil {
		return nil, err
	}
	zap.L().Info("cite: wrote records", zap.String("output", out), zap.Int("records", len(cited)))
	return &StepResult{Records: len(cited)}, nil
}

// SeedDefaults are the review flags every record starts with.
func SeedDefaults() model.Record {
	return model.Record{
		model.FlagExclude:  false,
		model.FlagFeedback: "",
		model.FlagFlag:     false,
		model.FlagViewed:   false,
		model.FlagExported: false,
	}
}

// Seed adds the review flags to every record in the JSON array at path,
// keeping values already present. Skipped counts records that already had
// every flag.
func Seed(path string) (*StepResult, error) {
	recs, err := recordio.ReadJSONArray(path)
	if err != nil {
		return nil, err
	}

	res := &StepResult{Records: len(recs)}
	defaults := SeedDefaults()
	for _, rec := range recs {
		added := false
		for k, v := range defaults {
			if !rec.Has(k) {
				rec[k] = v
				added = true
			}
		}
		if !added {
			res.Skipped++
		}
	}

	if err := recordio.WriteJSONArray(path, recs); err != nil {
		return nil, err
	}
	zap.L().Info("seed: flags added", zap.String("path", path), zap.Int("records", res.Records), zap.Int("unchanged", res.Skipped))
	return res, nil
}
