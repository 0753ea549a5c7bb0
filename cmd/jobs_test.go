package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/pipeline"
)

func TestFormatJobs(t *testing.T) {
	var buf bytes.Buffer
	formatJobs(&buf, pipeline.DefaultJobs())

	output := buf.String()
	assert.Contains(t, output, "research")
	assert.Contains(t, output, "contacts.csv -> research.jsonl")
	assert.Contains(t, output, "sonar-reasoning-pro")
	assert.Contains(t, output, "search")
	assert.Contains(t, output, "company_background,engagements_combined")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("dedupe")), bytes.Index(buf.Bytes(), []byte("draft ")))
}
