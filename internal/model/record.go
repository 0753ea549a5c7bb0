package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Contact column names as they appear in the input CSV.
const (
	KeyEmail              = "Email"
	KeyPersonLinkedin     = "Person Linkedin Url"
	KeyFirstName          = "First Name"
	KeyLastName           = "Last Name"
	KeyTitle              = "Title"
	KeyCompany            = "Company"
	KeyWebsite            = "Website"
	KeyCompanyLinkedin    = "Company Linkedin Url"
	KeyFacebook           = "Facebook Url"
	KeyTotalCost          = "total_cost"
	SuffixCitations       = "_citations"
	SuffixCitationMapping = "_citation_mapping"
)

// Review flag keys.
const (
	FlagExclude  = "exclude"
	FlagFeedback = "email_feedback"
	FlagFlag     = "flag"
	FlagViewed   = "viewed"
	FlagExported = "exported"
)

// ContactColumns lists the static contact attributes in input order.
var ContactColumns = []string{
	KeyEmail,
	KeyPersonLinkedin,
	KeyFirstName,
	KeyLastName,
	KeyTitle,
	KeyCompany,
	KeyWebsite,
	KeyCompanyLinkedin,
	KeyFacebook,
}

// Record is one contact flowing through the pipeline. Fields are open-ended:
// each stage adds its output under its own key.
type Record map[string]any

// Email returns the record's identity key.
func (r Record) Email() string {
	return strings.TrimSpace(r.String(KeyEmail))
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the value at key rendered as text. Missing and null values
// render as "".
func (r Record) String(key string) string {
	return Stringify(r[key])
}

// Bool returns the boolean at key, or def when the key is missing or not a
// recognizable boolean.
func (r Record) Bool(key string, def bool) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer at key. JSON numbers decode as float64, so both
// representations are accepted.
func (r Record) Int(key string) int64 {
	switch v := r[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

// SetUsage writes the usage counters for an output key.
func (r Record) SetUsage(key string, u TokenUsage) {
	r[key+"_prompt_tokens"] = u.PromptTokens
	r[key+"_completion_tokens"] = u.CompletionTokens
	r[key+"_total_tokens"] = u.TotalTokens
	if u.Searches > 0 {
		r[key+"_searches"] = u.Searches
	}
}

// Usage reads back the usage counters for an output key.
func (r Record) Usage(key string) TokenUsage {
	return TokenUsage{
		PromptTokens:     r.Int(key + "_prompt_tokens"),
		CompletionTokens: r.Int(key + "_completion_tokens"),
		TotalTokens:      r.Int(key + "_total_tokens"),
		Searches:         r.Int(key + "_searches"),
	}
}

// UsageKeys returns the counter keys SetUsage may write for an output key.
func UsageKeys(key string) []string {
	return []string{
		key + "_prompt_tokens",
		key + "_completion_tokens",
		key + "_total_tokens",
		key + "_searches",
	}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Project returns a copy holding only the listed keys that are present.
func (r Record) Project(keys []string) Record {
	out := make(Record, len(keys))
	for _, k := range keys {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Stringify renders a JSON-decoded value as template text.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
