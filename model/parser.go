package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"regcheck/types"
)

// FindingPayload is one finding as reported by the model, before it is
// bound to a run.
type FindingPayload struct {
	Severity       int     `json:"severity"`
	Category       string  `json:"category"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
	Reference      string  `json:"reference"`
	Confidence     float64 `json:"confidence"`
}

var (
	// jsonBlockPattern matches JSON inside markdown code fences.
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\[{].*[\\]}])\\s*```")
	// jsonObjectPattern is the greedy whole-object fallback.
	jsonObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// jsonArrayPattern is the greedy whole-array fallback.
	jsonArrayPattern = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	// flatObjectPattern matches individual non-nested objects for the
	// salvage pass over broken payloads.
	flatObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)
	// severityLinePattern matches "severity: 4" style plain-text findings.
	severityLinePattern = regexp.MustCompile(`(?i)severity\s*[:=]?\s*([1-5])`)

	compliantPattern = regexp.MustCompile(`(?i)no (violations|findings|issues)|fully compliant|compliant with`)
)

// ParseFindings extracts structured findings from a model response. A
// non-nil error always means the structured payload was malformed and the
// result came from best-effort text extraction; the findings themselves are
// still usable. A unit never loses its result to a parsing defect.
func ParseFindings(raw string) ([]FindingPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", types.ErrMalformedModelResponse)
	}

	for _, payload := range extractJSONCandidates(raw) {
		if findings, ok := decodeFindings(payload); ok {
			return findings, nil
		}
	}

	// The model answered but not with parseable JSON. Salvage what we can.
	if findings := salvageObjects(raw); len(findings) > 0 {
		return findings, fmt.Errorf("%w: recovered %d findings from broken JSON", types.ErrMalformedModelResponse, len(findings))
	}
	if findings := salvageText(raw); len(findings) > 0 {
		return findings, fmt.Errorf("%w: recovered %d findings from plain text", types.ErrMalformedModelResponse, len(findings))
	}

	// A clear statement of compliance is a valid empty result.
	if compliantPattern.MatchString(raw) {
		return []FindingPayload{}, nil
	}

	// Nothing parseable at all: keep the raw answer visible instead of
	// reporting a silently clean unit.
	return []FindingPayload{{
		Severity:    3,
		Category:    string(types.CategoryTechnical),
		Title:       "Unstructured model response",
		Description: truncate(raw, 2000),
		Confidence:  0.3,
	}}, fmt.Errorf("%w: no findings payload found", types.ErrMalformedModelResponse)
}

// extractJSONCandidates returns possible JSON payloads in decreasing order
// of confidence: a fenced block first, then the greedy object/array matches.
// For a response that opens with '[' the array match goes first, since the
// greedy object pattern would span from the first '{' to the last '}' and
// glue sibling array elements into one invalid fragment. Callers try each
// candidate until one decodes.
func extractJSONCandidates(content string) []string {
	var candidates []string
	add := func(match string) {
		if match != "" {
			candidates = append(candidates, cleanJSON(match))
		}
	}

	if matches := jsonBlockPattern.FindStringSubmatch(content); len(matches) > 1 {
		add(matches[1])
	}

	object := jsonObjectPattern.FindString(content)
	array := jsonArrayPattern.FindString(content)
	if strings.HasPrefix(strings.TrimSpace(content), "[") {
		add(array)
		add(object)
	} else {
		add(object)
		add(array)
	}
	return candidates
}

// cleanJSON strips trailing commas, a common LLM artifact.
func cleanJSON(raw string) string {
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}

func decodeFindings(payload string) ([]FindingPayload, bool) {
	// Either {"findings": [...]} or a bare array.
	var wrapper struct {
		Findings []json.RawMessage `json:"findings"`
	}
	if err := json.Unmarshal([]byte(payload), &wrapper); err == nil && wrapper.Findings != nil {
		return coerceAll(wrapper.Findings)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err == nil {
		return coerceAll(items)
	}

	// A single bare finding object.
	var single map[string]any
	if err := json.Unmarshal([]byte(payload), &single); err == nil {
		if f, ok := coerceFinding(single); ok {
			return []FindingPayload{f}, true
		}
		// An object without finding fields, e.g. {"result": "compliant"}.
		if _, hasFindings := single["findings"]; hasFindings {
			return []FindingPayload{}, true
		}
	}
	return nil, false
}

func coerceAll(items []json.RawMessage) ([]FindingPayload, bool) {
	findings := make([]FindingPayload, 0, len(items))
	for _, item := range items {
		var m map[string]any
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, false
		}
		if f, ok := coerceFinding(m); ok {
			findings = append(findings, f)
		}
	}
	return findings, true
}

// coerceFinding tolerates loose typing in model output: severities as
// strings or floats, missing optional fields, alias keys.
func coerceFinding(m map[string]any) (FindingPayload, bool) {
	f := FindingPayload{
		Severity:       coerceInt(pick(m, "severity", "level")),
		Category:       coerceString(pick(m, "category", "type")),
		Title:          coerceString(pick(m, "title", "issue")),
		Description:    coerceString(pick(m, "description", "details")),
		Recommendation: coerceString(pick(m, "recommendation", "fix")),
		Reference:      coerceString(pick(m, "reference", "rule", "regulation")),
		Confidence:     coerceFloat(pick(m, "confidence")),
	}
	if f.Severity == 0 && f.Title == "" {
		return f, false
	}
	if f.Severity < 1 {
		f.Severity = 1
	}
	if f.Severity > 5 {
		f.Severity = 5
	}
	if f.Confidence <= 0 || f.Confidence > 1 {
		f.Confidence = 0.5
	}
	if !validCategory(f.Category) {
		f.Category = string(types.CategoryCompliance)
	}
	return f, true
}

func validCategory(c string) bool {
	switch types.FindingCategory(c) {
	case types.CategoryFormat, types.CategoryContent, types.CategoryCompliance, types.CategoryTechnical:
		return true
	}
	return false
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func coerceInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}

func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}

// salvageObjects scans for individually parseable finding objects inside a
// payload whose outer structure is broken.
func salvageObjects(raw string) []FindingPayload {
	var findings []FindingPayload
	for _, match := range flatObjectPattern.FindAllString(raw, -1) {
		var m map[string]any
		if err := json.Unmarshal([]byte(cleanJSON(match)), &m); err != nil {
			continue
		}
		if f, ok := coerceFinding(m); ok && f.Title != "" {
			findings = append(findings, f)
		}
	}
	return findings
}

// salvageText extracts findings from a plain-text answer that lists
// severities without any JSON at all.
func salvageText(raw string) []FindingPayload {
	var findings []FindingPayload
	for _, block := range strings.Split(raw, "\n\n") {
		m := severityLinePattern.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		severity, _ := strconv.Atoi(m[1])
		title := firstLine(block)
		findings = append(findings, FindingPayload{
			Severity:    severity,
			Category:    string(types.CategoryCompliance),
			Title:       truncate(title, 200),
			Description: truncate(block, 2000),
			Confidence:  0.4,
		})
	}
	return findings
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(strings.TrimLeft(line, "-*# ")); trimmed != "" {
			return trimmed
		}
	}
	return "Compliance issue"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
