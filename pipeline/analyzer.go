// Package pipeline orchestrates compliance checking: per-unit analysis,
// aggregation, run persistence and regulatory ingestion.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"regcheck/index"
	"regcheck/model"
	"regcheck/types"
)

// ContextRetriever supplies ranked regulatory context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int, filter *index.Filter) ([]types.RetrievedChunk, error)
}

const systemPrompt = `You are a compliance auditor for construction and engineering documentation.
You compare a fragment of a project document against extracts from regulatory standards.
Report every deviation you find as a JSON object:
{"findings": [{"severity": 1-5, "category": "format|content|compliance|technical",
"title": "...", "description": "...", "recommendation": "...",
"reference": "standard and clause the deviation violates", "confidence": 0.0-1.0}]}
Severity 5 is a direct violation of a mandatory requirement, 3 a questionable deviation, 1 a cosmetic remark.
If the fragment does not conflict with the provided regulations, return {"findings": []}.
Return ONLY the JSON object, no explanations and no markdown.`

// Analyzer checks one document unit against retrieved regulatory context.
type Analyzer struct {
	retriever ContextRetriever
	generator model.Generator
	cfg       types.Config
	retry     model.RetryConfig
}

func NewAnalyzer(retriever ContextRetriever, generator model.Generator, cfg types.Config) *Analyzer {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 5000
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	return &Analyzer{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		retry:     model.DefaultRetryConfig(),
	}
}

// AnalyzeUnit runs one compliance judgment. A model failure is contained:
// the unit comes back with status error and no findings. A retrieval
// failure is returned as an error since it means the index itself is
// unreachable and the whole run must abort.
func (a *Analyzer) AnalyzeUnit(ctx context.Context, unit types.DocumentUnit) (types.UnitResult, error) {
	result := types.UnitResult{UnitIndex: unit.Position}

	chunks, err := a.retriever.Retrieve(ctx, unit.Content, a.cfg.TopK, nil)
	if err != nil {
		return result, fmt.Errorf("error retrieving context for unit %d: %w", unit.Position, err)
	}

	regContext, used := a.buildContext(chunks)
	prompt := buildPrompt(unit, regContext)

	unitCtx := ctx
	if a.cfg.UnitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, a.cfg.UnitTimeout)
		defer cancel()
	}

	raw, err := model.GenerateWithRetry(unitCtx, a.generator, systemPrompt, prompt, a.retry)
	if err != nil {
		// Infrastructure failure, not a compliance verdict.
		log.Printf("[ANALYZER] unit %d model call failed: %v", unit.Position, err)
		result.Status = types.UnitError
		return result, nil
	}

	payloads, parseErr := model.ParseFindings(raw)
	if parseErr != nil {
		log.Printf("[ANALYZER] unit %d: %v", unit.Position, parseErr)
	}

	for _, p := range payloads {
		f := types.Finding{
			UnitIndex:      unit.Position,
			Severity:       p.Severity,
			Category:       types.FindingCategory(p.Category),
			Title:          p.Title,
			Description:    p.Description,
			Recommendation: p.Recommendation,
			Reference:      p.Reference,
			Confidence:     p.Confidence,
		}
		if f.Reference == "" && used > 0 {
			f.Reference = chunks[0].Code
		}
		result.Findings = append(result.Findings, f)

		switch types.SeverityBucket(p.Severity) {
		case "critical":
			result.Critical++
		case "warning":
			result.Warning++
		default:
			result.Info++
		}
	}

	switch {
	case result.Critical > 0:
		result.Status = types.UnitFail
	case result.Warning > 0:
		result.Status = types.UnitWarning
	default:
		result.Status = types.UnitPass
	}
	return result, nil
}

// buildContext assembles the bounded regulatory context window, highest
// scoring chunks first. The chunk that crosses the budget is truncated,
// everything after it is dropped. Returns the context and how many chunks
// made it in.
func (a *Analyzer) buildContext(chunks []types.RetrievedChunk) (string, int) {
	var sb strings.Builder
	used := 0

	for _, ch := range chunks {
		header := fmt.Sprintf("[%s", ch.DocTitle)
		if ch.Code != "" {
			header += " (" + ch.Code + ")"
		}
		if ch.Section != "" {
			header += ", " + ch.Section
		}
		header += "]\n"

		remaining := a.cfg.ContextBudget - sb.Len()
		if remaining <= len(header) {
			break
		}

		content := ch.Content
		if len(header)+len(content) > remaining {
			cut := remaining - len(header)
			// Never split a multi-byte rune.
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}

		sb.WriteString(header)
		sb.WriteString(content)
		sb.WriteString("\n\n")
		used++

		if sb.Len() >= a.cfg.ContextBudget {
			break
		}
	}
	return sb.String(), used
}

func buildPrompt(unit types.DocumentUnit, regContext string) string {
	if regContext == "" {
		regContext = "(no relevant regulations found)"
	}
	return fmt.Sprintf(`Regulatory extracts:
%s
Project document fragment (unit %d):
%s

Report all compliance deviations as JSON.`, regContext, unit.Position+1, unit.Content)
}
