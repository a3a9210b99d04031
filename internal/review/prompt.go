package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

const reviewSystemPrompt = `You review documents against a checklist. For every checklist item you are given, decide whether the document satisfies it.

Rules:
1. Judge only from the document content provided. Do not assume facts that are not shown.
2. Use exactly one evaluation per item: "pass", "partial", "fail" or "n/a".
3. Keep each comment short and point to the part of the document it is based on.
4. Return one result for every checklist item id you are given, and no others.

You MUST respond with ONLY a JSON array. No markdown, no explanation, no preamble.

Each element must have this exact structure:
{
  "id": 1,
  "evaluation": "pass|partial|fail|n/a",
  "comment": "Why the item passes or fails"
}`

const partialSystemPrompt = `You review one part of a larger document against a checklist. Other parts are reviewed separately and the results are merged later.

Rules:
1. Judge only from the part provided. If the part does not address an item, say so in the comment and use "n/a".
2. Use exactly one evaluation per item: "pass", "partial", "fail" or "n/a".
3. Keep each comment short and point to the passage it is based on.
4. Return one result for every checklist item id you are given, and no others.

You MUST respond with ONLY a JSON array. No markdown, no explanation, no preamble.

Each element must have this exact structure:
{
  "id": 1,
  "evaluation": "pass|partial|fail|n/a",
  "comment": "What this part shows about the item"
}`

const consolidationSystemPrompt = `You merge review comments written separately for several documents, or several parts of one document, into one final evaluation per checklist item.

Rules:
1. Base the final evaluation on all comments for the item taken together.
2. Use exactly one evaluation per item: "pass", "partial", "fail" or "n/a".
3. Write one short comment per item that summarizes the evidence and names the documents it comes from.
4. Return one result for every checklist item id you are given, and no others.

You MUST respond with ONLY a JSON array. No markdown, no explanation, no preamble.

Each element must have this exact structure:
{
  "id": 1,
  "evaluation": "pass|partial|fail|n/a",
  "comment": "Consolidated reasoning"
}`

// SystemPrompt returns the system prompt for reviewing a unit.
func SystemPrompt(unit ReviewUnit) string {
	if unit.TotalChunks > 1 {
		return partialSystemPrompt
	}
	return reviewSystemPrompt
}

// ConsolidationSystemPrompt returns the system prompt for the consolidation pass.
func ConsolidationSystemPrompt() string {
	return consolidationSystemPrompt
}

// BuildReviewPrompt constructs the user prompt for one review unit. Image
// documents are sent as attachments, so only their page span is described.
func BuildReviewPrompt(unit ReviewUnit) string {
	var b strings.Builder

	b.WriteString("Review the following document against the checklist items below.\n")
	if label := unit.PartLabel(); label != "" {
		fmt.Fprintf(&b, "This is %s of the document.\n", label)
	}

	b.WriteString("\nChecklist items:\n")
	writeItems(&b, unit.Category)

	doc := unit.Document
	fmt.Fprintf(&b, "\nDocument: %s\n", doc.Name)
	if doc.IsImage() {
		fmt.Fprintf(&b, "The document is attached as %d page image(s)", len(doc.Images))
		if unit.TotalChunks > 1 {
			fmt.Fprintf(&b, " (pages %d-%d)", unit.Range.Start+1, unit.Range.End)
		}
		b.WriteString(".\n")
		return b.String()
	}

	b.WriteString("\n--- BEGIN DOCUMENT ---\n")
	b.WriteString(doc.Text)
	b.WriteString("\n--- END DOCUMENT ---\n")
	return b.String()
}

// ConsolidationEntry is one per-document comment handed to the consolidation pass.
type ConsolidationEntry struct {
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	Comment      string `json:"comment"`
}

// BuildConsolidationPrompt constructs the user prompt for one consolidation category.
func BuildConsolidationPrompt(category []ChecklistItem, entries map[int][]ConsolidationEntry) string {
	var b strings.Builder

	b.WriteString("Consolidate the review comments below into one final evaluation per checklist item.\n")

	for _, it := range category {
		fmt.Fprintf(&b, "\n[%d] %s\n", it.ID, oneLine(it.Content))
		data, err := json.MarshalIndent(nonNil(entries[it.ID]), "", "  ")
		if err != nil {
			data = []byte("[]")
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}

// RepairPrompt asks the model to fix a response that was not valid JSON.
func RepairPrompt(parseErr error, previous string) string {
	return fmt.Sprintf(
		"Your previous response was not valid JSON. The error was: %s\n\nPlease fix it and respond with ONLY a valid JSON array of results.\n\nYour previous response was:\n%s",
		parseErr.Error(), previous,
	)
}

func writeItems(b *strings.Builder, items []ChecklistItem) {
	for _, it := range items {
		fmt.Fprintf(b, "- id: %d, item: %s\n", it.ID, oneLine(it.Content))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonNil(entries []ConsolidationEntry) []ConsolidationEntry {
	if entries == nil {
		return []ConsolidationEntry{}
	}
	return entries
}

// rawResult is the JSON structure returned by the LLM.
type rawResult struct {
	ID         json.Number `json:"id"`
	Evaluation string      `json:"evaluation"`
	Comment    string      `json:"comment"`
}

func parseResults(content string) ([]ItemResult, error) {
	content = stripFences(content)

	var raw []rawResult
	if strings.HasPrefix(content, "{") {
		var wrapped struct {
			Results []rawResult `json:"results"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		raw = wrapped.Results
	} else if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	results := make([]ItemResult, 0, len(raw))
	for _, r := range raw {
		id, err := r.ID.Int64()
		if err != nil {
			return nil, fmt.Errorf("result id %q is not an integer", r.ID.String())
		}
		results = append(results, ItemResult{
			ChecklistID: int(id),
			Evaluation:  normalizeEvaluation(r.Evaluation),
			Comment:     r.Comment,
		})
	}
	return results, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			// Remove first line (```json) and last line (```)
			start := 1
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end = end - 1
			}
			content = strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		}
	}
	return content
}

func normalizeEvaluation(s string) Evaluation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "ok", "yes":
		return EvaluationPass
	case "partial", "partially":
		return EvaluationPartial
	case "fail", "failed", "no":
		return EvaluationFail
	case "n/a", "na", "not applicable":
		return EvaluationNotApplicable
	default:
		return Evaluation(strings.TrimSpace(s))
	}
}
