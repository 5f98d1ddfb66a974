package ai

import (
	"fmt"
	"strings"
)

// TruncationMarker is appended to document text cut at the character budget.
const TruncationMarker = "\n\n[... document truncated ...]"

// SystemPrompt instructs the model on the response schema.
const SystemPrompt = `You extract piping components from tender and bill of quantities documents.

Return a single JSON object and nothing else:
{
  "items": [
    {
      "rowIndex": 1,
      "itemLabel": "1.2",
      "description": "source text of the line item",
      "itemType": "pipe | bend | reducer | tee | flange | expansion_joint | unknown",
      "material": "carbon steel",
      "materialGrade": "Grade B",
      "diameter": 200,
      "secondaryDiameter": null,
      "length": null,
      "wallThickness": 8,
      "angle": null,
      "flangeConfig": "none | one_end | both_ends | puddle | blind | null",
      "quantity": 12,
      "unit": "ea | m | set",
      "confidence": 0.9
    }
  ],
  "specificationCells": [
    {
      "locationRef": "page 1",
      "rawText": "source text of the specification block",
      "parsedData": {
        "materialGrade": null,
        "wallThickness": null,
        "lining": null,
        "externalCoating": null,
        "standard": null,
        "schedule": null
      }
    }
  ],
  "overallScore": 0.8
}

Rules:
- Diameters, lengths and wall thicknesses are millimetres; angles are degrees.
- Use null for anything the document does not state. Do not guess.
- Only list physical components. Skip headings, totals and carried forward lines.
- confidence and overallScore are between 0 and 1.`

// BuildPrompt renders req, truncating the document text to maxChars runes.
func BuildPrompt(req Request, maxChars int) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s (%s)\n", req.Filename, req.DocumentType)
	if len(req.ProductTypes) > 0 {
		fmt.Fprintf(&b, "Product types of interest: %s\n", strings.Join(req.ProductTypes, ", "))
	}
	b.WriteString("\n")
	b.WriteString(Truncate(req.Text, maxChars))
	return Prompt{System: SystemPrompt, User: b.String()}
}

// Truncate cuts text to maxChars runes and appends TruncationMarker.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	return string(r[:maxChars]) + TruncationMarker
}
