package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// BuildSystemPrompt composes the fixed instructions for person extraction.
func BuildSystemPrompt() string {
	parts := []string{
		"You extract people from unstructured documents (contact lists, signatures, directories, resumes, meeting notes).",
		`Return ONLY JSON shaped as {"people":[...],"confidence":<0..1>,"summary":"<one sentence>"}.`,
		"Each person object MUST have a non-empty 'name'.",
		"Optional string fields: email, position, company, phone, location, department, linkedin, website, additionalInfo.",
		"Each person may carry its own 'confidence' between 0 and 1.",
		"Copy values as written; do not invent emails, phones or companies.",
		"Omit a field when it is not present. Never output null.",
		"If nobody can be identified, return an empty 'people' array.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt embeds the extraction type, source label, optional
// description, chunk position and the text itself. Output is deterministic.
func BuildUserPrompt(req AnalysisRequest) string {
	extractionType := strings.TrimSpace(req.ExtractionType)
	if extractionType == "" {
		extractionType = constants.DefaultExtractionType
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = constants.DefaultSource
	}

	var b strings.Builder
	b.WriteString("Extraction type: ")
	b.WriteString(extractionType)
	b.WriteString("\nSource: ")
	b.WriteString(source)
	b.WriteString("\n")
	if d := strings.TrimSpace(req.Description); d != "" {
		b.WriteString("Description: ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	if req.TotalChunks > 1 {
		fmt.Fprintf(&b, "Part %d of %d of a larger document. Extract only people present in this part.\n",
			req.ChunkIndex+1, req.TotalChunks)
	}
	b.WriteString("\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}
