package api

import (
	"autofill-service/internal/intent"
	"autofill-service/internal/match"
	"autofill-service/internal/memory"
)

const maxBatchQuestions = 500

// DetectRequest is the body of a single classification call.
type DetectRequest struct {
	Question string `json:"question"`
}

// BatchDetectRequest classifies several questions in one call.
type BatchDetectRequest struct {
	Questions []string `json:"questions"`
}

// DetectionDTO is a MappingResult annotated for form-filling clients.
type DetectionDTO struct {
	intent.MappingResult
	Question   string `json:"question"`
	Normalized string `json:"normalized"`
	Protected  bool   `json:"protected"`
	Autofill   bool   `json:"autofill"`
}

// BatchDetectResponse keeps results in request order.
type BatchDetectResponse struct {
	Results []DetectionDTO `json:"results"`
	Total   int            `json:"total"`
}

// RuleDTO is the API view of one rule table entry.
type RuleDTO struct {
	Intent    string   `json:"intent"`
	Patterns  []string `json:"patterns"`
	Protected bool     `json:"protected"`
}

// PatternUploadRequest carries a pattern curated by the extension.
type PatternUploadRequest struct {
	Pattern memory.Pattern `json:"pattern"`
}

// RestoreRequest identifies an existing user.
type RestoreRequest struct {
	Email string `json:"email"`
}

// CountsDTO reports a total and the part of it from the last 24 hours.
type CountsDTO struct {
	Total     int64 `json:"total"`
	Recent24h int64 `json:"recent_24h"`
}

// SummaryResponse feeds the overlay stats panel.
type SummaryResponse struct {
	Success  bool      `json:"success"`
	Users    CountsDTO `json:"users"`
	Feedback CountsDTO `json:"feedback"`
}

// DetectionFromResult builds the API representation of a detection.
func DetectionFromResult(question string, result intent.MappingResult, detector *intent.Detector) DetectionDTO {
	return DetectionDTO{
		MappingResult: result,
		Question:      question,
		Normalized:    match.NormalizeQuestion(question),
		Protected:     detector.IsProtected(result.CanonicalKey),
		Autofill:      detector.ShouldAutofill(result),
	}
}

// RuleFromEntry maps a table entry to its DTO.
func RuleFromEntry(entry intent.Entry) RuleDTO {
	patterns := make([]string, 0, len(entry.Patterns))
	for _, p := range entry.Patterns {
		patterns = append(patterns, p.Source)
	}
	return RuleDTO{
		Intent:    entry.Intent,
		Patterns:  patterns,
		Protected: entry.IsProtected,
	}
}
