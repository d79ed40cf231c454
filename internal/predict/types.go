package predict

import "autofill-service/internal/intent"

// Source names the stage that produced an answer.
type Source string

const (
	SourceMemory Source = "memory"
	SourceRules  Source = "rules"
	SourceAI     Source = "ai"
	SourceNone   Source = "none"
)

// Request is one form question to answer.
type Request struct {
	Question  string         `json:"question"`
	FieldType string         `json:"fieldType,omitempty"`
	Options   []string       `json:"options,omitempty"`
	UserEmail string         `json:"userEmail,omitempty"`
	Profile   map[string]any `json:"profile,omitempty"`
	Consent   bool           `json:"consent,omitempty"`
}

// Prediction is the answer returned for a Request.
type Prediction struct {
	Answer     string                `json:"answer"`
	Intent     string                `json:"intent"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning"`
	Source     Source                `json:"source"`
	Autofill   bool                  `json:"autofill"`
	Protected  bool                  `json:"protected"`
	PatternID  string                `json:"patternId,omitempty"`
	Learned    bool                  `json:"learned"`
	Detection  *intent.MappingResult `json:"detection,omitempty"`
	DurationMs int64                 `json:"durationMs"`
}
