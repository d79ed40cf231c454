package store

import (
	"encoding/json"
	"strings"
	"time"
)

// AnswerMapping ties a canonical answer to the variants seen on forms.
type AnswerMapping struct {
	CanonicalValue string   `json:"canonicalValue"`
	Variants       []string `json:"variants"`
	ContextOptions []string `json:"contextOptions,omitempty"`
}

// LearnedPattern is a private question mapping owned by one user.
type LearnedPattern struct {
	ID                 string `gorm:"primaryKey;size:32"`
	UserEmail          string `gorm:"size:255;uniqueIndex:idx_learned_user_question"`
	QuestionPattern    string `gorm:"size:512;uniqueIndex:idx_learned_user_question"`
	Intent             string `gorm:"size:128;index"`
	CanonicalKey       string `gorm:"size:128"`
	FieldType          string `gorm:"size:32"`
	Confidence         float64
	Source             string `gorm:"size:32"`
	AnswerMappingsJSON string `gorm:"type:text"`
	LastUsed           time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GlobalPattern is a shared question mapping. Only shareable, unprotected
// intents end up here and answers are normally left empty.
type GlobalPattern struct {
	ID                 string `gorm:"primaryKey;size:32"`
	QuestionPattern    string `gorm:"size:512;uniqueIndex"`
	Intent             string `gorm:"size:128;index"`
	CanonicalKey       string `gorm:"size:128"`
	FieldType          string `gorm:"size:32"`
	Confidence         float64
	Source             string `gorm:"size:32"`
	AnswerMappingsJSON string `gorm:"type:text"`
	Uses               int
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index"`
}

// UserProfile stores the autofill profile document for one email.
type UserProfile struct {
	Email       string `gorm:"primaryKey;size:255"`
	ProfileJSON string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"`
}

// Feedback records one feedback interaction from the extension overlay.
type Feedback struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"size:255;index"`
	FeedbackType string    `gorm:"size:32"`
	CreatedAt    time.Time `gorm:"index"`
}

// SetAnswerMappings persists the mappings as JSON.
func (p *LearnedPattern) SetAnswerMappings(mappings []AnswerMapping) {
	p.AnswerMappingsJSON = encodeMappings(mappings)
}

// AnswerMappings returns the decoded answer mappings.
func (p *LearnedPattern) AnswerMappings() []AnswerMapping {
	return decodeMappings(p.AnswerMappingsJSON)
}

// SetAnswerMappings persists the mappings as JSON.
func (p *GlobalPattern) SetAnswerMappings(mappings []AnswerMapping) {
	p.AnswerMappingsJSON = encodeMappings(mappings)
}

// AnswerMappings returns the decoded answer mappings.
func (p *GlobalPattern) AnswerMappings() []AnswerMapping {
	return decodeMappings(p.AnswerMappingsJSON)
}

// SetProfile stores the profile document as JSON.
func (u *UserProfile) SetProfile(doc map[string]any) {
	if doc == nil {
		u.ProfileJSON = "{}"
		return
	}
	payload, _ := json.Marshal(doc)
	u.ProfileJSON = string(payload)
}

// Profile decodes the stored profile document.
func (u *UserProfile) Profile() map[string]any {
	if strings.TrimSpace(u.ProfileJSON) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(u.ProfileJSON), &out); err != nil {
		return nil
	}
	return out
}

func encodeMappings(mappings []AnswerMapping) string {
	if mappings == nil {
		return "[]"
	}
	payload, _ := json.Marshal(mappings)
	return string(payload)
}

func decodeMappings(raw string) []AnswerMapping {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []AnswerMapping
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
