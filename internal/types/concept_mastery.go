package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptHistoryCap bounds the per-mastery attempt log; the oldest entries
// are evicted first.
const AttemptHistoryCap = 100

// AttemptRecord is one entry in a mastery row's bounded history log.
type AttemptRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Correct      bool      `json:"correct"`
	Difficulty   float64   `json:"difficulty"`
	MasteryScore float64   `json:"mastery_score"`
	SuccessRate  float64   `json:"success_rate"`
}

// ConceptMastery tracks one user's command of one grammar concept, including
// the spaced-repetition scheduling state. Unique per (user, concept); created
// on the first attempt, mutated on every later one, never deleted.
type ConceptMastery struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_concept_mastery,unique,priority:1" json:"user_id"`
	User      *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ConceptID uuid.UUID       `gorm:"type:uuid;not null;index:idx_concept_mastery,unique,priority:2" json:"concept_id"`
	Concept   *GrammarConcept `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConceptID;references:ID" json:"concept,omitempty"`

	MasteryScore float64 `gorm:"column:mastery_score;not null;default:0" json:"mastery_score"` // 0..1
	Confidence   float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`       // 0..1

	AttemptsCount   int `gorm:"column:attempts_count;not null;default:0" json:"attempts_count"`
	CorrectAttempts int `gorm:"column:correct_attempts;not null;default:0" json:"correct_attempts"`

	LastPracticed *time.Time `gorm:"column:last_practiced" json:"last_practiced,omitempty"`
	LastCorrect   *time.Time `gorm:"column:last_correct" json:"last_correct,omitempty"`
	NextReview    *time.Time `gorm:"column:next_review;index" json:"next_review,omitempty"`

	// SM-2 family scheduling state.
	RepetitionInterval int     `gorm:"column:repetition_interval;not null;default:1" json:"repetition_interval"` // days
	EaseFactor         float64 `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`               // 1.3..4.0

	History datatypes.JSON `gorm:"column:history;type:jsonb" json:"history,omitempty"` // []AttemptRecord

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ConceptMastery) TableName() string { return "concept_mastery" }

func (m *ConceptMastery) HistoryEntries() []AttemptRecord {
	if len(m.History) == 0 {
		return nil
	}
	var out []AttemptRecord
	if err := json.Unmarshal(m.History, &out); err != nil {
		return nil
	}
	return out
}

// AppendHistory appends one record, evicting the oldest entries past the cap.
func (m *ConceptMastery) AppendHistory(rec AttemptRecord) {
	entries := append(m.HistoryEntries(), rec)
	if len(entries) > AttemptHistoryCap {
		entries = entries[len(entries)-AttemptHistoryCap:]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	m.History = datatypes.JSON(raw)
}
