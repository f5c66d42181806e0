package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AreaListCap bounds the weak/strong area lists on a profile.
const AreaListCap = 10

// LanguageProfile is the rolling per-user, per-target-language proficiency
// summary. Created lazily on the first interaction in a language, mutated
// after every analyzed message.
type LanguageProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index:idx_language_profile,unique,priority:1" json:"user_id"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	TargetLanguage string    `gorm:"column:target_language;not null;index:idx_language_profile,unique,priority:2" json:"target_language"`
	CurrentLevel   CEFRLevel `gorm:"column:current_level;not null;default:'A1'" json:"current_level"`

	ProficiencyScore float64 `gorm:"column:proficiency_score;not null;default:0" json:"proficiency_score"` // 0..1
	Confidence       float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`               // 0..1
	GrammarAccuracy  float64 `gorm:"column:grammar_accuracy;not null;default:0" json:"grammar_accuracy"`   // 0..1, EWMA
	FluencyScore     float64 `gorm:"column:fluency_score;not null;default:0" json:"fluency_score"`         // 0..1, EWMA

	VocabularySize int `gorm:"column:vocabulary_size;not null;default:0" json:"vocabulary_size"`

	CurrentStreak  int        `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LongestStreak  int        `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	LastActivityAt *time.Time `gorm:"column:last_activity_at" json:"last_activity_at,omitempty"`

	WeakAreas     datatypes.JSON `gorm:"column:weak_areas;type:jsonb" json:"weak_areas,omitempty"`         // []string, cap 10
	StrongAreas   datatypes.JSON `gorm:"column:strong_areas;type:jsonb" json:"strong_areas,omitempty"`     // []string, cap 10
	LearningGoals datatypes.JSON `gorm:"column:learning_goals;type:jsonb" json:"learning_goals,omitempty"` // []string

	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LanguageProfile) TableName() string { return "language_profile" }

func (p *LanguageProfile) WeakAreaList() []string { return decodeStringList(p.WeakAreas) }

func (p *LanguageProfile) StrongAreaList() []string { return decodeStringList(p.StrongAreas) }

func (p *LanguageProfile) SetWeakAreaList(areas []string) {
	p.WeakAreas = encodeStringList(areas)
}

func (p *LanguageProfile) SetStrongAreaList(areas []string) {
	p.StrongAreas = encodeStringList(areas)
}

// MergeAreas prepends incoming areas ahead of existing ones (most recent
// first), deduplicates preserving that order, and caps the result.
func MergeAreas(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, a := range incoming {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		merged = append(merged, a)
	}
	for _, a := range existing {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		merged = append(merged, a)
	}
	if len(merged) > AreaListCap {
		merged = merged[:AreaListCap]
	}
	return merged
}
