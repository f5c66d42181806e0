package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrorCategory is the closed set of error types the aggregator accepts.
type ErrorCategory string

const (
	ErrorCategoryGrammar      ErrorCategory = "grammar"
	ErrorCategorySpelling     ErrorCategory = "spelling"
	ErrorCategoryVocabulary   ErrorCategory = "vocabulary"
	ErrorCategorySyntax       ErrorCategory = "syntax"
	ErrorCategoryPunctuation  ErrorCategory = "punctuation"
	ErrorCategoryWordOrder    ErrorCategory = "word_order"
	ErrorCategoryVerbTense    ErrorCategory = "verb_tense"
	ErrorCategoryArticles     ErrorCategory = "articles"
	ErrorCategoryPrepositions ErrorCategory = "prepositions"
	ErrorCategoryOther        ErrorCategory = "other"
)

var errorCategories = map[ErrorCategory]bool{
	ErrorCategoryGrammar:      true,
	ErrorCategorySpelling:     true,
	ErrorCategoryVocabulary:   true,
	ErrorCategorySyntax:       true,
	ErrorCategoryPunctuation:  true,
	ErrorCategoryWordOrder:    true,
	ErrorCategoryVerbTense:    true,
	ErrorCategoryArticles:     true,
	ErrorCategoryPrepositions: true,
	ErrorCategoryOther:        true,
}

// NormalizeErrorCategory maps free-form oracle output onto the closed enum,
// falling back to "other".
func NormalizeErrorCategory(raw string) ErrorCategory {
	c := ErrorCategory(raw)
	if errorCategories[c] {
		return c
	}
	return ErrorCategoryOther
}

const (
	ErrorExampleCap    = 10
	ErrorCorrectionCap = 5
)

// ErrorPattern is an aggregated, recurring category of user mistake, keyed by
// (user, error_type) plus a fuzzy description match at record time.
type ErrorPattern struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	ErrorType   ErrorCategory `gorm:"column:error_type;not null;index" json:"error_type"`
	Description string        `gorm:"column:description;not null" json:"description"`

	Frequency  int        `gorm:"column:frequency;not null;default:1" json:"frequency"`
	FirstSeen  time.Time  `gorm:"column:first_seen;not null" json:"first_seen"`
	LastSeen   time.Time  `gorm:"column:last_seen;not null;index" json:"last_seen"`
	IsResolved bool       `gorm:"column:is_resolved;not null;default:false" json:"is_resolved"`
	ResolvedAt *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`

	Examples    datatypes.JSON `gorm:"column:examples;type:jsonb" json:"examples,omitempty"`       // []string, cap 10 FIFO
	Corrections datatypes.JSON `gorm:"column:corrections;type:jsonb" json:"corrections,omitempty"` // []string, cap 5 FIFO

	RelatedConcepts []*GrammarConcept `gorm:"many2many:error_pattern_concept" json:"related_concepts,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ErrorPattern) TableName() string { return "error_pattern" }

func (p *ErrorPattern) ExampleList() []string { return decodeStringList(p.Examples) }

func (p *ErrorPattern) CorrectionList() []string { return decodeStringList(p.Corrections) }

// AppendExample adds an example unless the exact string is already present,
// dropping the oldest entry past the cap.
func (p *ErrorPattern) AppendExample(example string) {
	if example == "" {
		return
	}
	items := p.ExampleList()
	for _, e := range items {
		if e == example {
			return
		}
	}
	items = appendCapped(items, example, ErrorExampleCap)
	p.Examples = encodeStringList(items)
}

// AppendCorrection adds a correction suggestion, dedup-exact, cap 5 FIFO.
func (p *ErrorPattern) AppendCorrection(correction string) {
	if correction == "" {
		return
	}
	items := p.CorrectionList()
	for _, c := range items {
		if c == correction {
			return
		}
	}
	items = appendCapped(items, correction, ErrorCorrectionCap)
	p.Corrections = encodeStringList(items)
}

func appendCapped(items []string, item string, limit int) []string {
	items = append(items, item)
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}
