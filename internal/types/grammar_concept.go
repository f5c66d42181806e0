package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GrammarConcept is a discrete grammar rule in a specific target language.
// Rows are reference data: created by the seed catalog or organically the
// first time the analysis oracle names a concept, rarely updated, never
// deleted in normal operation.
type GrammarConcept struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name        string    `gorm:"column:name;not null;index:idx_concept_name_language,unique,priority:1" json:"name"`
	Language    string    `gorm:"column:language;not null;index:idx_concept_name_language,unique,priority:2;index" json:"language"`
	Description string    `gorm:"column:description" json:"description"`
	CEFRLevel   CEFRLevel `gorm:"column:cefr_level;not null;index" json:"cefr_level"`
	// 0..10 continuous difficulty score used for intra-level ordering.
	ComplexityScore float64 `gorm:"column:complexity_score;not null;default:0" json:"complexity_score"`

	// Fixed-dimension embedding mirror; the vector store is the query index,
	// this column is the durable copy used to rebuild it.
	Embedding datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"embedding,omitempty"`

	Tags             datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`              // []string
	ExampleSentences datatypes.JSON `gorm:"column:example_sentences;type:jsonb" json:"example_sentences,omitempty"` // []string
	CommonErrors     datatypes.JSON `gorm:"column:common_errors;type:jsonb" json:"common_errors,omitempty"`         // []string

	// Directed prerequisite edges; a DAG by convention, not enforced.
	Prerequisites []*GrammarConcept `gorm:"many2many:concept_prerequisite;joinForeignKey:ConceptID;joinReferences:PrerequisiteID" json:"prerequisites,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (GrammarConcept) TableName() string { return "grammar_concept" }

func (c *GrammarConcept) TagList() []string {
	return decodeStringList(c.Tags)
}

func (c *GrammarConcept) SetTagList(tags []string) {
	c.Tags = encodeStringList(tags)
}

func (c *GrammarConcept) EmbeddingVector() []float32 {
	if len(c.Embedding) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(c.Embedding, &vec); err != nil {
		return nil
	}
	return vec
}

func (c *GrammarConcept) SetEmbeddingVector(vec []float32) {
	if vec == nil {
		c.Embedding = nil
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	c.Embedding = datatypes.JSON(raw)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeStringList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
