package types

// ErrorSeverity grades how much a grammatical error impacts comprehension.
type ErrorSeverity string

const (
	ErrorSeverityMinor    ErrorSeverity = "minor"
	ErrorSeverityModerate ErrorSeverity = "moderate"
	ErrorSeveritySevere   ErrorSeverity = "severe"
)

// ConceptUsage reports how one grammar concept was used in the analyzed text.
type ConceptUsage struct {
	ConceptName string   `json:"concept_name"`
	Description string   `json:"concept_description"`
	Attempted   bool     `json:"attempted"`
	Correct     bool     `json:"correct"`
	// Oracle's estimate of how hard this usage was for the user, 0..1.
	Difficulty float64  `json:"difficulty"`
	UserRating float64  `json:"user_rating"`
	Confidence float64  `json:"confidence"`
	Examples   []string `json:"examples"`
	Errors     []string `json:"errors"`
	Feedback   string   `json:"feedback"`
}

// GrammarErrorDetail is one concrete error the oracle found.
type GrammarErrorDetail struct {
	ErrorType       string        `json:"error_type"`
	Severity        ErrorSeverity `json:"severity"`
	OriginalText    string        `json:"original_text"`
	CorrectedText   string        `json:"corrected_text"`
	Explanation     string        `json:"explanation"`
	RelatedConcepts []string      `json:"related_concepts"`
	CEFRLevel       CEFRLevel     `json:"cefr_level"`
}

// ProficiencyAssessment is the oracle's overall read of the analyzed text.
type ProficiencyAssessment struct {
	EstimatedLevel  CEFRLevel `json:"estimated_level"`
	Confidence      float64   `json:"confidence"`
	VocabularyLevel CEFRLevel `json:"vocabulary_level"`
	GrammarLevel    CEFRLevel `json:"grammar_level"`
	FluencyScore    float64   `json:"fluency_score"`
	CoherenceScore  float64   `json:"coherence_score"`
}

// GrammarAnalysis is the structured result of one analysis-oracle call.
type GrammarAnalysis struct {
	Proficiency  ProficiencyAssessment `json:"proficiency"`
	ConceptsUsed []ConceptUsage        `json:"concepts_used"`
	Errors       []GrammarErrorDetail  `json:"errors"`

	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	NextConcepts        []string `json:"next_concepts"`
	PracticeSuggestions []string `json:"practice_suggestions"`

	AccuracyScore float64 `json:"accuracy_score"`
	ErrorRate     float64 `json:"error_rate"`
	TotalErrors   int     `json:"total_errors"`

	Feedback string `json:"feedback"`

	// Degraded marks an analysis substituted after an oracle failure; the
	// scores above are conservative defaults, not real measurements.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedAnalysis is the conservative fallback applied when the analysis
// oracle fails: neutral scores, no concepts, no errors, near-zero confidence.
// Downstream profile updates still run so the interaction is not lost; the
// blend's heavy bias toward prior state keeps one neutral result from moving
// an established profile much.
func DegradedAnalysis(currentLevel CEFRLevel) *GrammarAnalysis {
	if _, err := LevelRank(currentLevel); err != nil {
		currentLevel = CEFRLevelA1
	}
	return &GrammarAnalysis{
		Proficiency: ProficiencyAssessment{
			EstimatedLevel:  currentLevel,
			Confidence:      0.1,
			VocabularyLevel: currentLevel,
			GrammarLevel:    currentLevel,
			FluencyScore:    0.5,
			CoherenceScore:  0.5,
		},
		AccuracyScore: 0.5,
		Degraded:      true,
	}
}
