package types

import "fmt"

// CEFRLevel is a Common European Framework of Reference proficiency tier.
type CEFRLevel string

const (
	CEFRLevelA1 CEFRLevel = "A1"
	CEFRLevelA2 CEFRLevel = "A2"
	CEFRLevelB1 CEFRLevel = "B1"
	CEFRLevelB2 CEFRLevel = "B2"
	CEFRLevelC1 CEFRLevel = "C1"
	CEFRLevelC2 CEFRLevel = "C2"
)

// CEFRLevels lists all levels in ascending order.
var CEFRLevels = []CEFRLevel{
	CEFRLevelA1, CEFRLevelA2, CEFRLevelB1, CEFRLevelB2, CEFRLevelC1, CEFRLevelC2,
}

type UnknownLevelError struct {
	Level string
}

func (e *UnknownLevelError) Error() string {
	return fmt.Sprintf("unknown CEFR level %q; expected one of A1, A2, B1, B2, C1, C2", e.Level)
}

// LevelRank maps A1..C2 onto 0..5.
func LevelRank(level CEFRLevel) (int, error) {
	for i, l := range CEFRLevels {
		if l == level {
			return i, nil
		}
	}
	return 0, &UnknownLevelError{Level: string(level)}
}

// NextLevel returns the level above the given one, saturating at C2.
func NextLevel(level CEFRLevel) (CEFRLevel, error) {
	rank, err := LevelRank(level)
	if err != nil {
		return level, err
	}
	if rank >= len(CEFRLevels)-1 {
		return CEFRLevelC2, nil
	}
	return CEFRLevels[rank+1], nil
}

// PreviousLevel returns the level below the given one. A1 has no previous
// level and is returned as-is.
func PreviousLevel(level CEFRLevel) (CEFRLevel, error) {
	rank, err := LevelRank(level)
	if err != nil {
		return level, err
	}
	if rank <= 0 {
		return CEFRLevelA1, nil
	}
	return CEFRLevels[rank-1], nil
}
