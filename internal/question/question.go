package question

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Type identifies one of the ten question formats. The set is closed.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeMultiSelect    Type = "multi_select"
	TypeTrueFalse      Type = "true_false"
	TypeFillBlank      Type = "fill_blank"
	TypeDragOrder      Type = "drag_order"
	TypeDragMatch      Type = "drag_match"
	TypeDragCodeBlocks Type = "drag_code_blocks"
	TypeParsons        Type = "parsons"
	TypeCodeWriting    Type = "code_writing"
	TypeDebugging      Type = "debugging"
)

// Types lists every supported Type in builder order.
var Types = []Type{
	TypeMultipleChoice, TypeMultiSelect, TypeTrueFalse, TypeFillBlank, TypeDragOrder,
	TypeDragMatch, TypeDragCodeBlocks, TypeParsons, TypeCodeWriting, TypeDebugging,
}

func (t Type) Valid() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// IsCode reports whether answers of this type are source code that may be executed.
func (t Type) IsCode() bool { return t == TypeCodeWriting || t == TypeDebugging }

type Difficulty string

const (
	DifficultyBeginner Difficulty = "beginner"
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyExpert   Difficulty = "expert"
)

var difficultyRank = map[Difficulty]int{
	DifficultyBeginner: 1,
	DifficultyEasy:     2,
	DifficultyMedium:   3,
	DifficultyHard:     4,
	DifficultyExpert:   5,
}

// Rank returns 1..5 for known difficulties and 0 otherwise.
func (d Difficulty) Rank() int { return difficultyRank[d] }

func (d Difficulty) Less(o Difficulty) bool { return d.Rank() < o.Rank() }

func (d Difficulty) Valid() bool { return d.Rank() > 0 }

// Hint is an immutable part of a Question. Whether it was used is tracked per attempt.
type Hint struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text" validate:"required"`
	XPPenalty int    `json:"xpPenalty" validate:"gte=0"`
	Order     int    `json:"order" validate:"gte=0"`
}

type Question struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Topics      []string   `json:"topics" validate:"min=1,dive,required"`
	XPReward    int        `json:"xpReward" validate:"gt=0"`
	TimeLimit   *int       `json:"timeLimit,omitempty" validate:"omitempty,gt=0"`
	Hints       []Hint     `json:"hints,omitempty" validate:"dive"`
	Explanation string     `json:"explanation,omitempty"`
	Content     Content    `json:"content" validate:"-"`
	IsPublic    bool       `json:"isPublic"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   int64      `json:"createdAt,omitempty"`
}

// SortedHints returns the hints in display order.
func (q Question) SortedHints() []Hint {
	out := append([]Hint(nil), q.Hints...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Hint looks up a hint by id.
func (q Question) Hint(id string) (Hint, bool) {
	for _, h := range q.Hints {
		if h.ID == id {
			return h, true
		}
	}
	return Hint{}, false
}

// UnmarshalJSON decodes content according to the sibling "type" field.
func (q *Question) UnmarshalJSON(b []byte) error {
	type alias Question
	var raw struct {
		alias
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("question %q: %w", raw.ID, err)
	}
	*q = Question(raw.alias)
	q.Content = c
	return nil
}
