package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType  = errors.New("unknown question type")
	ErrEmptyContent = errors.New("content required")
)

// Content is the type-specific payload of a Question. Only the ten variants in
// this package implement it.
type Content interface {
	Type() Type
	isContent()
}

// Option is a selectable choice for multiple_choice and multi_select.
type Option struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type MultipleChoice struct {
	Options []Option `json:"options" validate:"min=2,dive"`
}

type MultiSelect struct {
	Options       []Option `json:"options" validate:"min=2,dive"`
	PartialCredit bool     `json:"partialCredit,omitempty"`
}

type TrueFalse struct {
	IsTrue bool `json:"isTrue"`
}

type Blank struct {
	ID              string   `json:"id" validate:"required"`
	AcceptedAnswers []string `json:"acceptedAnswers" validate:"min=1"`
	CaseSensitive   bool     `json:"caseSensitive"`
}

type FillBlank struct {
	// Template holds the prompt text with {{blankId}} placeholders.
	Template string  `json:"template" validate:"required"`
	Blanks   []Blank `json:"blanks" validate:"min=1,dive"`
}

// Distractor marks a drag item or code block that has no correct position.
const Distractor = -1

type OrderItem struct {
	ID              string `json:"id" validate:"required"`
	Text            string `json:"text" validate:"required"`
	CorrectPosition int    `json:"correctPosition" validate:"gte=-1"`
}

type DragOrder struct {
	Items []OrderItem `json:"items" validate:"min=2,dive"`
}

type MatchLeft struct {
	ID      string `json:"id" validate:"required"`
	Text    string `json:"text" validate:"required"`
	MatchID string `json:"matchId" validate:"required"`
}

type MatchRight struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type DragMatch struct {
	LeftItems  []MatchLeft  `json:"leftItems" validate:"min=1,dive"`
	RightItems []MatchRight `json:"rightItems" validate:"min=1,dive"`
}

type CodeBlock struct {
	ID              string `json:"id" validate:"required"`
	Code            string `json:"code" validate:"required"`
	CorrectPosition int    `json:"correctPosition" validate:"gte=-1"`
	Indent          int    `json:"indent" validate:"gte=0"`
}

type DragCodeBlocks struct {
	Language string      `json:"language" validate:"required"`
	Blocks   []CodeBlock `json:"blocks" validate:"min=2,dive"`
}

type CodeLine struct {
	ID              string `json:"id" validate:"required"`
	Code            string `json:"code" validate:"required"`
	CorrectPosition int    `json:"correctPosition" validate:"gte=0"`
	CorrectIndent   int    `json:"correctIndent" validate:"gte=0"`
}

type Parsons struct {
	Language  string     `json:"language" validate:"required"`
	CodeLines []CodeLine `json:"codeLines" validate:"min=2,dive"`
}

type TestCase struct {
	ID             string `json:"id" validate:"required"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
	Description    string `json:"description,omitempty"`
}

type CodeWriting struct {
	Language     string     `json:"language" validate:"required,oneof=python javascript typescript java cpp c go rust"`
	StarterCode  string     `json:"starterCode"`
	SolutionCode string     `json:"solutionCode,omitempty"`
	TestCases    []TestCase `json:"testCases" validate:"min=1,dive"`
}

type Bug struct {
	Line        int    `json:"line" validate:"gte=1"`
	Description string `json:"description,omitempty"`
	Fix         string `json:"fix" validate:"required"`
}

type Debugging struct {
	Language    string     `json:"language" validate:"required,oneof=python javascript typescript java cpp c go rust"`
	BuggyCode   string     `json:"buggyCode" validate:"required"`
	CorrectCode string     `json:"correctCode,omitempty"`
	Bugs        []Bug      `json:"bugs" validate:"min=1,dive"`
	TestCases   []TestCase `json:"testCases,omitempty" validate:"dive"`
}

func (MultipleChoice) Type() Type { return TypeMultipleChoice }
func (MultiSelect) Type() Type    { return TypeMultiSelect }
func (TrueFalse) Type() Type      { return TypeTrueFalse }
func (FillBlank) Type() Type      { return TypeFillBlank }
func (DragOrder) Type() Type      { return TypeDragOrder }
func (DragMatch) Type() Type      { return TypeDragMatch }
func (DragCodeBlocks) Type() Type { return TypeDragCodeBlocks }
func (Parsons) Type() Type        { return TypeParsons }
func (CodeWriting) Type() Type    { return TypeCodeWriting }
func (Debugging) Type() Type      { return TypeDebugging }

func (MultipleChoice) isContent() {}
func (MultiSelect) isContent()    {}
func (TrueFalse) isContent()      {}
func (FillBlank) isContent()      {}
func (DragOrder) isContent()      {}
func (DragMatch) isContent()      {}
func (DragCodeBlocks) isContent() {}
func (Parsons) isContent()        {}
func (CodeWriting) isContent()    {}
func (Debugging) isContent()      {}

// DecodeContent parses raw JSON into the variant selected by t.
func DecodeContent(t Type, raw json.RawMessage) (Content, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, ErrEmptyContent
	}
	var c Content
	var err error
	switch t {
	case TypeMultipleChoice:
		c, err = decodeAs[MultipleChoice](raw)
	case TypeMultiSelect:
		c, err = decodeAs[MultiSelect](raw)
	case TypeTrueFalse:
		c, err = decodeAs[TrueFalse](raw)
	case TypeFillBlank:
		c, err = decodeAs[FillBlank](raw)
	case TypeDragOrder:
		c, err = decodeAs[DragOrder](raw)
	case TypeDragMatch:
		c, err = decodeAs[DragMatch](raw)
	case TypeDragCodeBlocks:
		c, err = decodeAs[DragCodeBlocks](raw)
	case TypeParsons:
		c, err = decodeAs[Parsons](raw)
	case TypeCodeWriting:
		c, err = decodeAs[CodeWriting](raw)
	case TypeDebugging:
		c, err = decodeAs[Debugging](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%s content: %w", t, err)
	}
	return c, nil
}

func decodeAs[T Content](raw json.RawMessage) (Content, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
