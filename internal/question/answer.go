package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoAnswer = errors.New("no answer")

// Answer is a learner's response decoded into the shape its question type expects.
type Answer interface {
	isAnswer()
}

// ChoiceAnswer is the selected option id of a multiple_choice question.
type ChoiceAnswer string

// SelectionAnswer is the set of selected option ids of a multi_select question.
type SelectionAnswer []string

type BoolAnswer bool

// BlankAnswers maps blank id to the learner's text.
type BlankAnswers map[string]string

// OrderAnswer is the submitted order of item or block ids.
type OrderAnswer []string

// MatchAnswer maps left item id to the chosen right item id.
type MatchAnswer map[string]string

type ParsonsLine struct {
	ID     string `json:"id"`
	Indent int    `json:"indent"`
}

type ParsonsAnswer []ParsonsLine

// CodeAnswer is submitted source for code_writing and debugging.
type CodeAnswer string

func (ChoiceAnswer) isAnswer()    {}
func (SelectionAnswer) isAnswer() {}
func (BoolAnswer) isAnswer()      {}
func (BlankAnswers) isAnswer()    {}
func (OrderAnswer) isAnswer()     {}
func (MatchAnswer) isAnswer()     {}
func (ParsonsAnswer) isAnswer()   {}
func (CodeAnswer) isAnswer()      {}

// DecodeAnswer parses a raw answer into the shape required by t.
// A missing or null answer yields ErrNoAnswer, except for fill_blank, where it is
// an empty BlankAnswers so every blank reads as "".
func DecodeAnswer(t Type, raw json.RawMessage) (Answer, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if t == TypeFillBlank {
			return BlankAnswers{}, nil
		}
		return nil, ErrNoAnswer
	}
	var (
		a   Answer
		err error
	)
	switch t {
	case TypeMultipleChoice:
		a, err = answerAs[ChoiceAnswer](trimmed)
	case TypeMultiSelect:
		a, err = answerAs[SelectionAnswer](trimmed)
	case TypeTrueFalse:
		a, err = answerAs[BoolAnswer](trimmed)
	case TypeFillBlank:
		a, err = answerAs[BlankAnswers](trimmed)
	case TypeDragOrder, TypeDragCodeBlocks:
		a, err = answerAs[OrderAnswer](trimmed)
	case TypeDragMatch:
		a, err = answerAs[MatchAnswer](trimmed)
	case TypeParsons:
		a, err = answerAs[ParsonsAnswer](trimmed)
	case TypeCodeWriting, TypeDebugging:
		a, err = answerAs[CodeAnswer](trimmed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%s answer: %w", t, err)
	}
	return a, nil
}

func answerAs[T Answer](raw []byte) (Answer, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
