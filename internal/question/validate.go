package question

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError is a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// ValidationError collects every problem found in a question.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Problem)
	}
	return "invalid question: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Problem: fmt.Sprintf(format, args...)})
}

// Validate checks the common fields, the struct rules of the content variant and
// the structural rules that tags cannot express. It returns *ValidationError.
func (q Question) Validate() error {
	ve := &ValidationError{}
	if !q.Type.Valid() {
		ve.add("type", "unknown type %q", q.Type)
	}
	if !q.Difficulty.Valid() {
		ve.add("difficulty", "unknown difficulty %q", q.Difficulty)
	}
	collect(ve, "", validate.Struct(q))

	seen := map[string]bool{}
	for _, h := range q.Hints {
		if seen[h.ID] {
			ve.add("hints", "duplicate hint id %q", h.ID)
		}
		seen[h.ID] = true
	}

	switch {
	case q.Content == nil:
		ve.add("content", "required")
	case q.Content.Type() != q.Type:
		ve.add("content", "content is %s but type is %s", q.Content.Type(), q.Type)
	default:
		collect(ve, "content.", validate.Struct(q.Content))
		checkContent(ve, q.Content)
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

func collect(ve *ValidationError, prefix string, err error) {
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		ve.add(strings.TrimSuffix(prefix, "."), "%v", err)
		return
	}
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		problem := fe.Tag()
		if fe.Param() != "" {
			problem += "=" + fe.Param()
		}
		ve.add(prefix+ns, "failed %s", problem)
	}
}

func checkContent(ve *ValidationError, c Content) {
	switch v := c.(type) {
	case MultipleChoice:
		uniqueIDs(ve, "content.options", optionIDs(v.Options))
		if n := countCorrect(v.Options); n != 1 {
			ve.add("content.options", "exactly one option must be correct, found %d", n)
		}
	case MultiSelect:
		uniqueIDs(ve, "content.options", optionIDs(v.Options))
		if countCorrect(v.Options) == 0 {
			ve.add("content.options", "at least one option must be correct")
		}
	case TrueFalse:
	case FillBlank:
		ids := make([]string, len(v.Blanks))
		for i, b := range v.Blanks {
			ids[i] = b.ID
		}
		uniqueIDs(ve, "content.blanks", ids)
	case DragOrder:
		ids := make([]string, len(v.Items))
		pos := make([]int, len(v.Items))
		for i, it := range v.Items {
			ids[i], pos[i] = it.ID, it.CorrectPosition
		}
		uniqueIDs(ve, "content.items", ids)
		permutation(ve, "content.items", pos)
	case DragMatch:
		left := make([]string, len(v.LeftItems))
		for i, l := range v.LeftItems {
			left[i] = l.ID
		}
		right := map[string]bool{}
		rightIDs := make([]string, len(v.RightItems))
		for i, r := range v.RightItems {
			right[r.ID] = true
			rightIDs[i] = r.ID
		}
		uniqueIDs(ve, "content.leftItems", left)
		uniqueIDs(ve, "content.rightItems", rightIDs)
		for _, l := range v.LeftItems {
			if !right[l.MatchID] {
				ve.add("content.leftItems", "item %q matches unknown right item %q", l.ID, l.MatchID)
			}
		}
	case DragCodeBlocks:
		ids := make([]string, len(v.Blocks))
		pos := make([]int, len(v.Blocks))
		for i, b := range v.Blocks {
			ids[i], pos[i] = b.ID, b.CorrectPosition
		}
		uniqueIDs(ve, "content.blocks", ids)
		permutation(ve, "content.blocks", pos)
	case Parsons:
		ids := make([]string, len(v.CodeLines))
		pos := make([]int, len(v.CodeLines))
		for i, l := range v.CodeLines {
			ids[i], pos[i] = l.ID, l.CorrectPosition
		}
		uniqueIDs(ve, "content.codeLines", ids)
		permutation(ve, "content.codeLines", pos)
	case CodeWriting:
		uniqueIDs(ve, "content.testCases", testCaseIDs(v.TestCases))
	case Debugging:
		uniqueIDs(ve, "content.testCases", testCaseIDs(v.TestCases))
		lines := strings.Count(v.BuggyCode, "\n") + 1
		for _, b := range v.Bugs {
			if b.Line > lines {
				ve.add("content.bugs", "line %d is past the end of the buggy code (%d lines)", b.Line, lines)
			}
		}
	}
}

// permutation requires the non-distractor positions to be exactly 0..k-1.
func permutation(ve *ValidationError, field string, positions []int) {
	seen := map[int]bool{}
	k := 0
	for _, p := range positions {
		if p == Distractor {
			continue
		}
		if seen[p] {
			ve.add(field, "position %d used more than once", p)
		}
		seen[p] = true
		k++
	}
	if k == 0 {
		ve.add(field, "at least one item must have a position")
		return
	}
	for i := 0; i < k; i++ {
		if !seen[i] {
			ve.add(field, "positions must cover 0..%d, missing %d", k-1, i)
			return
		}
	}
}

func uniqueIDs(ve *ValidationError, field string, ids []string) {
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			ve.add(field, "duplicate id %q", id)
		}
		seen[id] = true
	}
}

func optionIDs(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}

func countCorrect(opts []Option) int {
	n := 0
	for _, o := range opts {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

func testCaseIDs(tcs []TestCase) []string {
	out := make([]string, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.ID
	}
	return out
}
