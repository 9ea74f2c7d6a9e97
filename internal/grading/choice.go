package grading

import "github.com/algodrill/algodrill/internal/question"

func gradeMultipleChoice(c question.MultipleChoice, a question.ChoiceAnswer) bool {
	for _, o := range c.Options {
		if o.IsCorrect {
			return string(a) == o.ID
		}
	}
	return false
}

// gradeMultiSelect is all-or-nothing set equality; PartialCredit only affects the UI.
func gradeMultiSelect(c question.MultiSelect, a question.SelectionAnswer) bool {
	correct := map[string]struct{}{}
	for _, o := range c.Options {
		if o.IsCorrect {
			correct[o.ID] = struct{}{}
		}
	}
	return setEqual(correct, toSet(a))
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
