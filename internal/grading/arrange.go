package grading

import "github.com/algodrill/algodrill/internal/question"

// positions maps each id to the index of its first occurrence.
func positions(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, id := range order {
		if _, seen := m[id]; !seen {
			m[id] = i
		}
	}
	return m
}

// placedAt reports whether id sits at want in the submitted order. Distractors
// (want == question.Distractor) are not checked.
func placedAt(pos map[string]int, id string, want int) bool {
	if want == question.Distractor {
		return true
	}
	got, ok := pos[id]
	return ok && got == want
}

func gradeDragOrder(c question.DragOrder, a question.OrderAnswer) bool {
	pos := positions(a)
	for _, it := range c.Items {
		if !placedAt(pos, it.ID, it.CorrectPosition) {
			return false
		}
	}
	return true
}

func gradeDragMatch(c question.DragMatch, a question.MatchAnswer) bool {
	for _, l := range c.LeftItems {
		if a[l.ID] != l.MatchID {
			return false
		}
	}
	return true
}

func gradeCodeBlocks(c question.DragCodeBlocks, a question.OrderAnswer) bool {
	pos := positions(a)
	for _, b := range c.Blocks {
		if !placedAt(pos, b.ID, b.CorrectPosition) {
			return false
		}
	}
	return true
}

// gradeParsons needs the right line at every position with the right indent.
func gradeParsons(c question.Parsons, a question.ParsonsAnswer) bool {
	for _, l := range c.CodeLines {
		if l.CorrectPosition < 0 || l.CorrectPosition >= len(a) {
			return false
		}
		got := a[l.CorrectPosition]
		if got.ID != l.ID || got.Indent != l.CorrectIndent {
			return false
		}
	}
	return true
}
