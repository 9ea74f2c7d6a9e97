package question

import "sort"

// View is what a learner sees while taking a quiz: the prompt, the hints and the
// pieces to arrange, without anything that reveals the answer.
type View struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Topics      []string   `json:"topics"`
	XPReward    int        `json:"xpReward"`
	TimeLimit   *int       `json:"timeLimit,omitempty"`
	Hints       []Hint     `json:"hints,omitempty"`
	Content     any        `json:"content"`
}

type viewPiece struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type viewBlock struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// LearnerView strips correctness data. Arrangeable pieces are sorted by id so the
// authored order does not leak the solution.
func (q Question) LearnerView() View {
	v := View{
		ID:          q.ID,
		Type:        q.Type,
		Title:       q.Title,
		Description: q.Description,
		Difficulty:  q.Difficulty,
		Topics:      q.Topics,
		XPReward:    q.XPReward,
		TimeLimit:   q.TimeLimit,
		Hints:       q.SortedHints(),
	}
	switch c := q.Content.(type) {
	case MultipleChoice:
		v.Content = map[string]any{"options": options(c.Options)}
	case MultiSelect:
		v.Content = map[string]any{"options": options(c.Options), "partialCredit": c.PartialCredit}
	case TrueFalse:
		v.Content = map[string]any{}
	case FillBlank:
		ids := make([]string, len(c.Blanks))
		for i, b := range c.Blanks {
			ids[i] = b.ID
		}
		v.Content = map[string]any{"template": c.Template, "blanks": ids}
	case DragOrder:
		items := make([]viewPiece, len(c.Items))
		for i, it := range c.Items {
			items[i] = viewPiece{ID: it.ID, Text: it.Text}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		v.Content = map[string]any{"items": items}
	case DragMatch:
		left := make([]viewPiece, len(c.LeftItems))
		for i, l := range c.LeftItems {
			left[i] = viewPiece{ID: l.ID, Text: l.Text}
		}
		right := make([]viewPiece, len(c.RightItems))
		for i, r := range c.RightItems {
			right[i] = viewPiece{ID: r.ID, Text: r.Text}
		}
		sort.Slice(right, func(i, j int) bool { return right[i].ID < right[j].ID })
		v.Content = map[string]any{"leftItems": left, "rightItems": right}
	case DragCodeBlocks:
		v.Content = map[string]any{"language": c.Language, "blocks": blocksOf(c.Blocks)}
	case Parsons:
		lines := make([]viewBlock, len(c.CodeLines))
		for i, l := range c.CodeLines {
			lines[i] = viewBlock{ID: l.ID, Code: l.Code}
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
		v.Content = map[string]any{"language": c.Language, "codeLines": lines}
	case CodeWriting:
		v.Content = map[string]any{
			"language":    c.Language,
			"starterCode": c.StarterCode,
			"testCases":   VisibleTestCases(c.TestCases),
		}
	case Debugging:
		v.Content = map[string]any{
			"language":  c.Language,
			"buggyCode": c.BuggyCode,
			"bugCount":  len(c.Bugs),
			"testCases": VisibleTestCases(c.TestCases),
		}
	}
	return v
}

// VisibleTestCases drops hidden test cases.
func VisibleTestCases(tcs []TestCase) []TestCase {
	out := make([]TestCase, 0, len(tcs))
	for _, tc := range tcs {
		if !tc.IsHidden {
			out = append(out, tc)
		}
	}
	return out
}

func options(opts []Option) []viewPiece {
	out := make([]viewPiece, len(opts))
	for i, o := range opts {
		out[i] = viewPiece{ID: o.ID, Text: o.Text}
	}
	return out
}

func blocksOf(blocks []CodeBlock) []viewBlock {
	out := make([]viewBlock, len(blocks))
	for i, b := range blocks {
		out[i] = viewBlock{ID: b.ID, Code: b.Code}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReviewCopy is the question as shown after grading. Answer keys stay, but hidden
// test cases and reference solutions are removed.
func (q Question) ReviewCopy() Question {
	switch c := q.Content.(type) {
	case CodeWriting:
		c.SolutionCode = ""
		c.TestCases = VisibleTestCases(c.TestCases)
		q.Content = c
	case Debugging:
		c.CorrectCode = ""
		c.TestCases = VisibleTestCases(c.TestCases)
		q.Content = c
	}
	return q
}
