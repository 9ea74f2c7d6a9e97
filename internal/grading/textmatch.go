package grading

import (
	"fmt"
	"strings"

	"github.com/algodrill/algodrill/internal/question"
)

// gradeFillBlank requires every blank to match one of its accepted answers. A
// missing blank counts as the empty string. Near misses only produce feedback.
func gradeFillBlank(c question.FillBlank, a question.BlankAnswers, maxEdit int) (bool, []string) {
	all := true
	var feedback []string
	for _, b := range c.Blanks {
		got := strings.TrimSpace(a[b.ID])
		if blankMatches(b, got) {
			continue
		}
		all = false
		if got != "" && maxEdit > 0 && nearMiss(b, got, maxEdit) {
			feedback = append(feedback, fmt.Sprintf("blank %s: close, check spelling", b.ID))
		}
	}
	return all, feedback
}

func blankMatches(b question.Blank, got string) bool {
	for _, want := range b.AcceptedAnswers {
		want = strings.TrimSpace(want)
		if b.CaseSensitive {
			if got == want {
				return true
			}
		} else if strings.EqualFold(got, want) {
			return true
		}
	}
	return false
}

func nearMiss(b question.Blank, got string, maxEdit int) bool {
	for _, want := range b.AcceptedAnswers {
		if levenshtein(strings.ToLower(got), strings.ToLower(strings.TrimSpace(want))) <= maxEdit {
			return true
		}
	}
	return false
}

// levenshtein computes edit distance (insertion, deletion, substitution cost 1).
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[m]
}
