package grading

import (
	"context"
	"log"
	"strings"

	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/question"
)

const fallbackNote = "graded without running tests"

func (g *defaultGrader) gradeCodeWriting(ctx context.Context, c question.CodeWriting, code string) Outcome {
	heuristic := Outcome{
		IsCorrect: codeChanged(code, c.StarterCode, g.cfg.MinCodeLength),
		Fallback:  true,
		Feedback:  []string{fallbackNote},
	}
	if !execution.Available(g.cfg.Runner) || len(c.TestCases) == 0 {
		return heuristic
	}
	res, err := g.cfg.Runner.RunTestCases(ctx, code, c.Language, c.TestCases, g.cfg.ExecTimeLimit)
	if err != nil {
		log.Printf("grading: code execution failed, using heuristic: %v", err)
		return heuristic
	}
	return Outcome{IsCorrect: execution.AllPassed(res), TestResults: res}
}

func (g *defaultGrader) gradeDebugging(ctx context.Context, c question.Debugging, code string) Outcome {
	heuristic := Outcome{
		IsCorrect: bugsFixed(code, c.Bugs),
		Fallback:  true,
		Feedback:  []string{fallbackNote},
	}
	if !execution.Available(g.cfg.Runner) || len(c.TestCases) == 0 {
		return heuristic
	}
	res, err := g.cfg.Runner.RunTestCases(ctx, code, c.Language, c.TestCases, g.cfg.ExecTimeLimit)
	if err != nil {
		log.Printf("grading: code execution failed, checking bug lines instead: %v", err)
		return heuristic
	}
	return Outcome{IsCorrect: execution.AllPassed(res), TestResults: res}
}

// codeChanged is the stand-in for real grading when nothing can run the code.
func codeChanged(code, starter string, minLen int) bool {
	code = strings.TrimSpace(code)
	return code != strings.TrimSpace(starter) && len(code) > minLen
}

// bugsFixed checks each declared bug line (1-based) against its fix.
func bugsFixed(code string, bugs []question.Bug) bool {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for _, b := range bugs {
		i := b.Line - 1
		if i < 0 || i >= len(lines) {
			return false
		}
		if strings.TrimSpace(lines[i]) != strings.TrimSpace(b.Fix) {
			return false
		}
	}
	return true
}
