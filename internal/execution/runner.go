package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/algodrill/algodrill/internal/question"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrTimeout             = errors.New("execution timed out")
)

// TestCaseResult is the outcome of running one test case.
type TestCaseResult struct {
	TestCaseID     string  `json:"testCaseId"`
	Passed         bool    `json:"passed"`
	Input          string  `json:"input,omitempty"`
	ExpectedOutput string  `json:"expectedOutput,omitempty"`
	ActualOutput   string  `json:"actualOutput"`
	ExecutionTime  float64 `json:"executionTime"` // seconds
	Memory         int     `json:"memory,omitempty"`
	Error          string  `json:"error,omitempty"`
	CompileOutput  string  `json:"compileOutput,omitempty"`
	IsHidden       bool    `json:"isHidden,omitempty"`
}

// Runner executes source against test cases. Results come back in the order of
// tests and each carries its TestCaseID. A per-test timeout is reported as a failed
// result; an error return means the service itself could not be used.
type Runner interface {
	RunTestCases(ctx context.Context, code, language string, tests []question.TestCase, timeLimit time.Duration) ([]TestCaseResult, error)
}

// Available reports whether r can be used for real grading.
func Available(r Runner) bool { return r != nil }

// AllPassed is true when there is at least one result and none failed.
func AllPassed(results []TestCaseResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Redact removes inputs and outputs of hidden test cases before results go to a learner.
func Redact(results []TestCaseResult) []TestCaseResult {
	out := make([]TestCaseResult, len(results))
	for i, r := range results {
		if r.IsHidden {
			r.Input, r.ExpectedOutput, r.ActualOutput = "", "", ""
		}
		out[i] = r
	}
	return out
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, " \t\n")
}
