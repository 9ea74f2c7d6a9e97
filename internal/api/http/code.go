package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/question"
)

const runTimeLimit = 5 * time.Second

type runCodeReq struct {
	QuestionID string `json:"questionId"`
	Code       string `json:"code"`
	Language   string `json:"language,omitempty"`
}

type runCodeResp struct {
	Configured bool                       `json:"configured"`
	AllPassed  bool                       `json:"allPassed"`
	Results    []execution.TestCaseResult `json:"results"`
	Message    string                     `json:"message,omitempty"`
}

// POST /code/run  runs the visible test cases of a code question. Without an
// execution service it answers configured=false instead of failing.
func RunCodeHandler(store attempt.Store, runner execution.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runCodeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" {
			http.Error(w, "questionId and code required", http.StatusBadRequest)
			return
		}
		q, err := store.GetQuestion(r.Context(), req.QuestionID)
		if err != nil || !canSee(r, q.IsPublic, q.CreatedBy) {
			http.Error(w, "question not found", http.StatusNotFound)
			return
		}

		var (
			lang  string
			tests []question.TestCase
		)
		switch c := q.Content.(type) {
		case question.CodeWriting:
			lang, tests = c.Language, c.TestCases
		case question.Debugging:
			lang, tests = c.Language, c.TestCases
		default:
			http.Error(w, "not a code question", http.StatusBadRequest)
			return
		}
		if req.Language != "" {
			lang = req.Language
		}
		tests = question.VisibleTestCases(tests)

		if !execution.Available(runner) {
			respondJSON(w, http.StatusOK, runCodeResp{
				Configured: false,
				Results:    []execution.TestCaseResult{},
				Message:    "code execution is not configured; submissions are checked heuristically",
			})
			return
		}
		if _, ok := execution.LanguageID(lang); !ok {
			http.Error(w, "unsupported language: "+lang, http.StatusBadRequest)
			return
		}

		results, err := runner.RunTestCases(r.Context(), req.Code, lang, tests, runTimeLimit)
		if err != nil {
			log.Printf("code run for %s by %s: %v", q.ID, authmw.SubjectFromContext(r.Context()), err)
			http.Error(w, "code execution failed", http.StatusBadGateway)
			return
		}
		respondJSON(w, http.StatusOK, runCodeResp{
			Configured: true,
			AllPassed:  execution.AllPassed(results),
			Results:    results,
		})
	}
}
