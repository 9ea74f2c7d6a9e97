package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/algodrill/algodrill/internal/question"
)

// Judge0 language ids.
var languageIDs = map[string]int{
	"c":          50,
	"cpp":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
	"rust":       73,
	"typescript": 74,
}

// LanguageID maps a language name to its Judge0 id.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]
	return id, ok
}

// Judge0 status ids.
const (
	statusProcessing  = 2
	statusAccepted    = 3
	statusWrongAnswer = 4
	statusCompileErr  = 6
)

type Config struct {
	BaseURL string
	APIKey  string
	APIHost string // X-RapidAPI-Host, only sent when set

	PollInterval     time.Duration
	PollTimeout      time.Duration
	Concurrency      int
	MemoryLimitKB    int
	DefaultTimeLimit time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MemoryLimitKB <= 0 {
		c.MemoryLimitKB = 128000
	}
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = 5 * time.Second
	}
	return c
}

// Judge0 talks to a Judge0-compatible execution service.
type Judge0 struct {
	http *resty.Client
	cfg  Config
}

func NewJudge0(cfg Config) *Judge0 {
	cfg = cfg.withDefaults()
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.PollTimeout)
	if cfg.APIKey != "" {
		c.SetHeader("X-RapidAPI-Key", cfg.APIKey)
	}
	if cfg.APIHost != "" {
		c.SetHeader("X-RapidAPI-Host", cfg.APIHost)
	}
	return &Judge0{http: c, cfg: cfg}
}

// NewFromConfig returns nil when no service is configured, which callers treat as
// "grade code with heuristics".
func NewFromConfig(cfg Config) Runner {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		log.Printf("code execution not configured; code questions use heuristic grading")
		return nil
	}
	return NewJudge0(cfg)
}

type submissionReq struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int     `json:"memory_limit,omitempty"`
}

type submissionResp struct {
	Token         string `json:"token"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Time          string `json:"time"`
	Memory        int    `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// Execution is a finished Judge0 submission.
type Execution struct {
	StatusID      int
	Status        string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	Time          float64
	Memory        int
}

// Execute submits one program run and polls until it finishes or PollTimeout passes.
func (j *Judge0) Execute(ctx context.Context, code string, languageID int, stdin, expected string, timeLimit time.Duration) (Execution, error) {
	if timeLimit <= 0 {
		timeLimit = j.cfg.DefaultTimeLimit
	}
	var created submissionResp
	res, err := j.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"base64_encoded": "false", "wait": "false"}).
		SetBody(submissionReq{
			SourceCode:     code,
			LanguageID:     languageID,
			Stdin:          stdin,
			ExpectedOutput: expected,
			CPUTimeLimit:   timeLimit.Seconds(),
			MemoryLimit:    j.cfg.MemoryLimitKB,
		}).
		SetResult(&created).
		Post("/submissions")
	if err != nil {
		return Execution{}, fmt.Errorf("submit: %w", err)
	}
	if res.IsError() {
		return Execution{}, fmt.Errorf("submit: %s", res.Status())
	}
	if created.Token == "" {
		return Execution{}, errors.New("submit: empty token")
	}
	return j.poll(ctx, created.Token)
}

func (j *Judge0) poll(ctx context.Context, token string) (Execution, error) {
	pctx, cancel := context.WithTimeout(ctx, j.cfg.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var got submissionResp
		res, err := j.http.R().
			SetContext(pctx).
			SetQueryParam("base64_encoded", "false").
			SetResult(&got).
			Get("/submissions/" + token)
		switch {
		case err != nil && pctx.Err() != nil && ctx.Err() == nil:
			return Execution{}, ErrTimeout
		case err != nil:
			return Execution{}, fmt.Errorf("poll: %w", err)
		case res.IsError():
			return Execution{}, fmt.Errorf("poll: %s", res.Status())
		}
		if got.Status.ID > statusProcessing {
			t, _ := strconv.ParseFloat(got.Time, 64)
			return Execution{
				StatusID:      got.Status.ID,
				Status:        got.Status.Description,
				Stdout:        got.Stdout,
				Stderr:        got.Stderr,
				CompileOutput: got.CompileOutput,
				Message:       got.Message,
				Time:          t,
				Memory:        got.Memory,
			}, nil
		}

		select {
		case <-ctx.Done():
			return Execution{}, ctx.Err()
		case <-pctx.Done():
			return Execution{}, ErrTimeout
		case <-ticker.C:
		}
	}
}

// RunTestCases runs every test case concurrently and reassembles results in input order.
func (j *Judge0) RunTestCases(ctx context.Context, code, language string, tests []question.TestCase, timeLimit time.Duration) ([]TestCaseResult, error) {
	langID, ok := LanguageID(language)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	results := make([]TestCaseResult, len(tests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for i, tc := range tests {
		g.Go(func() error {
			ex, err := j.Execute(gctx, code, langID, tc.Input, tc.ExpectedOutput, timeLimit)
			r := TestCaseResult{
				TestCaseID:     tc.ID,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				IsHidden:       tc.IsHidden,
			}
			switch {
			case errors.Is(err, ErrTimeout):
				r.Error = err.Error()
			case err != nil:
				return fmt.Errorf("test case %s: %w", tc.ID, err)
			default:
				fillResult(&r, ex)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fillResult(r *TestCaseResult, ex Execution) {
	r.ActualOutput = ex.Stdout
	r.ExecutionTime = ex.Time
	r.Memory = ex.Memory
	r.CompileOutput = ex.CompileOutput
	switch ex.StatusID {
	case statusAccepted, statusWrongAnswer:
		r.Passed = normalizeOutput(ex.Stdout) == normalizeOutput(r.ExpectedOutput)
	case statusCompileErr:
		r.Error = "compilation error"
	default:
		msg := ex.Status
		if s := strings.TrimSpace(ex.Stderr); s != "" {
			msg += ": " + s
		} else if s := strings.TrimSpace(ex.Message); s != "" {
			msg += ": " + s
		}
		r.Error = msg
	}
}
