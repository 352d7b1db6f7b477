package store

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// Runner type constants. The type field discriminates the RunnerConfig and
// ExecutableConfigSnapshot JSON documents.
const (
	RunnerShell  = "shell"
	RunnerHTTP   = "http"
	RunnerPgSQL  = "pgsql"
	RunnerMySQL  = "mysql"
	RunnerPython = "python"
	RunnerNode   = "node"
)

// JobSpec is an operator-defined job: an optional cron schedule plus a typed
// runner configuration describing what to execute.
type JobSpec struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	ScheduleCron   *string       `json:"scheduleCron,omitempty"` // 5-field cron, nil = ad-hoc only
	Enabled        bool          `json:"enabled"`
	RunnerCfg      RunnerConfig  `json:"runnerCfg"`
	MaxConcurrency int           `json:"maxConcurrency"`
	MisfirePolicy  MisfirePolicy `json:"misfirePolicy"`
	CreatedAt      time.Time     `json:"createdAt"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
}

// RunnerConfig describes how a job executes. Exactly one shape applies,
// discriminated by Type; fields for other types stay zero.
type RunnerConfig struct {
	Type string `json:"type"`

	// shell
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`

	// http
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`

	// pgsql / mysql: ConfigID references a SharedConfig holding connection details
	ConfigID uuid.UUID `json:"configId,omitempty"`
	Query    string    `json:"query,omitempty"`

	// python / node
	Module       string `json:"module,omitempty"`
	ClassName    string `json:"className,omitempty"`    // python entry point
	FunctionName string `json:"functionName,omitempty"` // node entry point

	// http / pgsql / mysql / python / node
	TimeoutSec *int `json:"timeoutSec,omitempty"`
}

// Validate checks that the config is internally consistent for its type.
func (rc *RunnerConfig) Validate() error {
	switch rc.Type {
	case RunnerShell:
		if rc.Command == "" {
			return fmt.Errorf("%w: shell runner requires command", ErrInvalidInput)
		}
	case RunnerHTTP:
		if rc.Method == "" || rc.URL == "" {
			return fmt.Errorf("%w: http runner requires method and url", ErrInvalidInput)
		}
		if _, err := url.ParseRequestURI(rc.URL); err != nil {
			return fmt.Errorf("%w: http runner url: %v", ErrInvalidInput, err)
		}
	case RunnerPgSQL, RunnerMySQL:
		if rc.ConfigID == uuid.Nil {
			return fmt.Errorf("%w: %s runner requires configId", ErrInvalidInput, rc.Type)
		}
		if rc.Query == "" {
			return fmt.Errorf("%w: %s runner requires query", ErrInvalidInput, rc.Type)
		}
	case RunnerPython:
		if rc.Module == "" || rc.ClassName == "" {
			return fmt.Errorf("%w: python runner requires module and className", ErrInvalidInput)
		}
	case RunnerNode:
		if rc.Module == "" || rc.FunctionName == "" {
			return fmt.Errorf("%w: node runner requires module and functionName", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown runner type: %q", ErrInvalidInput, rc.Type)
	}
	return nil
}

// ValidateCron checks a 5-field cron expression.
func ValidateCron(expr string) error {
	gx := gronx.New()
	if !gx.IsValid(expr) {
		return fmt.Errorf("%w: invalid cron expression: %q", ErrInvalidInput, expr)
	}
	return nil
}

// Misfire policy kinds. A misfire is a fire time already in the past when the
// scheduler considers it (cold start, job re-enable).
const (
	MisfireSkip            = "skip"
	MisfireRunIfLateWithin = "run_if_late_within"
	MisfireRunImmediately  = "run_immediately"
	MisfireCoalesce        = "coalesce"
	MisfireRunAll          = "run_all"
)

// MisfirePolicy decides what to do with fire times missed while no scheduler
// was materializing runs for the job.
type MisfirePolicy struct {
	Kind string `json:"kind"`
	// LateWindow applies only to run_if_late_within: a missed fire time is still
	// materialized when it is no older than this.
	LateWindow time.Duration `json:"lateWindowSec,omitempty"`
}

// String renders the policy in its stored wire form, e.g. "run_if_late_within(300)".
func (p MisfirePolicy) String() string {
	if p.Kind == MisfireRunIfLateWithin {
		return fmt.Sprintf("%s(%d)", p.Kind, int64(p.LateWindow.Seconds()))
	}
	return p.Kind
}

// ParseMisfirePolicy parses the stored wire form.
func ParseMisfirePolicy(s string) (MisfirePolicy, error) {
	switch s {
	case MisfireSkip, MisfireRunImmediately, MisfireCoalesce, MisfireRunAll:
		return MisfirePolicy{Kind: s}, nil
	}
	if strings.HasPrefix(s, MisfireRunIfLateWithin+"(") && strings.HasSuffix(s, ")") {
		inner := s[len(MisfireRunIfLateWithin)+1 : len(s)-1]
		secs, err := strconv.ParseInt(inner, 10, 64)
		if err != nil || secs < 0 {
			return MisfirePolicy{}, fmt.Errorf("%w: invalid misfire duration: %q", ErrInvalidInput, inner)
		}
		return MisfirePolicy{Kind: MisfireRunIfLateWithin, LateWindow: time.Duration(secs) * time.Second}, nil
	}
	return MisfirePolicy{}, fmt.Errorf("%w: unknown misfire policy: %q", ErrInvalidInput, s)
}

// EnvVar is one (key, value) pair exposed to shell/python/node runners.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
