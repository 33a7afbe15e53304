// Package preflight validates the environment before Synthesis starts:
// storage writability, disk space, Ollama reachability, and cloud
// provider credentials. The doctor command prints the results and
// GET /health reuses them as component statuses.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Config carries the environment the checks probe.
type Config struct {
	// StorageRoot is the document blob directory.
	StorageRoot string
	// DatabasePath is the SQLite file.
	DatabasePath string
	// OllamaHost is the local model endpoint. Empty uses the default.
	OllamaHost string
	// Offline skips network checks; cloud keys downgrade to
	// informational.
	Offline bool
}

// Checker runs preflight validation.
type Checker struct {
	cfg     Config
	verbose bool
	output  io.Writer
	getenv  func(string) string
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose includes check details in printed output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the writer PrintResults uses.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithEnv overrides environment lookup. Tests use this to control key
// presence.
func WithEnv(getenv func(string) string) Option {
	return func(c *Checker) { c.getenv = getenv }
}

// New creates a Checker for the given environment.
func New(cfg Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		output: os.Stdout,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll executes every check and returns the results in print order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckStorageWritable(),
		c.CheckDatabaseDir(),
		c.CheckDiskSpace(),
	}
	if !c.cfg.Offline {
		results = append(results, c.CheckOllama(ctx))
	}
	results = append(results, c.CheckProviderKeys()...)
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus folds the results into "ready", "ready_with_warnings",
// or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	warnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			warnings = true
		}
	}
	if warnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// HealthMap renders results as component statuses for GET /health.
// Passing checks report "ok"; others carry the failure message.
func HealthMap(results []CheckResult) map[string]string {
	out := make(map[string]string, len(results))
	for _, r := range results {
		if r.Status == StatusPass {
			out[r.Name] = "ok"
		} else {
			out[r.Name] = r.Message
		}
	}
	return out
}

// PrintResults writes a human-readable report.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "Synthesis System Check")
	_, _ = fmt.Fprintln(c.output, "======================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, failures []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			failures = append(failures, r.Name+": "+r.Message)
		case r.Status == StatusWarn || r.Status == StatusFail:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	if len(failures) > 0 {
		_, _ = fmt.Fprintf(c.output, "\n%d error(s):\n", len(failures))
		for _, f := range failures {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", f)
		}
	}
	if len(warnings) > 0 {
		_, _ = fmt.Fprintf(c.output, "\n%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckStorageWritable verifies the blob root exists (creating it if
// needed) and accepts writes.
func (c *Checker) CheckStorageWritable() CheckResult {
	return c.checkDirWritable("storage", c.cfg.StorageRoot)
}

// CheckDatabaseDir verifies the directory holding the SQLite file
// accepts writes.
func (c *Checker) CheckDatabaseDir() CheckResult {
	return c.checkDirWritable("database", filepath.Dir(c.cfg.DatabasePath))
}

func (c *Checker) checkDirWritable(name, dir string) CheckResult {
	result := CheckResult{Name: name, Required: true}
	if dir == "" || dir == "." {
		result.Status = StatusFail
		result.Message = "no path configured"
		return result
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	probe := filepath.Join(dir, ".synthesis-preflight")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = "writable"
	result.Details = dir
	return result
}
