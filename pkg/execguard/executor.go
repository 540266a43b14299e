// Package execguard runs host commands for the planner under an allow-list
// and path sandbox, with a hard timeout and a full audit trail. One command
// per call, no shell interpretation.
package execguard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

// Failure kinds.
const (
	FailRejectedUnsafe = "rejected_unsafe"
	FailTimeout        = "timeout"
	FailSpawnError     = "spawn_error"
)

// Result is the outcome of one execution attempt.
type Result struct {
	Success    bool
	Stdout     string
	Stderr     string
	ReturnCode int
	Failure    string // one of the Fail* kinds when Success is false and the command did not run
	Reason     string
}

// auditEntry is one line of the audit stream.
type auditEntry struct {
	Timestamp  string   `json:"ts"`
	Argv       []string `json:"argv"`
	Allowed    bool     `json:"allowed"`
	ReturnCode int      `json:"returncode"`
	Reason     string   `json:"reason,omitempty"`
}

// Executor enforces the sandbox. Stateless apart from config and audit.
type Executor struct {
	cfg    *config.ExecConfig
	st     *store.Store
	logger *slog.Logger
}

// New creates an executor with the configured allow-lists.
func New(cfg *config.ExecConfig, st *store.Store) *Executor {
	return &Executor{
		cfg:    cfg,
		st:     st,
		logger: slog.Default().With("component", "execguard"),
	}
}

// metacharacters that would smuggle a second command through the argv parse.
var forbiddenTokens = []string{";", "&&", "||", "|", "`", "$("}

// dangerous rm targets, checked verbatim against each argument.
var forbiddenRMArgs = []string{"/", "..", "~", "/*", ".*"}

// Run parses, vets, and executes a single command line.
func (e *Executor) Run(ctx context.Context, commandLine string) Result {
	argv, err := splitArgs(commandLine)
	if err != nil {
		return e.reject(nil, fmt.Sprintf("parse error: %v", err))
	}
	if len(argv) == 0 {
		return e.reject(nil, "empty command")
	}

	for _, tok := range forbiddenTokens {
		if strings.Contains(commandLine, tok) {
			return e.reject(argv, fmt.Sprintf("shell metacharacter %q", tok))
		}
	}

	program := filepath.Base(argv[0])
	if !slices.Contains(e.cfg.AllowedPrograms, program) {
		return e.reject(argv, fmt.Sprintf("program %q not in allow-list", program))
	}

	if program == "systemctl" {
		if len(argv) < 2 || !slices.Contains(e.cfg.ServiceVerbs, argv[1]) {
			return e.reject(argv, "service verb not allowed")
		}
	}

	if program == "rm" {
		for _, arg := range argv[1:] {
			if slices.Contains(forbiddenRMArgs, arg) {
				return e.reject(argv, fmt.Sprintf("rm target %q refused", arg))
			}
		}
	}

	if takesPaths(program) {
		for _, arg := range argv[1:] {
			if !looksLikePath(arg) {
				continue
			}
			if !e.insideAllowedRoot(arg) {
				return e.reject(argv, fmt.Sprintf("path %q outside allowed roots", arg))
			}
		}
	}

	return e.spawn(ctx, argv)
}

func (e *Executor) spawn(ctx context.Context, argv []string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout.Duration)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout: truncate(stdout.String(), e.cfg.OutputLimit),
		Stderr: truncate(stderr.String(), e.cfg.OutputLimit),
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.Failure = FailTimeout
		res.Reason = fmt.Sprintf("timed out after %s", e.cfg.Timeout.Duration)
		res.ReturnCode = -1
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ReturnCode = exitErr.ExitCode()
		} else {
			res.Failure = FailSpawnError
			res.Reason = err.Error()
			res.ReturnCode = -1
		}
	default:
		res.Success = true
	}

	e.audit(argv, true, res.ReturnCode, res.Reason)
	e.logger.Info("Command executed",
		"argv", argv, "returncode", res.ReturnCode, "elapsed", elapsed, "success", res.Success)
	return res
}

func (e *Executor) reject(argv []string, reason string) Result {
	e.audit(argv, false, -1, reason)
	e.logger.Warn("Command rejected", "argv", argv, "reason", reason)
	return Result{Failure: FailRejectedUnsafe, Reason: reason, ReturnCode: -1}
}

func (e *Executor) audit(argv []string, allowed bool, rc int, reason string) {
	entry := auditEntry{
		Timestamp:  time.Now().Format(time.RFC3339),
		Argv:       argv,
		Allowed:    allowed,
		ReturnCode: rc,
		Reason:     reason,
	}
	if err := store.AppendJSONL(e.st.AuditLogPath(), entry); err != nil {
		e.logger.Error("Failed to append audit log", "error", err)
	}
}

// insideAllowedRoot resolves the argument (absolute, ~-expanded, and
// lexically cleaned so ../ cannot escape) and checks it against the roots.
func (e *Executor) insideAllowedRoot(arg string) bool {
	resolved := arg
	if strings.HasPrefix(resolved, "~") {
		return false // home expansion is never inside a configured root
	}
	if !filepath.IsAbs(resolved) {
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return false
		}
		resolved = abs
	}
	resolved = filepath.Clean(resolved)

	for _, root := range e.cfg.AllowedRoots {
		root = filepath.Clean(root)
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// pathPrograms is the set of allow-listed programs whose arguments are
// subject to the root sandbox.
var pathPrograms = []string{
	"cp", "mv", "rm", "chmod", "chown", "touch", "mkdir",
	"cat", "grep", "find", "ls", "head", "tail",
}

func takesPaths(program string) bool {
	return slices.Contains(pathPrograms, program)
}

// looksLikePath reports whether an argument should be sandbox-checked.
// URLs and bare names (flags, service units, grep patterns) are exempt.
func looksLikePath(arg string) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}
	if strings.Contains(arg, "://") {
		return false
	}
	return strings.HasPrefix(arg, "/") ||
		strings.HasPrefix(arg, ".") ||
		strings.HasPrefix(arg, "~") ||
		strings.Contains(arg, "/")
}

func truncate(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit] + "\n...[truncated]"
	}
	return s
}
