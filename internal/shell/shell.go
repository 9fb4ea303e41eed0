// SPDX-License-Identifier: MPL-2.0

// Package shell runs the external tools a release drives (git and the package
// managers). Mutating commands are echoed instead of executed in dry-run mode.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

type (
	// Runner executes commands in a working directory.
	Runner struct {
		dir         string
		dryRun      bool
		verbose     bool
		echo        io.Writer
		env         []string
		execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	}

	// Option configures a Runner.
	Option func(*Runner)

	// Command is a single invocation.
	Command struct {
		Name string
		Args []string
		// Dir overrides the runner directory when set.
		Dir string
		// Env is appended to the runner environment.
		Env []string
		// Stdout and Stderr additionally receive the live output when set.
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunError is a command that exited unsuccessfully.
	RunError struct {
		Command string
		// Output is the combined stdout and stderr.
		Output string
		Err    error
	}
)

// ErrKilled is returned when a watcher terminated the process.
var ErrKilled = errors.New("process terminated")

// waitDelay bounds how long output pipes are drained after a kill.
const waitDelay = 2 * time.Second

// New creates a Runner rooted at dir.
func New(dir string, opts ...Option) *Runner {
	r := &Runner{
		dir:         dir,
		echo:        io.Discard,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithDryRun makes Mutate print commands instead of running them.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithVerbose echoes every executed command to the echo writer.
func WithVerbose(verbose bool) Option {
	return func(r *Runner) { r.verbose = verbose }
}

// WithEcho sets where commands are echoed.
func WithEcho(w io.Writer) Option {
	return func(r *Runner) { r.echo = w }
}

// WithEnv replaces the base environment (os.Environ by default).
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

// WithExecCommand replaces process creation, for tests.
func WithExecCommand(fn func(ctx context.Context, name string, args ...string) *exec.Cmd) Option {
	return func(r *Runner) { r.execCommand = fn }
}

func (e *RunError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, out)
}

func (e *RunError) Unwrap() error { return e.Err }

// DryRun reports whether mutations are skipped.
func (r *Runner) DryRun() bool { return r.dryRun }

// With returns a copy of the runner rooted at dir.
func (r *Runner) With(dir string) *Runner {
	c := *r
	c.dir = dir
	return &c
}

// Output runs a read-only command and returns its trimmed stdout. It runs in
// dry-run mode too.
func (r *Runner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := r.Run(ctx, Command{Name: name, Args: args})
	return strings.TrimSpace(out), err
}

// Mutate runs a command that changes state. In dry-run mode the command is
// only echoed.
func (r *Runner) Mutate(ctx context.Context, name string, args ...string) error {
	if r.dryRun {
		r.print(Command{Name: name, Args: args})
		return nil
	}
	_, err := r.Run(ctx, Command{Name: name, Args: args})
	return err
}

// Run executes c and returns its stdout.
func (r *Runner) Run(ctx context.Context, c Command) (string, error) {
	cmd, stdout, combined := r.prepare(ctx, c)
	if err := cmd.Run(); err != nil {
		return stdout.String(), &RunError{Command: Quote(c.Name, c.Args...), Output: combined.String(), Err: err}
	}
	return stdout.String(), nil
}

// Watch executes c and calls watch with all output seen so far every time new
// output arrives. When watch returns true the process is killed and ErrKilled is returned wrapped in a
// RunError holding the output seen so far.
func (r *Runner) Watch(ctx context.Context, c Command, watch func(output string) bool) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &watcher{match: watch, cancel: cancel}
	c.Stdout = teeWriter(c.Stdout, w)
	c.Stderr = teeWriter(c.Stderr, w)

	cmd, stdout, combined := r.prepare(ctx, c)
	err := cmd.Run()
	if w.fired.Load() {
		return stdout.String(), &RunError{Command: Quote(c.Name, c.Args...), Output: combined.String(), Err: ErrKilled}
	}
	if err != nil {
		return stdout.String(), &RunError{Command: Quote(c.Name, c.Args...), Output: combined.String(), Err: err}
	}
	return stdout.String(), nil
}

func (r *Runner) prepare(ctx context.Context, c Command) (*exec.Cmd, *bytes.Buffer, *lockedBuffer) {
	if r.verbose {
		r.print(c)
	}
	slog.Debug("exec", "cmd", Quote(c.Name, c.Args...), "dir", r.dirFor(c))

	cmd := r.execCommand(ctx, c.Name, c.Args...)
	cmd.Dir = r.dirFor(c)
	cmd.WaitDelay = waitDelay
	env := r.env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(append([]string(nil), env...), c.Env...)

	var stdout bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = teeWriter(c.Stdout, &stdout, combined)
	cmd.Stderr = teeWriter(c.Stderr, combined)
	return cmd, &stdout, combined
}

func (r *Runner) dirFor(c Command) string {
	if c.Dir != "" {
		return c.Dir
	}
	return r.dir
}

func (r *Runner) print(c Command) {
	prefix := "$"
	if r.dryRun {
		prefix = "[dry-run] $"
	}
	fmt.Fprintf(r.echo, "%s %s\n", prefix, Quote(c.Name, c.Args...))
}

// lockedBuffer collects output written from the stdout and stderr copiers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type watcher struct {
	mu     sync.Mutex
	match  func(string) bool
	cancel context.CancelFunc
	fired  atomic.Bool
	seen   strings.Builder
}

func (w *watcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen.Write(p)
	if !w.fired.Load() && w.match(w.seen.String()) {
		w.fired.Store(true)
		w.cancel()
	}
	return len(p), nil
}

func teeWriter(ws ...io.Writer) io.Writer {
	var out []io.Writer
	for _, w := range ws {
		if w != nil {
			out = append(out, w)
		}
	}
	return io.MultiWriter(out...)
}

// Quote renders a command line the way a POSIX shell would read it back.
func Quote(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{name}, args...) {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			q = a
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Split parses a command line into words. Only literal words and quoting are
// accepted; expansions and operators are rejected.
func Split(line string) ([]string, error) {
	f, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", line, err)
	}
	if len(f.Stmts) != 1 {
		return nil, fmt.Errorf("invalid command %q: expected a single command", line)
	}
	call, ok := f.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok || len(call.Assigns) > 0 {
		return nil, fmt.Errorf("invalid command %q: expected a simple command", line)
	}

	words := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		lit, ok := literal(w)
		if !ok {
			return nil, fmt.Errorf("invalid command %q: expansions are not supported", line)
		}
		words = append(words, lit)
	}
	return words, nil
}

func literal(w *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}
