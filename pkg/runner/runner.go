// Package runner executes one extrapolation job: it renders a standalone
// python driver script next to the data file, runs it with the data
// file's directory as working directory, and captures the combined
// output to a per-job log alongside the script.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

// driverTemplate is the body of the generated per-job script. It reads
// the christodoulou mass from the run's metadata.txt and hands the data
// file to the extrapolation library; a library exception becomes a
// non-zero exit status.
const driverTemplate = `#!/usr/bin/env python
# Generated by {{.Generator}}; do not edit.

D = {}
D['DataFile'] = '{{.DataFile}}'

import re
ChMass = 0.0
try:
    with open('metadata.txt', 'r') as file:
        for line in file:
            m = re.match(r'\s*relaxed-mass[12]\s*=\s*([0-9.]*)', line)
            if m:
                ChMass += float(m.group(1))
    D['ChMass'] = ChMass
except IOError:
    print("WARNING: could not read metadata.txt in '{{.Directory}}'")

import GWFrames.Extrapolation
try:
    GWFrames.Extrapolation.Extrapolate(**D)
except Exception as e:
    import sys
    print(e)
    sys.exit(1)
`

// Runner runs extrapolation jobs for data files under a repository root.
// It implements the executor contract consumed by the worker loop.
type Runner struct {
	root        string
	interpreter string
	tmpl        *template.Template
	output      io.Writer
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterpreter overrides the interpreter the driver script is run
// with. Default "python".
func WithInterpreter(name string) Option {
	return func(r *Runner) { r.interpreter = name }
}

// WithTemplate replaces the driver script template.
func WithTemplate(body string) Option {
	return func(r *Runner) { r.tmpl = template.Must(template.New("driver").Parse(body)) }
}

// WithOutput sets the writer that mirrors the job's output in addition
// to the per-job log file. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.output = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns a Runner for identities relative to root.
func New(root string, opts ...Option) *Runner {
	r := &Runner{
		root:        root,
		interpreter: "python",
		tmpl:        template.Must(template.New("driver").Parse(driverTemplate)),
		output:      os.Stdout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stem strips the .h5 extension; script and log names derive from it.
func stem(file string) string {
	return strings.TrimSuffix(file, ".h5")
}

// ScriptPath returns where Execute writes the driver script for identity.
func (r *Runner) ScriptPath(identity string) string {
	dir, file := filepath.Split(filepath.FromSlash(identity))
	return filepath.Join(r.root, dir, "Extrapolate_"+stem(file)+".py")
}

// LogPath returns where Execute writes the job's log for identity.
func (r *Runner) LogPath(identity string) string {
	dir, file := filepath.Split(filepath.FromSlash(identity))
	return filepath.Join(r.root, dir, "Extrapolate_"+stem(file)+".log")
}

// Execute renders and runs the driver script for identity and returns
// the script's exit status; zero means success. A non-nil error means
// the job could not be run at all, which is distinct from a job that ran
// and failed.
//
// The script runs with its data directory as working directory, passed
// on the command rather than by changing this process's directory, so
// concurrent jobs never share mutable process state.
func (r *Runner) Execute(ctx context.Context, identity string) (int, error) {
	dir := filepath.Dir(filepath.Join(r.root, filepath.FromSlash(identity)))
	file := filepath.Base(filepath.FromSlash(identity))

	scriptPath := r.ScriptPath(identity)
	if err := r.writeScript(scriptPath, file, dir); err != nil {
		return 0, err
	}

	logFile, err := os.Create(r.LogPath(identity))
	if err != nil {
		return 0, fmt.Errorf("runner: create log: %w", err)
	}
	defer logFile.Close()

	out := io.MultiWriter(logFile, r.output)
	cmd := exec.CommandContext(ctx, r.interpreter, filepath.Base(scriptPath))
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Info("running extrapolation", "datafile", identity, "dir", dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("runner: %s: %w", identity, err)
	}
	return 0, nil
}

func (r *Runner) writeScript(path, dataFile, dir string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("runner: write script: %w", err)
	}
	defer f.Close()

	data := struct {
		Generator string
		DataFile  string
		Directory string
	}{
		Generator: "extrapq",
		DataFile:  escapeSingleQuotes(dataFile),
		Directory: escapeSingleQuotes(dir),
	}
	if err := r.tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("runner: render script: %w", err)
	}
	return nil
}

// escapeSingleQuotes keeps an identity with quote characters from
// breaking out of the generated python string literal.
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
