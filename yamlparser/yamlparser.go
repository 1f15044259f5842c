// Package yamlparser is the built-in configuration collaborator for
// dag.WithYAML: it reads a YAML file describing a task graph and
// produces dag.Task values the engine can schedule.
//
// Grounded on ai/configloader/loader.go's Loader (baseDir-relative read
// with an executable-directory fallback, gopkg.in/yaml.v3 unmarshal) and
// on spec.md's configuration-file shape: a mapping of task id to
// {name, after, cmd|script} under the top-level "tasks" key, with
// "${var}" substituted from a
// caller-supplied variable map before the YAML is parsed.
package yamlparser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/taskdag/dag"
)

func init() {
	dag.RegisterYAMLParser(func(vars map[string]string) dag.Parser {
		return New()
	})
}

// entry is one task's YAML representation.
type entry struct {
	Name   string   `yaml:"name"`
	After  []string `yaml:"after"`
	Cmd    string   `yaml:"cmd"`
	Script string   `yaml:"script"`
}

// document is the top-level shape of a task configuration file: a
// mapping of task id to entry, keyed under "tasks" (the teacher's
// config files use a domain-specific top-level key; this module's is
// named for what it holds).
type document struct {
	Tasks map[string]entry `yaml:"tasks"`
}

// Parser implements dag.Parser against the YAML task format described
// above.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// ParseTasks implements dag.Parser.
func (p *Parser) ParseTasks(path string, vars map[string]string) ([]dag.Task, error) {
	raw, err := readFileWithFallback(path)
	if err != nil {
		return nil, errors.Wrapf(err, "yamlparser: read %s", path)
	}

	substituted := substituteVars(string(raw), vars)

	var doc document
	if err := yaml.Unmarshal([]byte(substituted), &doc); err != nil {
		return nil, errors.Wrapf(err, "yamlparser: unmarshal %s", path)
	}

	// Task ids in the config are the YAML keys themselves - they must be
	// stable across reads of the same file and must match the ids other
	// entries reference in "after", so configuredTask takes the key
	// directly instead of minting one through idalloc.
	tasks := make([]dag.Task, 0, len(doc.Tasks))
	for id, e := range doc.Tasks {
		action, err := p.buildAction(e)
		if err != nil {
			return nil, errors.Wrapf(err, "yamlparser: task %q", id)
		}
		tasks = append(tasks, &configuredTask{
			id:           id,
			name:         e.Name,
			predecessors: append([]string(nil), e.After...),
			action:       action,
		})
	}
	return tasks, nil
}

// buildAction validates that exactly one of cmd/script is set and
// returns the Action that runs it via os/exec.
func (p *Parser) buildAction(e entry) (dag.Action, error) {
	switch {
	case e.Cmd != "" && e.Script != "":
		return nil, errors.New("exactly one of cmd or script must be set, not both")
	case e.Cmd != "":
		return execAction{command: e.Cmd}, nil
	case e.Script != "":
		return execAction{command: e.Script}, nil
	default:
		return nil, errors.New("one of cmd or script must be set")
	}
}

// configuredTask is a dag.Task whose id comes directly from the YAML
// key rather than idalloc, since task ids in a config file must match
// the "after" references other entries declare.
type configuredTask struct {
	id           string
	name         string
	predecessors []string
	action       dag.Action
}

func (t *configuredTask) ID() string            { return t.id }
func (t *configuredTask) Name() string           { return t.name }
func (t *configuredTask) Predecessors() []string { return t.predecessors }
func (t *configuredTask) Action() dag.Action     { return t.action }

// execAction runs a shell command via os/exec, the "shell-script task
// actions" collaborator spec.md places out of the engine's core. Its
// Output carries the command's combined stdout+stderr as a string, or an
// ErrorWithExitCode on a non-zero exit.
type execAction struct {
	command string
}

func (a execAction) Run(ctx context.Context, in dag.Input, env *dag.Env) dag.Output {
	cmd := exec.CommandContext(ctx, "sh", "-c", a.command)
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err == nil {
		return dag.Produced(dag.NewContent(string(out)))
	}

	var exitCode *int
	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		exitCode = &code
	}
	return dag.ErrorWithExitCode(exitCode, dag.NewContent(string(out)))
}

// substituteVars replaces ${name} occurrences with vars[name], leaving
// unmatched placeholders untouched (os.Expand's mapping function
// returning the original text would still drop the braces, so this
// walks the string directly to preserve unknown placeholders verbatim).
func substituteVars(text string, vars map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		if text[i] == '$' && i+1 < len(text) && text[i+1] == '{' {
			end := strings.IndexByte(text[i+2:], '}')
			if end >= 0 {
				name := text[i+2 : i+2+end]
				if v, ok := vars[name]; ok {
					b.WriteString(v)
				} else {
					b.WriteString(text[i : i+2+end+1])
				}
				i += 2 + end + 1
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// readFileWithFallback tries path as given, then relative to the running
// executable's directory - mirroring Loader.ReadFileWithFallback's
// dev/production dual lookup.
func readFileWithFallback(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if filepath.IsAbs(path) {
		return nil, err
	}

	execPath, execErr := os.Executable()
	if execErr != nil {
		return nil, err
	}
	alt := filepath.Join(filepath.Dir(execPath), path)
	data, altErr := os.ReadFile(alt)
	if altErr != nil {
		return nil, fmt.Errorf("%s (also tried %s: %w)", err, alt, altErr)
	}
	return data, nil
}
