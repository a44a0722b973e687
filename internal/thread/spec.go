// Package thread compiles declarative thread specs into agent slash
// commands and drives the resulting runs over a dedicated RPC session:
// launch, list, steer input, abort, kill, and reap dead runs.
package thread

import (
	"fmt"
	"strings"
)

// Type selects how a Spec compiles into a slash-command string.
type Type string

const (
	// TypeBase sends Task to the session verbatim, no slash command.
	TypeBase Type = "base"
	// TypeLoop behaves like TypeBase; looping is the caller's concern
	// once the underlying agent session is interactive.
	TypeLoop Type = "l"
	// TypeZsh behaves like TypeBase.
	TypeZsh Type = "z"
	// TypeRun compiles to "/run <agent> <task>".
	TypeRun Type = "b"
	// TypeChain compiles to "/chain <step> -> <step> -> ..." with
	// artifact handoff between steps.
	TypeChain Type = "c"
	// TypeParallel compiles to "/parallel <step> -> <step> -> ..." with
	// no artifact handoff.
	TypeParallel Type = "p"
	// TypeFusion replicates Task to every entry in Agents and compiles
	// to the same "/parallel ..." syntax as TypeParallel.
	TypeFusion Type = "f"
)

// Step is one stage of a chain or parallel run.
type Step struct {
	Agent  string
	Task   string
	Output string   // artifact file this step writes, if any
	Reads  []string // artifact files this step reads, if any
	Model  string   // model override, if any
}

// Spec declaratively describes one thread to launch.
type Spec struct {
	Type Type

	// Task is the raw task text for TypeBase/TypeLoop/TypeZsh/TypeRun,
	// and the task replicated to every agent for TypeFusion.
	Task string
	// Agent names the single agent for TypeRun.
	Agent string
	// Agents names the fan-out set for TypeFusion.
	Agents []string
	// Steps lists the ordered stages for TypeChain/TypeParallel.
	Steps []Step

	// SkipClarify and Async both append " --no-clarify" to a chain.
	SkipClarify bool
	Async       bool

	// CWD is the dedicated RPC session's working directory.
	CWD string
	// Binary and Argv start the dedicated RPC session; Binary defaults
	// to "claude" when empty.
	Binary string
	Argv   []string
}

// Compile turns spec into the slash-command string a dedicated RPC
// session should be prompted with.
func Compile(spec Spec) (string, error) {
	switch spec.Type {
	case TypeBase, TypeLoop, TypeZsh, "":
		if strings.TrimSpace(spec.Task) == "" {
			return "", fmt.Errorf("thread spec: %q type requires a task", spec.Type)
		}
		return spec.Task, nil

	case TypeRun:
		if spec.Agent == "" {
			return "", fmt.Errorf("thread spec: run type requires an agent")
		}
		if strings.TrimSpace(spec.Task) == "" {
			return "", fmt.Errorf("thread spec: run type requires a task")
		}
		return fmt.Sprintf("/run %s %s", spec.Agent, quote(spec.Task)), nil

	case TypeChain:
		if len(spec.Steps) == 0 {
			return "", fmt.Errorf("thread spec: chain type requires at least one step")
		}
		cmd := "/chain " + joinSteps(spec.Steps)
		if spec.SkipClarify || spec.Async {
			cmd += " --no-clarify"
		}
		return cmd, nil

	case TypeParallel:
		if len(spec.Steps) == 0 {
			return "", fmt.Errorf("thread spec: parallel type requires at least one step")
		}
		return "/parallel " + joinSteps(spec.Steps), nil

	case TypeFusion:
		if len(spec.Agents) == 0 {
			return "", fmt.Errorf("thread spec: fusion type requires at least one agent")
		}
		if strings.TrimSpace(spec.Task) == "" {
			return "", fmt.Errorf("thread spec: fusion type requires a task")
		}
		steps := make([]Step, len(spec.Agents))
		for i, agent := range spec.Agents {
			steps[i] = Step{Agent: agent, Task: spec.Task}
		}
		return "/parallel " + joinSteps(steps), nil

	default:
		return "", fmt.Errorf("thread spec: unknown type %q", spec.Type)
	}
}

func joinSteps(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = formatStep(s)
	}
	return strings.Join(parts, " -> ")
}

func formatStep(s Step) string {
	var b strings.Builder
	b.WriteString(s.Agent)
	if s.Output != "" {
		fmt.Fprintf(&b, "[output=%s]", s.Output)
	}
	if len(s.Reads) > 0 {
		fmt.Fprintf(&b, "[reads=%s]", strings.Join(s.Reads, "+"))
	}
	if s.Model != "" {
		fmt.Fprintf(&b, "[model=%s]", s.Model)
	}
	b.WriteByte(' ')
	b.WriteString(quote(s.Task))
	return b.String()
}

// quote wraps s in double quotes, escaping embedded quotes, whenever s
// contains a space or the step separator "->". Already-quoted strings
// pass through unchanged.
func quote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s
	}
	if strings.ContainsAny(s, " ") || strings.Contains(s, "->") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
