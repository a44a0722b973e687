package agent

import "strings"

// DefaultWrappers returns the catalogue of wrappers the gateway ships with,
// one per supported coding-agent CLI. The registry (internal/registry)
// treats this as its seed set; callers are free to register additional
// wrappers built from custom CLIs the same way RegisterCustomWrapper does.
func DefaultWrappers() []*Wrapper {
	return []*Wrapper{
		NewWrapper("claude", "Claude Code", "claude",
			[]string{"code-edit", "refactor", "general"}, claudeArgv),

		NewWrapper("aider", "Aider", "aider",
			[]string{"code-edit", "refactor"}, aiderArgv),

		NewWrapper("opencode", "opencode", "opencode",
			[]string{"code-edit", "general"}, opencodeArgv),

		NewWrapper("codex", "Codex CLI", "codex",
			[]string{"code-edit", "general"}, codexArgv),

		NewWrapper("amp", "Amp", "amp",
			[]string{"code-edit", "general"}, ampArgv),

		NewWrapper("copilot", "GitHub Copilot CLI", "copilot",
			[]string{"code-edit"}, copilotArgv),

		NewWrapper("devin", "Devin", "devin",
			[]string{"code-edit", "planning"}, devinArgv),

		NewWrapper("openhands", "OpenHands", "openhands",
			[]string{"code-edit", "general"}, openhandsArgv),

		NewWrapper("goose", "Goose", "goose",
			[]string{"code-edit", "general"}, gooseArgv),

		// gemini prints its version banner and keeps running rather than
		// exiting, so health/version needs the 2s-kill override.
		NewWrapper("gemini", "Gemini CLI", "gemini",
			[]string{"code-edit", "general"}, geminiArgv,
			WithVersionProbe(GeminiVersionProbe)),
	}
}

// RegisterCustomWrapper builds a wrapper for an arbitrary CLI by splitting
// command into a binary and fixed leading arguments, substituting "{{prompt}}"
// with the task's prompt if present or else appending the prompt as the
// final argument. This mirrors how operators onboard a CLI the gateway
// does not ship a named wrapper for.
func RegisterCustomWrapper(id, name, command string, capabilities []string) *Wrapper {
	binary, fixedArgs := splitCommand(command)
	build := func(task Task) []string {
		argv := make([]string, 0, len(fixedArgs)+1)
		substituted := false
		for _, arg := range fixedArgs {
			if arg == "{{prompt}}" {
				argv = append(argv, task.Prompt)
				substituted = true
				continue
			}
			argv = append(argv, arg)
		}
		if !substituted {
			argv = append(argv, task.Prompt)
		}
		return argv
	}
	return NewWrapper(id, name, binary, capabilities, build)
}

// splitCommand splits a shell-like command string on whitespace into a
// binary and its argument list, with no quoting support: custom wrappers
// are expected to be configured with simple, space-separated commands.
func splitCommand(command string) (binary string, args []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
