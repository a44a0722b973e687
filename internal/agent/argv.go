package agent

// This file holds the concrete ArgvBuilder for every CLI the gateway ships
// a wrapper for. Each builder is a pure, allocation-only function: no I/O,
// no defaults beyond what the CLI itself requires.

func claudeArgv(task Task) []string {
	return []string{"--print", task.Prompt}
}

func aiderArgv(task Task) []string {
	argv := []string{"--message", task.Prompt, "--no-auto-commits"}
	return append(argv, task.Files...)
}

func opencodeArgv(task Task) []string {
	return []string{"run", task.Prompt}
}

func codexArgv(task Task) []string {
	workDir := task.WorkDir
	if workDir == "" {
		workDir = "."
	}
	return []string{"exec", "--full-auto", task.Prompt, "--cd", workDir}
}

func ampArgv(task Task) []string {
	return []string{"-p", task.Prompt, "--yolo"}
}

func copilotArgv(task Task) []string {
	return []string{"run", "--text", task.Prompt}
}

func devinArgv(task Task) []string {
	return []string{"tell", task.Prompt, "--bg"}
}

func openhandsArgv(task Task) []string {
	workDir := task.WorkDir
	if workDir == "" {
		workDir = "."
	}
	return []string{"run", "--problem-statement", task.Prompt, "--repo-path", workDir}
}

func gooseArgv(task Task) []string {
	workDir := task.WorkDir
	if workDir == "" {
		workDir = "."
	}
	return []string{"run", "--quiet", "--cwd", workDir, task.Prompt}
}

func geminiArgv(task Task) []string {
	return []string{"--non-interactive", task.Prompt}
}
