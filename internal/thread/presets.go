package thread

// Presets returns the library of named Spec-producing templates the
// gateway ships with. Each preset is a pure function of the run's target
// (a file, directory, or topic) so a caller can materialize the same
// workflow against different inputs.
func Presets() map[string]func(target string) Spec {
	return map[string]func(target string) Spec{
		"code-review":      codeReviewPreset,
		"parallel-review":  parallelReviewPreset,
		"plan-and-build":   planAndBuildPreset,
		"debug-fusion":     debugFusionPreset,
		"parallel-research": parallelResearchPreset,
	}
}

// Preset looks up a named preset, returning (fn, true) on success.
func Preset(name string) (func(target string) Spec, bool) {
	fn, ok := Presets()[name]
	return fn, ok
}

// codeReviewPreset chains one agent reviewing target into a review.md
// artifact and a second agent fixing what it found.
func codeReviewPreset(target string) Spec {
	return Spec{
		Type: TypeChain,
		Steps: []Step{
			{Agent: "claude", Task: "review " + target + " for bugs and style issues", Output: "review.md"},
			{Agent: "claude", Task: "fix the issues described in review.md", Reads: []string{"review.md"}},
		},
	}
}

// parallelReviewPreset fans target out to three independent reviewers
// with no artifact handoff between them.
func parallelReviewPreset(target string) Spec {
	task := "review " + target + " for bugs and style issues"
	return Spec{
		Type: TypeParallel,
		Steps: []Step{
			{Agent: "claude", Task: task},
			{Agent: "codex", Task: task},
			{Agent: "gemini", Task: task},
		},
	}
}

// planAndBuildPreset chains a planner that writes plan.md into an
// implementer that reads it.
func planAndBuildPreset(target string) Spec {
	return Spec{
		Type: TypeChain,
		Steps: []Step{
			{Agent: "claude", Task: "write an implementation plan for " + target, Output: "plan.md"},
			{Agent: "claude", Task: "implement plan.md", Reads: []string{"plan.md"}},
		},
	}
}

// debugFusionPreset replicates the same debugging task across several
// agents so their results can be fused into one answer.
func debugFusionPreset(target string) Spec {
	return Spec{
		Type:   TypeFusion,
		Task:   "diagnose and propose a fix for " + target,
		Agents: []string{"claude", "codex", "gemini"},
	}
}

// parallelResearchPreset fans a research topic out to independent agents,
// each free to take its own angle.
func parallelResearchPreset(target string) Spec {
	topic := "research " + target
	return Spec{
		Type: TypeParallel,
		Steps: []Step{
			{Agent: "claude", Task: topic},
			{Agent: "codex", Task: topic},
			{Agent: "gemini", Task: topic},
		},
	}
}
