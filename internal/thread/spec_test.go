package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBasePassesTaskThrough(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeBase, Task: "fix the bug"})
	require.NoError(t, err)
	assert.Equal(t, "fix the bug", cmd)
}

func TestCompileLoopAndZshPassTaskThrough(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeLoop, Task: "watch the build"})
	require.NoError(t, err)
	assert.Equal(t, "watch the build", cmd)

	cmd, err = Compile(Spec{Type: TypeZsh, Task: "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo hi", cmd)
}

func TestCompileRunBuildsRunCommand(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeRun, Agent: "claude", Task: "fix the bug"})
	require.NoError(t, err)
	assert.Equal(t, `/run claude "fix the bug"`, cmd)
}

func TestCompileRunLeavesSingleWordTaskUnquoted(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeRun, Agent: "claude", Task: "rebuild"})
	require.NoError(t, err)
	assert.Equal(t, "/run claude rebuild", cmd)
}

func TestCompileRunMissingAgentErrors(t *testing.T) {
	_, err := Compile(Spec{Type: TypeRun, Task: "fix the bug"})
	assert.Error(t, err)
}

func TestCompileChainJoinsStepsWithArrow(t *testing.T) {
	cmd, err := Compile(Spec{
		Type: TypeChain,
		Steps: []Step{
			{Agent: "claude", Task: "write a plan", Output: "plan.md"},
			{Agent: "codex", Task: "implement the plan", Reads: []string{"plan.md"}, Model: "fast"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `/chain claude[output=plan.md] "write a plan" -> codex[reads=plan.md][model=fast] "implement the plan"`, cmd)
}

func TestCompileChainAppendsNoClarifyWhenSkipClarifyOrAsync(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeChain, SkipClarify: true, Steps: []Step{{Agent: "claude", Task: "go"}}})
	require.NoError(t, err)
	assert.Contains(t, cmd, " --no-clarify")

	cmd, err = Compile(Spec{Type: TypeChain, Async: true, Steps: []Step{{Agent: "claude", Task: "go"}}})
	require.NoError(t, err)
	assert.Contains(t, cmd, " --no-clarify")

	cmd, err = Compile(Spec{Type: TypeChain, Steps: []Step{{Agent: "claude", Task: "go"}}})
	require.NoError(t, err)
	assert.NotContains(t, cmd, "--no-clarify")
}

func TestCompileParallelJoinsStepsWithArrowNoNoClarify(t *testing.T) {
	cmd, err := Compile(Spec{
		Type: TypeParallel,
		Steps: []Step{
			{Agent: "claude", Task: "review this"},
			{Agent: "gemini", Task: "review this"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `/parallel claude "review this" -> gemini "review this"`, cmd)
}

func TestCompileFusionReplicatesTaskAcrossAgents(t *testing.T) {
	cmd, err := Compile(Spec{Type: TypeFusion, Task: "diagnose this crash", Agents: []string{"claude", "codex"}})
	require.NoError(t, err)
	assert.Equal(t, `/parallel claude "diagnose this crash" -> codex "diagnose this crash"`, cmd)
}

func TestCompileUnknownTypeErrors(t *testing.T) {
	_, err := Compile(Spec{Type: "nope", Task: "x"})
	assert.Error(t, err)
}

func TestQuoteWrapsSpacesAndArrowsEscapesQuotes(t *testing.T) {
	assert.Equal(t, "plain", quote("plain"))
	assert.Equal(t, `"has space"`, quote("has space"))
	assert.Equal(t, `"a -> b"`, quote("a -> b"))
	assert.Equal(t, `"say \"hi\""`, quote(`say "hi"`))
	assert.Equal(t, `"already quoted"`, quote(`"already quoted"`))
}
