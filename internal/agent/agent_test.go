package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskTimeoutDefaultsWhenUnset(t *testing.T) {
	task := Task{Prompt: "hi"}
	assert.Equal(t, time.Duration(DefaultTimeoutMs)*time.Millisecond, task.timeout())
}

func TestTaskTimeoutHonorsOverride(t *testing.T) {
	task := Task{Prompt: "hi", TimeoutMs: 5000}
	assert.Equal(t, 5*time.Second, task.timeout())
}

func TestTaskTimeoutRejectsNonPositiveOverride(t *testing.T) {
	task := Task{Prompt: "hi", TimeoutMs: -1}
	assert.Equal(t, time.Duration(DefaultTimeoutMs)*time.Millisecond, task.timeout())
}
