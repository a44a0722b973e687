package teams

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-gateway/pi-gateway/internal/events/bus"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(t.TempDir(), "true", nil, nil)
	require.NoError(t, err)
	return d
}

func TestCreateAndGetTeamWritesConfigJSON(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("my-team", []Member{{Name: "impl", AgentType: AgentTypeImplementer}})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(d.baseDir, "teams", "my-team", "config.json"))
	require.NoError(t, err)

	got, err := d.GetTeamConfig("my-team")
	require.NoError(t, err)
	assert.Equal(t, team.TeamID, got.TeamID)
	assert.Len(t, got.Members, 1)
}

func TestCreateTeamFromPresetSeedsMembers(t *testing.T) {
	d := newTestDriver(t)

	team, err := d.CreateTeamFromPreset("review", "")
	require.NoError(t, err)
	assert.Regexp(t, `^review-team-`, team.TeamName)
	require.Len(t, team.Members, 3)
	for _, m := range team.Members {
		assert.Equal(t, AgentTypeReviewer, m.AgentType)
	}
}

func TestCreateTeamFromPresetMigrationComposition(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeamFromPreset("migration", "")
	require.NoError(t, err)
	require.Len(t, team.Members, 4)

	counts := map[AgentType]int{}
	for _, m := range team.Members {
		counts[m.AgentType]++
	}
	assert.Equal(t, 1, counts[AgentTypeLead])
	assert.Equal(t, 2, counts[AgentTypeImplementer])
	assert.Equal(t, 1, counts[AgentTypeReviewer])
}

func TestCreateTeamFromPresetSecurityComposition(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeamFromPreset("security", "")
	require.NoError(t, err)
	require.Len(t, team.Members, 4)
	for _, m := range team.Members {
		assert.Equal(t, AgentTypeReviewer, m.AgentType)
	}
}

func TestCreateTeamFromUnknownPresetErrors(t *testing.T) {
	d := newTestDriver(t)
	_, err := d.CreateTeamFromPreset("does-not-exist", "")
	assert.Error(t, err)
}

func TestListTeamsReturnsAllCreated(t *testing.T) {
	d := newTestDriver(t)
	_, err := d.CreateTeam("a", nil)
	require.NoError(t, err)
	_, err = d.CreateTeam("b", nil)
	require.NoError(t, err)

	teams, err := d.ListTeams()
	require.NoError(t, err)
	assert.Len(t, teams, 2)
}

func TestCreateUpdateTask(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	task, err := d.CreateTask(team.TeamName, Task{Subject: "write tests", Owner: "tester"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.True(t, len(task.ID) > 0)

	completed := StatusCompleted
	updated, err := d.UpdateTask(team.TeamName, task.ID, TaskUpdate{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	_, err = os.Stat(filepath.Join(d.baseDir, "tasks", team.TeamName, task.ID+".json"))
	require.NoError(t, err)
}

func TestUpdateTaskMissingReturnsNilNil(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	completed := StatusCompleted
	task, err := d.UpdateTask(team.TeamName, "does-not-exist", TaskUpdate{Status: &completed})
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestProgressCountsCompletedOverNonDeleted(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	t1, _ := d.CreateTask(team.TeamName, Task{Subject: "a"})
	t2, _ := d.CreateTask(team.TeamName, Task{Subject: "b"})
	t3, _ := d.CreateTask(team.TeamName, Task{Subject: "c"})

	completed := StatusCompleted
	_, err = d.UpdateTask(team.TeamName, t1.ID, TaskUpdate{Status: &completed})
	require.NoError(t, err)

	deleted := StatusDeleted
	_, err = d.UpdateTask(team.TeamName, t3.ID, TaskUpdate{Status: &deleted})
	require.NoError(t, err)

	c, total, pct, err := d.Progress(team.TeamName)
	require.NoError(t, err)
	assert.Equal(t, 1, c)
	assert.Equal(t, 2, total)
	assert.Equal(t, 50, pct)

	_, err = d.UpdateTask(team.TeamName, t2.ID, TaskUpdate{Status: &completed})
	require.NoError(t, err)
	c, total, pct, err = d.Progress(team.TeamName)
	require.NoError(t, err)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, total)
	assert.Equal(t, 100, pct)
}

func TestSendMessageWritesToRecipientInbox(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", []Member{
		{Name: "planner", AgentType: AgentTypeLead},
		{Name: "implementer", AgentType: AgentTypeImplementer},
	})
	require.NoError(t, err)

	msg, err := d.SendMessage(team.TeamName, Message{From: "planner", To: "implementer", Content: "start on task 1"})
	require.NoError(t, err)
	assert.Equal(t, MessageTypeMessage, msg.Type)

	_, err = os.Stat(filepath.Join(d.baseDir, "teams", team.TeamName, "inbox", "implementer", msg.ID+".json"))
	require.NoError(t, err)
}

func TestBroadcastSkipsSenderAndReachesEveryoneElse(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", []Member{
		{Name: "a", AgentType: AgentTypeLead},
		{Name: "b", AgentType: AgentTypeImplementer},
		{Name: "c", AgentType: AgentTypeReviewer},
	})
	require.NoError(t, err)

	sent, err := d.Broadcast(team.TeamName, "a", "status check", "")
	require.NoError(t, err)
	require.Len(t, sent, 2)
	for _, m := range sent {
		assert.Equal(t, MessageTypeBroadcast, m.Type)
		assert.NotEqual(t, "a", m.To)
	}
}

func TestSpawnTeamForwardsOutputAndExitOverBus(t *testing.T) {
	eventBus := bus.NewMemoryBus(nil)
	d, err := NewDriver(t.TempDir(), "echo", eventBus, nil)
	require.NoError(t, err)

	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	exited := make(chan struct{})
	_, err = eventBus.Subscribe(bus.SubjectTeamsPrefix+"team:exit", func(ctx context.Context, ev *bus.Event) error {
		close(exited)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.SpawnTeam(context.Background(), team.TeamName, "", "plan"))

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("expected team:exit to be published once the coordinator exits")
	}
}

func TestWatchIsIdempotentAndUnwatchStops(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	onChange := func([]*Task) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	d.Watch(team.TeamName, onChange)
	d.Watch(team.TeamName, onChange) // idempotent, should not start a second loop

	d.mu.Lock()
	n := len(d.watched)
	d.mu.Unlock()
	assert.Equal(t, 1, n)

	d.Unwatch(team.TeamName)
	d.mu.Lock()
	_, stillWatched := d.watched[team.TeamName]
	d.mu.Unlock()
	assert.False(t, stillWatched)
}

func TestStopAllStopsEveryWatcher(t *testing.T) {
	d := newTestDriver(t)
	teamA, _ := d.CreateTeam("a", nil)
	teamB, _ := d.CreateTeam("b", nil)

	d.Watch(teamA.TeamName, func([]*Task) {})
	d.Watch(teamB.TeamName, func([]*Task) {})

	d.StopAll()

	d.mu.Lock()
	n := len(d.watched)
	d.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestWatchFiresOnChangeWhenATaskIsAdded(t *testing.T) {
	d := newTestDriver(t)
	team, err := d.CreateTeam("t", nil)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	d.Watch(team.TeamName, func([]*Task) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	defer d.StopAll()

	_, err = d.CreateTask(team.TeamName, Task{Subject: "a"})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(4 * time.Second):
		t.Fatal("expected onChange to fire within the poll interval")
	}
}
