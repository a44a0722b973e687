package teams

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/internal/events/bus"
)

const watchInterval = 2 * time.Second

// watcher tracks one team's poll loop so Watch/Unwatch can be idempotent.
type watcher struct {
	stop chan struct{}
}

// Driver owns the on-disk team/task/message protocol rooted at baseDir:
// teams/<teamName>/config.json, teams/<teamName>/inbox/<to>/<id>.json, and
// tasks/<teamName>/<id>.json.
type Driver struct {
	baseDir           string
	coordinatorBinary string

	mu      sync.Mutex
	watched map[string]*watcher

	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewDriver creates the teams/ and tasks/ directory structure under
// baseDir if it doesn't already exist. eventBus may be nil, in which case
// the driver emits no events.
func NewDriver(baseDir, coordinatorBinary string, eventBus bus.EventBus, log *logger.Logger) (*Driver, error) {
	if log == nil {
		log = logger.Default()
	}
	if coordinatorBinary == "" {
		coordinatorBinary = "claude"
	}
	d := &Driver{
		baseDir:           baseDir,
		coordinatorBinary: coordinatorBinary,
		watched:           make(map[string]*watcher),
		eventBus:          eventBus,
		logger:            log,
	}
	for _, dir := range []string{d.teamsDir(), d.tasksRootDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("teams: create %s: %w", dir, err)
		}
	}
	return d, nil
}

func (d *Driver) teamsDir() string     { return filepath.Join(d.baseDir, "teams") }
func (d *Driver) tasksRootDir() string { return filepath.Join(d.baseDir, "tasks") }
func (d *Driver) teamDir(teamName string) string {
	return filepath.Join(d.teamsDir(), teamName)
}
func (d *Driver) configFile(teamName string) string {
	return filepath.Join(d.teamDir(teamName), "config.json")
}
func (d *Driver) inboxDir(teamName string) string {
	return filepath.Join(d.teamDir(teamName), "inbox")
}
func (d *Driver) memberInboxDir(teamName, to string) string {
	return filepath.Join(d.inboxDir(teamName), to)
}
func (d *Driver) taskDir(teamName string) string {
	return filepath.Join(d.tasksRootDir(), teamName)
}
func (d *Driver) taskFile(teamName, taskID string) string {
	return filepath.Join(d.taskDir(teamName), taskID+".json")
}

func (d *Driver) publish(eventType string, payload interface{}) {
	if d.eventBus == nil {
		return
	}
	if err := d.eventBus.Publish(context.Background(), bus.SubjectTeamsPrefix+eventType, bus.NewEvent(eventType, "teams", payload)); err != nil {
		d.logger.Warn("teams: publish failed", zap.String("event", eventType), zap.Error(err))
	}
}

// CreateTeam persists a new team under teamName, seeded with members.
func (d *Driver) CreateTeam(teamName string, members []Member) (*Team, error) {
	team := &Team{
		TeamName:  teamName,
		TeamID:    newID("team"),
		CreatedAt: time.Now(),
		Members:   members,
	}
	if err := os.MkdirAll(d.inboxDir(teamName), 0o755); err != nil {
		return nil, fmt.Errorf("teams: create inbox dir: %w", err)
	}
	for _, m := range members {
		if err := os.MkdirAll(d.memberInboxDir(teamName, m.Name), 0o755); err != nil {
			return nil, fmt.Errorf("teams: create member inbox dir: %w", err)
		}
	}
	if err := os.MkdirAll(d.taskDir(teamName), 0o755); err != nil {
		return nil, fmt.Errorf("teams: create task dir: %w", err)
	}
	if err := d.writeTeam(team); err != nil {
		return nil, err
	}
	d.publish("team:created", team)
	return team, nil
}

// CreateTeamFromPreset materializes preset into a team. When name is
// empty, a name matching "<preset>-team-<rand>" is generated.
func (d *Driver) CreateTeamFromPreset(preset, name string) (*Team, error) {
	members, ok := LookupPreset(preset)
	if !ok {
		return nil, apierr.New(apierr.CodeNotFound, fmt.Sprintf("teams: unknown preset %q", preset))
	}
	if name == "" {
		name = fmt.Sprintf("%s-team-%s", preset, randomSuffix())
	}
	return d.CreateTeam(name, members)
}

// GetTeamConfig loads a team's config.json by name.
func (d *Driver) GetTeamConfig(teamName string) (*Team, error) {
	data, err := os.ReadFile(d.configFile(teamName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.New(apierr.CodeNotFound, fmt.Sprintf("teams: team %q not found", teamName))
		}
		return nil, err
	}
	var team Team
	if err := json.Unmarshal(data, &team); err != nil {
		return nil, fmt.Errorf("teams: decode team %q: %w", teamName, err)
	}
	return &team, nil
}

// ListTeams returns every persisted team, sorted by name.
func (d *Driver) ListTeams() ([]*Team, error) {
	entries, err := os.ReadDir(d.teamsDir())
	if err != nil {
		return nil, err
	}
	var teams []*Team
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		team, err := d.GetTeamConfig(e.Name())
		if err != nil {
			continue
		}
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamName < teams[j].TeamName })
	return teams, nil
}

func (d *Driver) writeTeam(team *Team) error {
	data, err := json.MarshalIndent(team, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.configFile(team.TeamName), data, 0o644)
}

// SpawnTeam starts the external coordinator process for teamName in its
// team directory, with CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS=1 set and
// --teammate-mode mode passed through. initialPrompt, if non-empty, is
// written to the coordinator's stdin once it starts. Output, errors, and
// exit are forwarded as team:output, team:stderr, and team:exit events.
func (d *Driver) SpawnTeam(ctx context.Context, teamName, initialPrompt, mode string) error {
	if _, err := d.GetTeamConfig(teamName); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, d.coordinatorBinary, "--teammate-mode", mode)
	cmd.Dir = d.teamDir(teamName)
	cmd.Env = append(os.Environ(), "CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("teams: open coordinator stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("teams: open coordinator stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("teams: open coordinator stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("teams: start coordinator: %w", err)
	}

	go d.forwardLines(teamName, "team:output", stdout)
	go d.forwardLines(teamName, "team:stderr", stderr)
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			code = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
		}
		d.publish("team:exit", map[string]interface{}{"teamName": teamName, "exitCode": code})
	}()

	if initialPrompt != "" {
		if _, err := stdin.Write([]byte(initialPrompt + "\n")); err != nil {
			return fmt.Errorf("teams: prompt coordinator: %w", err)
		}
	}
	return nil
}

func (d *Driver) forwardLines(teamName, eventType string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		d.publish(eventType, map[string]interface{}{"teamName": teamName, "line": scanner.Text()})
	}
}

// CreateTask persists a new task under a team.
func (d *Driver) CreateTask(teamName string, partial Task) (*Task, error) {
	if _, err := d.GetTeamConfig(teamName); err != nil {
		return nil, err
	}
	now := time.Now()
	task := &Task{
		ID:          newID("task"),
		Subject:     partial.Subject,
		Description: partial.Description,
		Status:      StatusPending,
		Owner:       partial.Owner,
		BlockedBy:   partial.BlockedBy,
		Blocks:      partial.Blocks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if partial.Status != "" {
		task.Status = partial.Status
	}
	if err := d.writeTask(teamName, task); err != nil {
		return nil, err
	}
	d.publish("task:created", task)
	return task, nil
}

// UpdateTask applies a partial update to an existing task. Returns
// (nil, nil) if the task doesn't exist.
func (d *Driver) UpdateTask(teamName, taskID string, update TaskUpdate) (*Task, error) {
	task, err := d.GetTask(teamName, taskID)
	if err != nil {
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	task.apply(update)
	task.UpdatedAt = time.Now()
	if err := d.writeTask(teamName, task); err != nil {
		return nil, err
	}
	d.publish("task:updated", task)
	return task, nil
}

// GetTask loads one task by ID.
func (d *Driver) GetTask(teamName, taskID string) (*Task, error) {
	data, err := os.ReadFile(d.taskFile(teamName, taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.New(apierr.CodeNotFound, fmt.Sprintf("teams: task %q not found", taskID))
		}
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("teams: decode task %q: %w", taskID, err)
	}
	return &task, nil
}

// GetTasks returns every task (including deleted ones) for a team,
// oldest first.
func (d *Driver) GetTasks(teamName string) ([]*Task, error) {
	entries, err := os.ReadDir(d.taskDir(teamName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tasks []*Task
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		task, err := d.GetTask(teamName, id)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (d *Driver) writeTask(teamName string, task *Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.taskFile(teamName, task.ID), data, 0o644)
}

// GetTeamState bundles a team's config and tasks with its completion
// percentage.
type TeamState struct {
	Team     *Team   `json:"team"`
	Tasks    []*Task `json:"tasks"`
	Progress int     `json:"progress"`
}

// GetTeamState returns one team's bundled state.
func (d *Driver) GetTeamState(teamName string) (*TeamState, error) {
	team, err := d.GetTeamConfig(teamName)
	if err != nil {
		return nil, err
	}
	tasks, err := d.GetTasks(teamName)
	if err != nil {
		return nil, err
	}
	return &TeamState{Team: team, Tasks: tasks, Progress: progressOf(tasks)}, nil
}

// GetAllTeamStates returns every team's bundled state.
func (d *Driver) GetAllTeamStates() ([]*TeamState, error) {
	teams, err := d.ListTeams()
	if err != nil {
		return nil, err
	}
	states := make([]*TeamState, 0, len(teams))
	for _, team := range teams {
		state, err := d.GetTeamState(team.TeamName)
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// Progress returns completed/total/pct for a team: completed tasks over
// every task whose status isn't "deleted", rounded to the nearest whole
// percent.
func (d *Driver) Progress(teamName string) (completed, total, pct int, err error) {
	tasks, err := d.GetTasks(teamName)
	if err != nil {
		return 0, 0, 0, err
	}
	completed, total = 0, 0
	for _, t := range tasks {
		if t.Status == StatusDeleted {
			continue
		}
		total++
		if t.Status == StatusCompleted {
			completed++
		}
	}
	if total == 0 {
		return completed, total, 0, nil
	}
	return completed, total, int((float64(completed)/float64(total))*100 + 0.5), nil
}

func progressOf(tasks []*Task) int {
	var total, completed int
	for _, t := range tasks {
		if t.Status == StatusDeleted {
			continue
		}
		total++
		if t.Status == StatusCompleted {
			completed++
		}
	}
	if total == 0 {
		return 0
	}
	return int((float64(completed)/float64(total))*100 + 0.5)
}

// SendMessage writes one message to teamName's inbox for msg.To.
func (d *Driver) SendMessage(teamName string, msg Message) (*Message, error) {
	if _, err := d.GetTeamConfig(teamName); err != nil {
		return nil, err
	}
	msg.ID = newID("msg")
	msg.Timestamp = time.Now()
	if msg.Type == "" {
		msg.Type = MessageTypeMessage
	}
	if err := os.MkdirAll(d.memberInboxDir(teamName, msg.To), 0o755); err != nil {
		return nil, fmt.Errorf("teams: create inbox dir for %q: %w", msg.To, err)
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(d.memberInboxDir(teamName, msg.To), msg.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	d.publish("message:sent", msg)
	return &msg, nil
}

// Broadcast sends content from from to every other member of the team.
func (d *Driver) Broadcast(teamName, from, content, summary string) ([]*Message, error) {
	team, err := d.GetTeamConfig(teamName)
	if err != nil {
		return nil, err
	}
	var sent []*Message
	for _, m := range team.Members {
		if m.Name == from {
			continue
		}
		msg, err := d.SendMessage(teamName, Message{Type: MessageTypeBroadcast, From: from, To: m.Name, Content: content, Summary: summary})
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}

// Watch starts a 2-second poll loop that calls onChange with the team's
// current task list whenever its serialized form changes. Calling Watch
// again for a team already being watched is a no-op.
func (d *Driver) Watch(teamName string, onChange func([]*Task)) {
	d.mu.Lock()
	if _, exists := d.watched[teamName]; exists {
		d.mu.Unlock()
		return
	}
	w := &watcher{stop: make(chan struct{})}
	d.watched[teamName] = w
	d.mu.Unlock()

	go func() {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		var lastSerialized string
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				tasks, err := d.GetTasks(teamName)
				if err != nil {
					d.logger.Warn("teams: poll failed", zap.String("teamName", teamName), zap.Error(err))
					continue
				}
				data, err := json.Marshal(tasks)
				if err != nil {
					continue
				}
				if string(data) == lastSerialized {
					continue
				}
				lastSerialized = string(data)
				d.publish("tasks:changed", map[string]interface{}{"teamName": teamName, "tasks": tasks})
				onChange(tasks)
			}
		}
	}()
}

// Unwatch stops a team's poll loop, if one is running.
func (d *Driver) Unwatch(teamName string) {
	d.mu.Lock()
	w, exists := d.watched[teamName]
	if exists {
		delete(d.watched, teamName)
	}
	d.mu.Unlock()
	if exists {
		close(w.stop)
	}
}

// StopAll stops every running poll loop.
func (d *Driver) StopAll() {
	d.mu.Lock()
	watched := d.watched
	d.watched = make(map[string]*watcher)
	d.mu.Unlock()
	for _, w := range watched {
		close(w.stop)
	}
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
