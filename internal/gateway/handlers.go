package gateway

import (
	"context"
	"fmt"

	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
	"github.com/pi-gateway/pi-gateway/internal/teams"
	"github.com/pi-gateway/pi-gateway/internal/thread"
	"github.com/pi-gateway/pi-gateway/pkg/wsproto"
)

func (s *Server) registerHandlers() {
	s.dispatcher.RegisterFunc(wsproto.ActionHealthCheck, s.handleHealth)

	s.dispatcher.RegisterFunc(wsproto.ActionSessionSend, s.handleSessionSend)
	s.dispatcher.RegisterFunc(wsproto.ActionSessionHistory, s.handleSessionHistory)
	s.dispatcher.RegisterFunc(wsproto.ActionSessionClear, s.handleSessionClear)
	s.dispatcher.RegisterFunc(wsproto.ActionSessionQueue, s.handleSessionQueue)
	s.dispatcher.RegisterFunc(wsproto.ActionSessionMode, s.handleSessionMode)

	s.dispatcher.RegisterFunc(wsproto.ActionAgentList, s.handleAgentList)

	s.dispatcher.RegisterFunc(wsproto.ActionDiffGet, s.handleDiffGet)
	s.dispatcher.RegisterFunc(wsproto.ActionDiffFull, s.handleDiffFull)

	s.dispatcher.RegisterFunc(wsproto.ActionPTYSpawn, s.handlePTYSpawn)
	s.dispatcher.RegisterFunc(wsproto.ActionPTYWrite, s.handlePTYWrite)
	s.dispatcher.RegisterFunc(wsproto.ActionPTYResize, s.handlePTYResize)
	s.dispatcher.RegisterFunc(wsproto.ActionPTYKill, s.handlePTYKill)
	s.dispatcher.RegisterFunc(wsproto.ActionPTYPreview, s.handlePTYPreview)

	s.dispatcher.RegisterFunc(wsproto.ActionRPCCreate, s.handleRPCCreate)
	s.dispatcher.RegisterFunc(wsproto.ActionRPCPrompt, s.handleRPCPrompt)
	s.dispatcher.RegisterFunc(wsproto.ActionRPCAbort, s.handleRPCAbort)
	s.dispatcher.RegisterFunc(wsproto.ActionRPCKill, s.handleRPCKill)
	s.dispatcher.RegisterFunc(wsproto.ActionRPCList, s.handleRPCList)

	s.dispatcher.RegisterFunc(wsproto.ActionThreadLaunch, s.handleThreadLaunch)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadLaunchPreset, s.handleThreadLaunchPreset)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadList, s.handleThreadList)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadSteer, s.handleThreadSteer)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadAbort, s.handleThreadAbort)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadKill, s.handleThreadKill)
	s.dispatcher.RegisterFunc(wsproto.ActionThreadClean, s.handleThreadClean)

	s.dispatcher.RegisterFunc(wsproto.ActionTeamsCreate, s.handleTeamsCreate)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsCreatePreset, s.handleTeamsCreatePreset)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsList, s.handleTeamsList)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsGet, s.handleTeamsGet)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsSpawn, s.handleTeamsSpawn)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsProgress, s.handleTeamsProgress)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsTaskCreate, s.handleTeamsTaskCreate)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsTaskUpdate, s.handleTeamsTaskUpdate)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsTaskDelete, s.handleTeamsTaskDelete)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsTaskList, s.handleTeamsTaskList)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsMessageSend, s.handleTeamsMessageSend)
	s.dispatcher.RegisterFunc(wsproto.ActionTeamsBroadcast, s.handleTeamsBroadcast)
}

func ok(id, action string, payload interface{}) (*wsproto.Message, error) {
	return wsproto.NewResponse(id, action, payload)
}

func badRequest(id, action, msg string) (*wsproto.Message, error) {
	return wsproto.NewError(id, action, wsproto.ErrorCodeValidation, msg, nil)
}

func notFound(id, action, msg string) (*wsproto.Message, error) {
	return wsproto.NewError(id, action, wsproto.ErrorCodeNotFound, msg, nil)
}

func fromErr(id, action string, err error) (*wsproto.Message, error) {
	code := wsproto.ErrorCodeInternalError
	switch apierr.CodeOf(err) {
	case apierr.CodeNotFound:
		code = wsproto.ErrorCodeNotFound
	case apierr.CodeValidation:
		code = wsproto.ErrorCodeValidation
	case apierr.CodeBusy:
		code = wsproto.ErrorCodeBusy
	case apierr.CodeUnauthorized:
		code = wsproto.ErrorCodeUnauthorized
	}
	return wsproto.NewError(id, action, code, err.Error(), nil)
}

func (s *Server) handleHealth(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	return ok(msg.ID, msg.Action, map[string]interface{}{
		"status":  "ok",
		"service": "pi-gateway",
		"clients": s.hub.ClientCount(),
	})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (s *Server) handleSessionSend(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req sessionRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" || req.Content == "" {
		return badRequest(msg.ID, msg.Action, "session_id and content are required")
	}
	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	reply, err := sess.ProcessMessage(ctx, req.Content)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, reply)
}

func (s *Server) handleSessionHistory(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req sessionRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		return badRequest(msg.ID, msg.Action, "session_id is required")
	}
	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]interface{}{"history": sess.History()})
}

func (s *Server) handleSessionClear(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req sessionRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		return badRequest(msg.ID, msg.Action, "session_id is required")
	}
	sess, ok2 := s.sessions.Get(req.SessionID)
	if !ok2 {
		return ok(msg.ID, msg.Action, map[string]bool{"cleared": false})
	}
	sess.Clear()
	return ok(msg.ID, msg.Action, map[string]bool{"cleared": true})
}

func (s *Server) handleSessionQueue(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req sessionRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		return badRequest(msg.ID, msg.Action, "session_id is required")
	}
	sess, ok2 := s.sessions.Get(req.SessionID)
	if !ok2 {
		return ok(msg.ID, msg.Action, map[string]bool{"busy": false})
	}
	return ok(msg.ID, msg.Action, map[string]bool{"busy": sess.IsBusy()})
}

type sessionModeRequest struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
}

func (s *Server) handleSessionMode(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req sessionModeRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		return badRequest(msg.ID, msg.Action, "session_id is required")
	}
	s.setPinnedAgent(req.SessionID, req.AgentID)
	return ok(msg.ID, msg.Action, map[string]string{"session_id": req.SessionID, "agent_id": req.AgentID})
}

func (s *Server) handleAgentList(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	type agentInfo struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Healthy      bool     `json:"healthy"`
	}
	var out []agentInfo
	for _, w := range s.registry.List() {
		out = append(out, agentInfo{ID: w.ID(), Name: w.Name(), Capabilities: w.Capabilities(), Healthy: s.registry.IsHealthy(ctx, w.ID())})
	}
	return ok(msg.ID, msg.Action, map[string]interface{}{"agents": out})
}

type diffRequest struct {
	WorkDir string `json:"work_dir"`
}

func (s *Server) handleDiffGet(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req diffRequest
	_ = msg.ParsePayload(&req)
	if req.WorkDir == "" {
		req.WorkDir = s.cfg.Agent.WorkDir
	}
	diff, err := shortDiff(ctx, req.WorkDir)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"diff": diff})
}

func (s *Server) handleDiffFull(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req diffRequest
	_ = msg.ParsePayload(&req)
	if req.WorkDir == "" {
		req.WorkDir = s.cfg.Agent.WorkDir
	}
	diff, err := fullDiff(ctx, req.WorkDir)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"diff": diff})
}

type ptySpawnRequest struct {
	Shell   string `json:"shell"`
	WorkDir string `json:"work_dir"`
	Cols    uint16 `json:"cols"`
	Rows    uint16 `json:"rows"`
}

func (s *Server) handlePTYSpawn(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ptySpawnRequest
	_ = msg.ParsePayload(&req)
	id, err := s.pty.Spawn(req.Shell, req.WorkDir, req.Cols, req.Rows)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"pty_id": id})
}

type ptyWriteRequest struct {
	PTYID string `json:"pty_id"`
	Data  string `json:"data"`
}

func (s *Server) handlePTYWrite(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ptyWriteRequest
	if err := msg.ParsePayload(&req); err != nil || req.PTYID == "" {
		return badRequest(msg.ID, msg.Action, "pty_id is required")
	}
	if err := s.pty.Write(req.PTYID, []byte(req.Data)); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"written": true})
}

type ptyResizeRequest struct {
	PTYID string `json:"pty_id"`
	Cols  uint16 `json:"cols"`
	Rows  uint16 `json:"rows"`
}

func (s *Server) handlePTYResize(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ptyResizeRequest
	if err := msg.ParsePayload(&req); err != nil || req.PTYID == "" {
		return badRequest(msg.ID, msg.Action, "pty_id is required")
	}
	if err := s.pty.Resize(req.PTYID, req.Cols, req.Rows); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"resized": true})
}

type ptyIDRequest struct {
	PTYID string `json:"pty_id"`
}

func (s *Server) handlePTYKill(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ptyIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.PTYID == "" {
		return badRequest(msg.ID, msg.Action, "pty_id is required")
	}
	if err := s.pty.Kill(req.PTYID); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"killed": true})
}

const ptyPreviewBytes = 2000

func (s *Server) handlePTYPreview(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ptyIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.PTYID == "" {
		return badRequest(msg.ID, msg.Action, "pty_id is required")
	}
	scrollback, found := s.pty.Scrollback(req.PTYID)
	if !found {
		return fromErr(msg.ID, msg.Action, apierr.New(apierr.CodeNotFound, fmt.Sprintf("pty session %q not found", req.PTYID)))
	}
	if len(scrollback) > ptyPreviewBytes {
		scrollback = scrollback[len(scrollback)-ptyPreviewBytes:]
	}
	return ok(msg.ID, msg.Action, map[string]string{"preview": string(scrollback)})
}

type rpcCreateRequest struct {
	ID      string   `json:"id"`
	Binary  string   `json:"binary"`
	WorkDir string   `json:"work_dir"`
	Argv    []string `json:"argv"`
}

func (s *Server) handleRPCCreate(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req rpcCreateRequest
	if err := msg.ParsePayload(&req); err != nil || req.ID == "" || req.Binary == "" {
		return badRequest(msg.ID, msg.Action, "id and binary are required")
	}
	if _, err := s.rpc.Create(req.ID, req.Binary, req.WorkDir, req.Argv); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"id": req.ID})
}

type rpcPromptRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (s *Server) handleRPCPrompt(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req rpcPromptRequest
	if err := msg.ParsePayload(&req); err != nil || req.ID == "" {
		return badRequest(msg.ID, msg.Action, "id is required")
	}
	sess, found := s.rpc.Get(req.ID)
	if !found {
		return fromErr(msg.ID, msg.Action, apierr.New(apierr.CodeNotFound, fmt.Sprintf("rpc session %q not found", req.ID)))
	}
	if err := sess.Prompt(ctx, req.Text); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"sent": true})
}

type rpcIDRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleRPCAbort(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req rpcIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.ID == "" {
		return badRequest(msg.ID, msg.Action, "id is required")
	}
	sess, found := s.rpc.Get(req.ID)
	if !found {
		return fromErr(msg.ID, msg.Action, apierr.New(apierr.CodeNotFound, fmt.Sprintf("rpc session %q not found", req.ID)))
	}
	if err := sess.Abort(ctx); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"aborted": true})
}

func (s *Server) handleRPCKill(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req rpcIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.ID == "" {
		return badRequest(msg.ID, msg.Action, "id is required")
	}
	if err := s.rpc.Kill(req.ID); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"killed": true})
}

func (s *Server) handleRPCList(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	return ok(msg.ID, msg.Action, map[string]interface{}{"ids": s.rpc.List()})
}

type threadStepRequest struct {
	Agent  string   `json:"agent"`
	Task   string   `json:"task"`
	Output string   `json:"output"`
	Reads  []string `json:"reads"`
	Model  string   `json:"model"`
}

type threadLaunchRequest struct {
	Type        string              `json:"type"`
	Task        string              `json:"task"`
	Agent       string              `json:"agent"`
	Agents      []string            `json:"agents"`
	Steps       []threadStepRequest `json:"steps"`
	SkipClarify bool                `json:"skipClarify"`
	Async       bool                `json:"async"`
	WorkDir     string              `json:"workDir"`
	Binary      string              `json:"binary"`
	Argv        []string            `json:"argv"`
}

func (s *Server) handleThreadLaunch(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req threadLaunchRequest
	if err := msg.ParsePayload(&req); err != nil || req.Type == "" {
		return badRequest(msg.ID, msg.Action, "type is required")
	}
	steps := make([]thread.Step, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = thread.Step{Agent: s.Agent, Task: s.Task, Output: s.Output, Reads: s.Reads, Model: s.Model}
	}
	spec := thread.Spec{
		Type: thread.Type(req.Type), Task: req.Task, Agent: req.Agent, Agents: req.Agents, Steps: steps,
		SkipClarify: req.SkipClarify, Async: req.Async,
		CWD: req.WorkDir, Binary: req.Binary, Argv: req.Argv,
	}
	id, err := s.threads.Launch(spec)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"thread_id": id})
}

type threadPresetLaunchRequest struct {
	Preset  string `json:"preset"`
	Target  string `json:"target"`
	WorkDir string `json:"workDir"`
}

func (s *Server) handleThreadLaunchPreset(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req threadPresetLaunchRequest
	if err := msg.ParsePayload(&req); err != nil || req.Preset == "" {
		return badRequest(msg.ID, msg.Action, "preset is required")
	}
	fn, ok2 := thread.Preset(req.Preset)
	if !ok2 {
		return badRequest(msg.ID, msg.Action, fmt.Sprintf("unknown preset %q", req.Preset))
	}
	spec := fn(req.Target)
	spec.CWD = req.WorkDir
	id, err := s.threads.Launch(spec)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]string{"thread_id": id})
}

func (s *Server) handleThreadList(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	return ok(msg.ID, msg.Action, map[string]interface{}{"thread_ids": s.threads.ListThreads()})
}

type threadSteerRequest struct {
	ThreadID string `json:"thread_id"`
	Input    string `json:"input"`
}

func (s *Server) handleThreadSteer(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req threadSteerRequest
	if err := msg.ParsePayload(&req); err != nil || req.ThreadID == "" {
		return badRequest(msg.ID, msg.Action, "thread_id is required")
	}
	if err := s.threads.SteerThread(ctx, req.ThreadID, req.Input); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"steered": true})
}

type threadIDRequest struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleThreadAbort(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req threadIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.ThreadID == "" {
		return badRequest(msg.ID, msg.Action, "thread_id is required")
	}
	if err := s.threads.AbortThread(ctx, req.ThreadID); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"aborted": true})
}

func (s *Server) handleThreadKill(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req threadIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.ThreadID == "" {
		return badRequest(msg.ID, msg.Action, "thread_id is required")
	}
	if err := s.threads.KillThread(req.ThreadID); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"killed": true})
}

func (s *Server) handleThreadClean(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	return ok(msg.ID, msg.Action, map[string]interface{}{"removed": s.threads.CleanDead()})
}

type teamsCreateRequest struct {
	Name    string         `json:"name"`
	Members []teams.Member `json:"members"`
}

func (s *Server) handleTeamsCreate(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsCreateRequest
	if err := msg.ParsePayload(&req); err != nil || req.Name == "" {
		return badRequest(msg.ID, msg.Action, "name is required")
	}
	team, err := s.teams.CreateTeam(req.Name, req.Members)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, team)
}

type teamsPresetRequest struct {
	Preset string `json:"preset"`
	Name   string `json:"name"`
}

func (s *Server) handleTeamsCreatePreset(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsPresetRequest
	if err := msg.ParsePayload(&req); err != nil || req.Preset == "" {
		return badRequest(msg.ID, msg.Action, "preset is required")
	}
	team, err := s.teams.CreateTeamFromPreset(req.Preset, req.Name)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, team)
}

func (s *Server) handleTeamsList(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	list, err := s.teams.ListTeams()
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]interface{}{"teams": list})
}

type teamNameRequest struct {
	TeamName string `json:"teamName"`
}

func (s *Server) handleTeamsGet(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamNameRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" {
		return badRequest(msg.ID, msg.Action, "teamName is required")
	}
	state, err := s.teams.GetTeamState(req.TeamName)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, state)
}

type teamsSpawnRequest struct {
	TeamName      string `json:"teamName"`
	InitialPrompt string `json:"initialPrompt"`
	Mode          string `json:"mode"`
}

func (s *Server) handleTeamsSpawn(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsSpawnRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" {
		return badRequest(msg.ID, msg.Action, "teamName is required")
	}
	if err := s.teams.SpawnTeam(ctx, req.TeamName, req.InitialPrompt, req.Mode); err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]bool{"spawned": true})
}

func (s *Server) handleTeamsProgress(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamNameRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" {
		return badRequest(msg.ID, msg.Action, "teamName is required")
	}
	completed, total, pct, err := s.teams.Progress(req.TeamName)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]int{"completed": completed, "total": total, "pct": pct})
}

type teamsTaskCreateRequest struct {
	TeamName    string   `json:"teamName"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	BlockedBy   []string `json:"blockedBy"`
	Blocks      []string `json:"blocks"`
}

func (s *Server) handleTeamsTaskCreate(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsTaskCreateRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" || req.Subject == "" {
		return badRequest(msg.ID, msg.Action, "teamName and subject are required")
	}
	task, err := s.teams.CreateTask(req.TeamName, teams.Task{
		Subject: req.Subject, Description: req.Description, Owner: req.Owner,
		BlockedBy: req.BlockedBy, Blocks: req.Blocks,
	})
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, task)
}

type teamsTaskUpdateRequest struct {
	TeamName    string    `json:"teamName"`
	TaskID      string    `json:"taskId"`
	Subject     *string   `json:"subject"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Owner       *string   `json:"owner"`
	BlockedBy   *[]string `json:"blockedBy"`
	Blocks      *[]string `json:"blocks"`
}

func (s *Server) handleTeamsTaskUpdate(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsTaskUpdateRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" || req.TaskID == "" {
		return badRequest(msg.ID, msg.Action, "teamName and taskId are required")
	}
	update := teams.TaskUpdate{
		Subject: req.Subject, Description: req.Description, Owner: req.Owner,
		BlockedBy: req.BlockedBy, Blocks: req.Blocks,
	}
	if req.Status != nil {
		status := teams.Status(*req.Status)
		update.Status = &status
	}
	task, err := s.teams.UpdateTask(req.TeamName, req.TaskID, update)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	if task == nil {
		return notFound(msg.ID, msg.Action, "task not found")
	}
	return ok(msg.ID, msg.Action, task)
}

type teamsTaskIDRequest struct {
	TeamName string `json:"teamName"`
	TaskID   string `json:"taskId"`
}

func (s *Server) handleTeamsTaskDelete(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsTaskIDRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" || req.TaskID == "" {
		return badRequest(msg.ID, msg.Action, "teamName and taskId are required")
	}
	deleted := teams.StatusDeleted
	task, err := s.teams.UpdateTask(req.TeamName, req.TaskID, teams.TaskUpdate{Status: &deleted})
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	if task == nil {
		return notFound(msg.ID, msg.Action, "task not found")
	}
	return ok(msg.ID, msg.Action, map[string]bool{"deleted": true})
}

func (s *Server) handleTeamsTaskList(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamNameRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" {
		return badRequest(msg.ID, msg.Action, "teamName is required")
	}
	tasks, err := s.teams.GetTasks(req.TeamName)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]interface{}{"tasks": tasks})
}

type teamsMessageRequest struct {
	TeamName string `json:"teamName"`
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Content  string `json:"content"`
	Summary  string `json:"summary"`
}

func (s *Server) handleTeamsMessageSend(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsMessageRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" || req.From == "" || req.To == "" {
		return badRequest(msg.ID, msg.Action, "teamName, from, and to are required")
	}
	message, err := s.teams.SendMessage(req.TeamName, teams.Message{
		Type: teams.MessageType(req.Type), From: req.From, To: req.To, Content: req.Content, Summary: req.Summary,
	})
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, message)
}

type teamsBroadcastRequest struct {
	TeamName string `json:"teamName"`
	From     string `json:"from"`
	Content  string `json:"content"`
	Summary  string `json:"summary"`
}

func (s *Server) handleTeamsBroadcast(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req teamsBroadcastRequest
	if err := msg.ParsePayload(&req); err != nil || req.TeamName == "" || req.From == "" {
		return badRequest(msg.ID, msg.Action, "teamName and from are required")
	}
	messages, err := s.teams.Broadcast(req.TeamName, req.From, req.Content, req.Summary)
	if err != nil {
		return fromErr(msg.ID, msg.Action, err)
	}
	return ok(msg.ID, msg.Action, map[string]interface{}{"messages": messages})
}
