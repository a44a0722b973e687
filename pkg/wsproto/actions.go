package wsproto

// Action names the gateway's request/response handlers are registered
// under. Notification actions (server -> client, unsolicited) are
// listed separately below.
const (
	ActionHealthCheck = "health.check"

	ActionSessionSend    = "session.send"
	ActionSessionHistory = "session.history"
	ActionSessionClear   = "session.clear"
	ActionSessionQueue   = "session.queue"
	ActionSessionMode    = "session.mode"

	ActionAgentList = "agent.list"

	ActionDiffGet  = "diff.get"
	ActionDiffFull = "diff.full"

	ActionPTYSpawn   = "pty.spawn"
	ActionPTYWrite   = "pty.write"
	ActionPTYResize  = "pty.resize"
	ActionPTYKill    = "pty.kill"
	ActionPTYPreview = "pty.preview"

	ActionRPCCreate = "rpc.create"
	ActionRPCPrompt = "rpc.prompt"
	ActionRPCAbort  = "rpc.abort"
	ActionRPCKill   = "rpc.kill"
	ActionRPCList   = "rpc.list"

	ActionThreadLaunch       = "thread.launch"
	ActionThreadLaunchPreset = "thread.launch_preset"
	ActionThreadList         = "thread.list"
	ActionThreadSteer  = "thread.steer"
	ActionThreadAbort  = "thread.abort"
	ActionThreadKill   = "thread.kill"
	ActionThreadClean  = "thread.clean"

	ActionTeamsCreate       = "teams.create"
	ActionTeamsCreatePreset = "teams.create_preset"
	ActionTeamsList         = "teams.list"
	ActionTeamsGet          = "teams.get"
	ActionTeamsSpawn        = "teams.spawn"
	ActionTeamsProgress     = "teams.progress"
	ActionTeamsTaskCreate   = "teams.task.create"
	ActionTeamsTaskUpdate   = "teams.task.update"
	ActionTeamsTaskDelete   = "teams.task.delete"
	ActionTeamsTaskList     = "teams.task.list"
	ActionTeamsMessageSend  = "teams.message.send"
	ActionTeamsBroadcast    = "teams.broadcast"

	// ActionSessionReply names the notification for a finished session
	// turn. The gateway does not push it on its own; a finished turn is
	// published only as a "session.reply" event on the internal event bus.
	ActionSessionReply = "session.reply"
)

// Error codes used in ErrorPayload.Code.
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeUnauthorized  = "UNAUTHORIZED"
	ErrorCodeForbidden     = "FORBIDDEN"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
	ErrorCodeBusy          = "BUSY"
)
