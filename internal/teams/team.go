// Package teams implements the filesystem-backed team protocol: a team is
// a named group of agent-type members persisted under
// <baseDir>/teams/<teamName>/config.json, its tasks live one-file-per-task
// under <baseDir>/tasks/<teamName>, and members talk to each other through
// per-recipient inbox files under <baseDir>/teams/<teamName>/inbox/<to>.
package teams

import "time"

// AgentType constrains the roles a team member can be assigned.
type AgentType string

const (
	AgentTypeLead        AgentType = "team-lead"
	AgentTypeReviewer    AgentType = "team-reviewer"
	AgentTypeDebugger    AgentType = "team-debugger"
	AgentTypeImplementer AgentType = "team-implementer"
	AgentTypeGeneral     AgentType = "general-purpose"
)

// Member is one named slot within a team, optionally bound to a specific
// agent wrapper ID once the team is spawned.
type Member struct {
	Name      string    `json:"name"`
	AgentID   string    `json:"agentId,omitempty"`
	AgentType AgentType `json:"agentType"`
}

// Team is the config.json persisted at the root of a team's directory.
type Team struct {
	TeamName  string    `json:"teamName"`
	TeamID    string    `json:"teamId"`
	CreatedAt time.Time `json:"createdAt"`
	Members   []Member  `json:"members"`
}
