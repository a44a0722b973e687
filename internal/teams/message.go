package teams

import "time"

// MessageType enumerates what a Message represents on the wire.
type MessageType string

const (
	MessageTypeMessage              MessageType = "message"
	MessageTypeBroadcast            MessageType = "broadcast"
	MessageTypeShutdownRequest      MessageType = "shutdown_request"
	MessageTypeShutdownResponse     MessageType = "shutdown_response"
	MessageTypePlanApprovalRequest  MessageType = "plan_approval_request"
	MessageTypePlanApprovalResponse MessageType = "plan_approval_response"
)

// Message is one entry delivered to a single recipient's inbox, persisted
// at teams/<teamName>/inbox/<to>/<id>.json.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Content   string      `json:"content"`
	Summary   string      `json:"summary,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
