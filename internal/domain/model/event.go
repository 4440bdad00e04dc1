package model

import "fmt"

// ConversationChannel is the pub/sub channel subscribers listen on.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

// JobChannel is used by legacy jobs that carry no conversation.
func JobChannel(jobID string) string {
	return fmt.Sprintf("job:%s:responses", jobID)
}

// TokenEvent is the legacy per-token payload. Field names are part of the
// wire contract with existing subscribers.
type TokenEvent struct {
	JobID    string `json:"job_id"`
	Token    string `json:"token"`
	Finished bool   `json:"finished"`
	Error    string `json:"error,omitempty"`
}

// MessageEvent carries a delta or the complete assistant message.
type MessageEvent struct {
	Message    Message `json:"message"`
	IsDelta    bool    `json:"isDelta"`
	IsComplete bool    `json:"isComplete"`
}
