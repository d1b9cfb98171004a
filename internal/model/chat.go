package model

import "time"

// TurnRole identifies the author of a chat turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// ChatTurn is one message in the job-creation dialogue.
type ChatTurn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedJobFields mirrors the fields the backend has extracted from the
// conversation so far. All fields stay empty until the server populates
// them; they are filled in monotonically and only reset by clearing the
// whole session.
type ExtractedJobFields struct {
	Task            string  `json:"task,omitempty"`
	TaskDescription string  `json:"task_description,omitempty"`
	Location        string  `json:"location,omitempty"`
	PriceAmount     float64 `json:"price_amount,omitempty"`
	PriceCurrency   string  `json:"price_currency,omitempty"`
	HasImage        bool    `json:"has_image,omitempty"`
}

// ChatSessionState is the server-authoritative session snapshot returned by
// a restore request.
type ChatSessionState struct {
	SessionID  string             `json:"session_id"`
	History    []ChatTurn         `json:"history"`
	Extracted  ExtractedJobFields `json:"extracted_data"`
	IsComplete bool               `json:"is_complete"`
}

// ChatTurnRequest is sent for every user turn. HasImage carries the running
// image-upload flag so the server can track whether a reference image was
// already supplied without the client re-uploading it.
type ChatTurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	HasImage  bool   `json:"has_image"`
}

// ChatTurnResponse is the server's reply to a user turn.
type ChatTurnResponse struct {
	Reply      string             `json:"reply"`
	Extracted  ExtractedJobFields `json:"extracted_data"`
	IsComplete bool               `json:"is_complete"`
}
