package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage mirrors a status snapshot write for job subscribers
type WSProgressMessage struct {
	Type     string   `json:"type"`
	JobID    string   `json:"jobId"`
	State    JobState `json:"state"`
	Progress int      `json:"progress"`
	Message  string   `json:"message,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
