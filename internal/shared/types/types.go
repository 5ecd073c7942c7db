package types

import "time"

// TypeInfo describes one registered class.
type TypeInfo struct {
	Name         string `json:"name"`
	NativeHandle int32  `json:"native_handle"`
	Parent       string `json:"parent,omitempty"`
	ParentHandle int32  `json:"parent_handle"`
}

// TypeDetail is a TypeInfo with its registered ancestry, root first and
// the class itself last.
type TypeDetail struct {
	TypeInfo
	Chain []string `json:"chain"`
}

// TypeList is the response of the type listing.
type TypeList struct {
	Types []TypeInfo `json:"types"`
	Count int        `json:"count"`
}

// ClassList is the response of the catalog listing.
type ClassList struct {
	Classes []string `json:"classes"`
}

// Health reports surface and bridge status.
type Health struct {
	Status     string    `json:"status"`
	SurfaceID  string    `json:"surface_id"`
	Types      int       `json:"types"`
	Classes    int       `json:"classes"`
	Closed     bool      `json:"closed"`
	Error      string    `json:"error,omitempty"`
	HTMLAccess bool      `json:"html_access"`
	StartedAt  time.Time `json:"started_at"`
}

// Scriptable lists what page script can reach.
type Scriptable struct {
	Objects    []string `json:"objects"`
	Createable []string `json:"createable"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WSMessage is one frame of the event stream.
type WSMessage struct {
	Type       string     `json:"type"`
	Subscriber string     `json:"subscriber,omitempty"`
	Event      *TypeEvent `json:"event,omitempty"`
	Message    string     `json:"message,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

// TypeEvent reports one class registration on the stream.
type TypeEvent struct {
	Surface      string    `json:"surface"`
	Type         string    `json:"type"`
	Parent       string    `json:"parent,omitempty"`
	NativeHandle int32     `json:"native_handle"`
	ParentHandle int32     `json:"parent_handle"`
	Time         time.Time `json:"time"`
}

// WebSocket frame types
const (
	WSWelcome    = "welcome"
	WSRegistered = "registered"
	WSPing       = "ping"
	WSPong       = "pong"
	WSError      = "error"
)
