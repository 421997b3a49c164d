package service

// Analysis event types pushed to subscribers.
const (
	EventProgress  = "analysis_progress"
	EventCompleted = "analysis_completed"
	EventFailed    = "analysis_failed"
	EventCancelled = "analysis_cancelled"
)

// Notifier sends real-time analysis events to connected clients.
// Implemented by the WebSocket hub.
type Notifier interface {
	NotifyAnalysis(analysisID string, eventType string, data any)
}

// NoopNotifier is a no-op implementation for the CLI or when WS is disabled.
type NoopNotifier struct{}

func (NoopNotifier) NotifyAnalysis(string, string, any) {}

// ProgressEvent is the payload of EventProgress.
type ProgressEvent struct {
	Done    int `json:"done"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// FailedEvent is the payload of EventFailed.
type FailedEvent struct {
	Error string `json:"error"`
}
