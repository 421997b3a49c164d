package handler

import "github.com/freeeve/secgame/api/internal/service"

// NotifyAnalysis implements service.Notifier using the WebSocket hub.
// Subscriptions to an analysis end with its terminal event.
func (h *Hub) NotifyAnalysis(analysisID string, eventType string, data any) {
	h.BroadcastToAnalysis(analysisID, WSEvent{
		Type:       eventType,
		AnalysisID: analysisID,
		Data:       data,
	})
	if eventType != service.EventProgress {
		h.mu.Lock()
		delete(h.analyses, analysisID)
		h.mu.Unlock()
	}
}
