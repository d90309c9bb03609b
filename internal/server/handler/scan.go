package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ScanHandler serves the manual scan trigger endpoint.
type ScanHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending requests one scan pass
}

func NewScanHandler(logger *slog.Logger) *ScanHandler {
	return &ScanHandler{logger: logger}
}

// WithTriggerChannel sets the channel to send on when a pass is requested.
// The scan loop must receive from this channel to run one pass out of cycle.
func (h *ScanHandler) WithTriggerChannel(ch chan<- struct{}) *ScanHandler {
	h.triggerCh = ch
	return h
}

// TriggerScan enqueues one out-of-cycle scan pass. The send is non-blocking;
// a pass already pending absorbs the request. Without a wired scan loop the
// request is rejected rather than silently dropped.
// POST /api/scan/trigger
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusConflict, "no scan loop running in this mode")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: scan trigger requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
