package api

import (
	"context"
	"net/http"

	"github.com/gorilla/schema"

	"github.com/nerrad567/gray-logic-miio/internal/audit"
)

// auditChanSize is the buffer size for the async audit channel.
// Entries beyond this are dropped to avoid back-pressure on requests.
const auditChanSize = 256

// auditLog enqueues an audit entry for asynchronous write (best-effort).
func (s *Server) auditLog(action, deviceID string, success bool, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:   action,
		DeviceID: deviceID,
		Source:   audit.SourceAPI,
		Success:  success,
		Details:  details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit channel full, dropping entry",
			"action", action,
			"device_id", deviceID,
		)
	}
}

// startAuditWriter starts the goroutine draining auditCh. stopAuditWriter
// flushes what is queued and waits for it to exit.
func (s *Server) startAuditWriter() {
	if s.audit == nil || s.auditDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.auditCancel = cancel
	s.auditDone = make(chan struct{})
	go func() {
		defer close(s.auditDone)
		s.drainAuditLog(ctx)
	}()
}

func (s *Server) stopAuditWriter() {
	if s.auditDone == nil {
		return
	}
	s.auditCancel()
	<-s.auditDone
	s.auditDone = nil
}

// drainAuditLog writes entries serially until ctx is cancelled, then
// writes whatever is still queued.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAuditEntry(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAuditEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEntry(entry *audit.Entry) {
	if err := s.audit.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit write failed",
			"action", entry.Action,
			"device_id", entry.DeviceID,
			"error", err,
		)
	}
}

// auditQuery is the query string accepted by GET /audit.
type auditQuery struct {
	Action   string `schema:"action"`
	DeviceID string `schema:"device_id"`
	Source   string `schema:"source"`
	Limit    int    `schema:"limit"`
	Offset   int    `schema:"offset"`
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// handleListAudit returns a page of audit entries, newest first. Limit
// defaults to 50 and is capped at 200.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	var q auditQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		writeBadRequest(w, "invalid query: "+err.Error())
		return
	}
	filter := audit.Filter{
		Action:   q.Action,
		DeviceID: q.DeviceID,
		Source:   q.Source,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
