package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sonic7adarsh/bharatapp/pkg/logger"
)

// maxNotices bounds the notices kept per session.
const maxNotices = 5

// LogAnnouncer records announcements in the structured log and keeps the
// most recent ones per session so the API can hand them to the client.
type LogAnnouncer struct {
	logger *slog.Logger

	mu      sync.Mutex
	notices map[string][]string
}

// NewLogAnnouncer creates an announcer writing to logger.
func NewLogAnnouncer(logger *slog.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: logger, notices: make(map[string][]string)}
}

// Announce logs message and queues it for the caller's session.
func (a *LogAnnouncer) Announce(ctx context.Context, message string) {
	sessionID := logger.SessionIDFromContext(ctx)
	a.logger.InfoContext(ctx, "announcement", slog.String("message", message))
	if sessionID == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	q := append(a.notices[sessionID], message)
	if len(q) > maxNotices {
		q = q[len(q)-maxNotices:]
	}
	a.notices[sessionID] = q
}

// Drain returns and clears the queued notices for sessionID.
func (a *LogAnnouncer) Drain(sessionID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := a.notices[sessionID]
	delete(a.notices, sessionID)
	return q
}

// Forget drops a session's queued notices.
func (a *LogAnnouncer) Forget(sessionID string) {
	a.mu.Lock()
	delete(a.notices, sessionID)
	a.mu.Unlock()
}
