package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditEvent represents an authentication, authorization or commit event.
type AuditEvent struct {
	Timestamp time.Time
	EventType string            // e.g., "TokenVerification", "Authorization", "Commit"
	EntityID  string            // e.g., identity id or tx id
	Result    string            // "success" or "failure"
	Reason    string            // error message or reason code
	Metadata  map[string]string // any extra details
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

// ZapAuditLogger writes audit events as structured log lines.
type ZapAuditLogger struct {
	log *zap.Logger
}

// NewZapAuditLogger returns an AuditLogger on top of log.
func NewZapAuditLogger(log *zap.Logger) AuditLogger {
	return &ZapAuditLogger{log: log.Named("audit")}
}

func (l *ZapAuditLogger) LogEvent(event AuditEvent) {
	fields := []zap.Field{
		zap.Time("eventTime", event.Timestamp),
		zap.String("eventType", event.EventType),
		zap.String("entity", event.EntityID),
		zap.String("result", event.Result),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	if event.Result == "failure" {
		l.log.Warn("audit", fields...)
		return
	}
	l.log.Info("audit", fields...)
}

// MemoryAuditLogger keeps events in memory.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (l *MemoryAuditLogger) LogEvent(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}
