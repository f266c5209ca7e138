// Package notify turns committed contract events into notifications for the
// people they concern.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"civicledger/core/events"
)

// NotificationType represents who a notification is for.
type NotificationType string

const (
	NotifyCitizen   NotificationType = "citizen"
	NotifyApprovers NotificationType = "approvers"
)

// Notification holds the data for a notification event
type Notification struct {
	TxID        string
	BlockNumber uint64
	Event       string
	Reason      string
	Attempt     int
	Type        NotificationType
	Recipient   string // citizen id, or the approval type for approvers
}

// Sink delivers notifications (log, email, webhook, ...).
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the logger.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Send(_ context.Context, n Notification) error {
	s.Log.Info("notification",
		zap.String("to", n.Recipient),
		zap.String("type", string(n.Type)),
		zap.String("event", n.Event),
		zap.String("txId", n.TxID),
		zap.Int("attempt", n.Attempt),
		zap.String("reason", n.Reason),
	)
	return nil
}

// Notifier consumes the event hub and dispatches notifications.
type Notifier struct {
	Hub         *events.Hub
	Sink        Sink
	Log         *zap.Logger
	MaxAttempts int
	Buffer      int
}

// Run blocks until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	log := n.Log
	if log == nil {
		log = zap.NewNop()
	}
	buffer := n.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	ch, cancel := n.Hub.Subscribe(buffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			note, ok := FromEvent(ev)
			if !ok {
				continue
			}
			n.deliver(ctx, log, note)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, log *zap.Logger, note Notification) {
	attempts := n.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for note.Attempt = 1; note.Attempt <= attempts; note.Attempt++ {
		err := n.Sink.Send(ctx, note)
		if err == nil {
			return
		}
		log.Warn("notification failed", zap.String("txId", note.TxID), zap.Int("attempt", note.Attempt), zap.Error(err))
		if ctx.Err() != nil {
			return
		}
	}
	log.Error("notification dropped", zap.String("txId", note.TxID), zap.String("event", note.Event))
}

type eventPayload struct {
	DocumentID   string `json:"documentId"`
	CitizenID    string `json:"citizenId"`
	State        string `json:"state"`
	RequestID    string `json:"requestId"`
	ApprovalType string `json:"approvalType"`
}

// FromEvent maps an event to a notification. Events nobody needs to hear
// about report false.
func FromEvent(ev events.Event) (Notification, bool) {
	var p eventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return Notification{}, false
	}
	n := Notification{TxID: ev.TxID, BlockNumber: ev.BlockNum, Event: ev.Name}
	switch ev.Name {
	case "DocumentApproved", "DocumentRejected", "DocumentRevoked":
		if p.CitizenID == "" {
			return Notification{}, false
		}
		n.Type = NotifyCitizen
		n.Recipient = p.CitizenID
		n.Reason = fmt.Sprintf("document %s is now %s", p.DocumentID, p.State)
	case "ApprovalRequestCreated":
		n.Type = NotifyApprovers
		n.Recipient = p.ApprovalType
		n.Reason = fmt.Sprintf("approval request %s for document %s awaits a decision", p.RequestID, p.DocumentID)
	default:
		return Notification{}, false
	}
	return n, true
}
