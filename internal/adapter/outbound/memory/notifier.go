package memory

import (
	"context"
	"sync"
)

// Notification is one recorded fan-out delivery.
type Notification struct {
	OrganizationID string
	UserIDs        []string
	Message        string
}

// Notifier implements access.Notifier by recording notifications.
// Real delivery (email, chat) is an external collaborator.
type Notifier struct {
	sent []Notification
	mu   sync.Mutex
}

// NewNotifier creates a new recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Notify records the fan-out.
func (n *Notifier) Notify(ctx context.Context, orgID string, userIDs []string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{
		OrganizationID: orgID,
		UserIDs:        append([]string(nil), userIDs...),
		Message:        message,
	})
	return nil
}

// Sent returns a copy of recorded notifications.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
