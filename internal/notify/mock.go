package notify

import "context"

// MockNotifier implements Notifier for testing.
// Notifications are recorded in Sent; NotifyFunc overrides the behavior
// when set.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, summary, body string, urgency Urgency) error
	Sent       []SentNotification
}

// SentNotification is one recorded Notify call
type SentNotification struct {
	Summary string
	Body    string
	Urgency Urgency
}

// Notify records the notification and delegates to NotifyFunc when set
func (m *MockNotifier) Notify(ctx context.Context, summary, body string, urgency Urgency) error {
	m.Sent = append(m.Sent, SentNotification{Summary: summary, Body: body, Urgency: urgency})
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, summary, body, urgency)
	}
	return nil
}

// Ensure MockNotifier implements Notifier interface
var _ Notifier = (*MockNotifier)(nil)
