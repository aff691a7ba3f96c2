// Package notify delivers desktop notifications over D-Bus.
// Delivery is best-effort: hosts without a notification daemon run the
// maintenance cycle exactly the same, just silently.
package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDest        = "org.freedesktop.Notifications"
	dbusPath        = "/org/freedesktop/Notifications"
	dbusMethod      = "org.freedesktop.Notifications.Notify"
	dbusDefaultFlag = 0

	appName = "upkeep"
	appIcon = "system-software-update"
)

// Urgency follows the freedesktop.org notification urgency levels
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notifier delivers a user-visible message
type Notifier interface {
	// Notify shows a notification with the given summary, body and urgency
	Notify(ctx context.Context, summary, body string, urgency Urgency) error
}

// DBusNotifier sends notifications to the session notification daemon
type DBusNotifier struct {
	conn *dbus.Conn
}

// NewDBusNotifier connects to the session bus. An error here usually
// means no desktop session is running.
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{conn: conn}, nil
}

// Notify shows a desktop notification via org.freedesktop.Notifications
func (n *DBusNotifier) Notify(ctx context.Context, summary, body string, urgency Urgency) error {
	obj := n.conn.Object(dbusDest, dbusPath)

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgency)),
	}

	var id uint32
	err := obj.CallWithContext(ctx, dbusMethod, dbusDefaultFlag,
		appName,
		uint32(0), // replaces_id: always a new notification
		appIcon,
		summary,
		body,
		[]string{}, // no actions
		hints,
		int32(-1), // expire_timeout: let the server decide
	).Store(&id)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// Close releases the session bus connection
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}

// NoopNotifier discards notifications
type NoopNotifier struct{}

// Notify does nothing
func (NoopNotifier) Notify(ctx context.Context, summary, body string, urgency Urgency) error {
	return nil
}

// New returns a DBusNotifier when a session bus is available, otherwise a
// NoopNotifier. Absence of a notification facility is never an error.
func New() Notifier {
	n, err := NewDBusNotifier()
	if err != nil {
		return NoopNotifier{}
	}
	return n
}

// Ensure both implementations satisfy the Notifier interface
var (
	_ Notifier = (*DBusNotifier)(nil)
	_ Notifier = NoopNotifier{}
)
