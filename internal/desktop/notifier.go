// Package desktop sends injection reminders as local system notifications.
package desktop

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/rewired-gh/doseoracle/internal/models"
)

// Notifier shows reminders through the OS notification center.
type Notifier struct {
	appName string
	notify  func(title, message string) error
	mu      sync.Mutex
}

// NewNotifier creates a notifier that prefixes titles with appName.
func NewNotifier(appName string) *Notifier {
	return &Notifier{
		appName: appName,
		notify: func(title, message string) error {
			// Use beeep for cross-platform notifications
			return beeep.Notify(title, message, "")
		},
	}
}

// SendReminder shows one injection reminder unless ctx is already done.
func (n *Notifier) SendReminder(ctx context.Context, r models.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	title, message := n.formatReminder(r)
	if err := n.notify(title, message); err != nil {
		return fmt.Errorf("failed to show desktop notification: %w", err)
	}
	return nil
}

// SendTestNotification checks that notifications reach the desktop.
func (n *Notifier) SendTestNotification() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.notify(n.title("Test"), "Notifications are working."); err != nil {
		return fmt.Errorf("failed to show desktop notification: %w", err)
	}
	return nil
}

func (n *Notifier) formatReminder(r models.Reminder) (string, string) {
	due := r.DueAt.Format("Mon Jan 2 15:04")
	var title, message string
	switch r.Kind {
	case models.ReminderDayBefore:
		title = "⏰ Injection tomorrow"
		message = fmt.Sprintf("%s is due %s.", r.MedicationName, due)
	case models.ReminderDue:
		title = "💉 Injection due"
		message = fmt.Sprintf("%s was due %s.", r.MedicationName, due)
	case models.ReminderMissed:
		title = "❗ Injection missed"
		message = fmt.Sprintf("No %s injection logged since %s.", r.MedicationName, due)
	default:
		title = "Reminder"
		message = r.MedicationName
	}
	message += fmt.Sprintf(" Level at due time: %.3f mg.", r.TroughLevelMg)
	return n.title(title), message
}

func (n *Notifier) title(s string) string {
	if n.appName == "" {
		return s
	}
	return n.appName + ": " + s
}
