package desktop

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/doseoracle/internal/models"
)

type captured struct {
	title, message string
}

func newCapturingNotifier(appName string, err error) (*Notifier, *[]captured) {
	var sent []captured
	n := NewNotifier(appName)
	n.notify = func(title, message string) error {
		sent = append(sent, captured{title, message})
		return err
	}
	return n, &sent
}

func TestSendReminder(t *testing.T) {
	due := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		kind      models.ReminderKind
		wantTitle string
		wantText  string
	}{
		{models.ReminderDayBefore, "doseoracle: ⏰ Injection tomorrow", "Semaglutide is due Thu Mar 12 09:00."},
		{models.ReminderDue, "doseoracle: 💉 Injection due", "Semaglutide was due Thu Mar 12 09:00."},
		{models.ReminderMissed, "doseoracle: ❗ Injection missed", "No Semaglutide injection logged"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n, sent := newCapturingNotifier("doseoracle", nil)
			r := models.Reminder{Kind: tt.kind, MedicationName: "Semaglutide", DueAt: due, TroughLevelMg: 0.5}
			if err := n.SendReminder(context.Background(), r); err != nil {
				t.Fatalf("SendReminder: %v", err)
			}
			if len(*sent) != 1 {
				t.Fatalf("sent %d notifications, want 1", len(*sent))
			}
			got := (*sent)[0]
			if got.title != tt.wantTitle {
				t.Errorf("title = %q, want %q", got.title, tt.wantTitle)
			}
			if !strings.Contains(got.message, tt.wantText) || !strings.Contains(got.message, "0.500 mg") {
				t.Errorf("message = %q", got.message)
			}
		})
	}
}

func TestSendReminder_Error(t *testing.T) {
	n, _ := newCapturingNotifier("", errors.New("no notification daemon"))
	err := n.SendReminder(context.Background(), models.Reminder{Kind: models.ReminderDue})
	if err == nil || !strings.Contains(err.Error(), "no notification daemon") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestSendTestNotification(t *testing.T) {
	n, sent := newCapturingNotifier("", nil)
	if err := n.SendTestNotification(); err != nil {
		t.Fatal(err)
	}
	if (*sent)[0].title != "Test" {
		t.Errorf("title = %q", (*sent)[0].title)
	}
}

func TestSendReminder_CancelledContext(t *testing.T) {
	n, sent := newCapturingNotifier("", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.SendReminder(ctx, models.Reminder{Kind: models.ReminderDue}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(*sent) != 0 {
		t.Errorf("sent %d notifications after cancellation", len(*sent))
	}
}
