// Package telegram provides a client for sending level reports and injection
// reminders via the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/doseoracle/internal/logger"
	"github.com/rewired-gh/doseoracle/internal/models"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Handler supplies the data bot commands answer with.
type Handler interface {
	Reports() ([]*models.LevelReport, error)
	RenderChart(report *models.LevelReport) ([]byte, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[tgbotapi.Message]
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	// Telegram allows roughly one message per second to a single chat.
	limiter := rate.NewLimiter(rate.Every(time.Second), 3)

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		limiter:        limiter,
		breaker:        newBreaker(),
	}, nil
}

// newBreaker stops sending for a while after three sends in a row have
// exhausted their retries.
func newBreaker() *gobreaker.CircuitBreaker[tgbotapi.Message] {
	return gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:    "telegram",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Shutdown is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, h Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, h)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, h Handler) {
	// Only answer the configured chat.
	if msg.Chat.ID != c.chatID {
		logger.Warn("Ignoring /%s from unknown chat %d", msg.Command(), msg.Chat.ID)
		return
	}

	cmd, args := msg.Command(), strings.TrimSpace(msg.CommandArguments())
	if cmd == "chart" {
		if err := c.sendCharts(ctx, args, h); err != nil {
			logger.Error("Failed to send chart: %v", err)
			c.reply(ctx, msg.Chat.ID, "⚠️ "+escapeMarkdownV2(err.Error()))
		}
		return
	}

	text, ok := commandReply(cmd, args, h)
	if !ok {
		return
	}
	c.reply(ctx, msg.Chat.ID, text)
}

// reply answers a command. Failures are logged, not returned.
func (c *Client) reply(ctx context.Context, chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdownV2
	if err := c.send(ctx, m); err != nil {
		logger.Warn("Failed to reply to command: %v", err)
	}
}

// commandReply builds the MarkdownV2 answer for a text command.
func commandReply(cmd, args string, h Handler) (string, bool) {
	switch cmd {
	case "ping":
		return "Pong", true
	case "start", "help":
		return helpText, true
	case "level", "trough":
		reports, err := h.Reports()
		if err != nil {
			return "⚠️ " + escapeMarkdownV2(err.Error()), true
		}
		reports = filterReports(reports, args)
		if len(reports) == 0 {
			return escapeMarkdownV2("No injections logged yet."), true
		}
		if cmd == "trough" {
			return formatTroughs(reports), true
		}
		return formatReports(reports), true
	case "calc":
		return calcReply(args), true
	case "presets":
		return formatPresets(), true
	default:
		return "", false
	}
}

func (c *Client) sendCharts(ctx context.Context, args string, h Handler) error {
	reports, err := h.Reports()
	if err != nil {
		return err
	}
	reports = filterReports(reports, args)
	if len(reports) == 0 {
		return fmt.Errorf("no medication matches %q", args)
	}
	for _, r := range reports {
		png, err := h.RenderChart(r)
		if err != nil {
			return fmt.Errorf("failed to render chart for %s: %w", r.Medication.Name, err)
		}
		if err := c.SendChart(ctx, r, png); err != nil {
			return err
		}
	}
	return nil
}

// filterReports keeps reports whose medication name contains query.
func filterReports(reports []*models.LevelReport, query string) []*models.LevelReport {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return reports
	}
	var out []*models.LevelReport
	for _, r := range reports {
		if strings.Contains(strings.ToLower(r.Medication.Name), query) ||
			strings.Contains(strings.ToLower(r.Medication.BrandName), query) {
			out = append(out, r)
		}
	}
	return out
}

// send delivers a message through the circuit breaker.
func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	_, err := c.breaker.Execute(func() (tgbotapi.Message, error) {
		return c.sendWithRetry(ctx, msg)
	})
	return err
}

// sendWithRetry sends with linear-backoff retry under the rate limit. It gives
// up as soon as ctx is done.
func (c *Client) sendWithRetry(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return tgbotapi.Message{}, err
		}
		sent, err := c.bot.Send(msg)
		if err == nil {
			return sent, nil
		}
		lastErr = err

		backoff := time.NewTimer(c.retryDelayBase * time.Duration(i+1))
		select {
		case <-ctx.Done():
			backoff.Stop()
			return tgbotapi.Message{}, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-backoff.C:
		}
	}
	return tgbotapi.Message{}, fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return c.send(ctx, msg)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// SendReports sends the level summary for each report.
func (c *Client) SendReports(ctx context.Context, reports []*models.LevelReport) error {
	return c.sendMarkdownV2(ctx, formatReports(reports))
}

// SendReminder sends one injection reminder.
func (c *Client) SendReminder(ctx context.Context, r models.Reminder) error {
	return c.sendMarkdownV2(ctx, formatReminder(r))
}

// SendChart uploads a rendered level chart with a short caption.
func (c *Client) SendChart(ctx context.Context, report *models.LevelReport, png []byte) error {
	photo := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileBytes{
		Name:  chartFileName(report),
		Bytes: png,
	})
	photo.Caption = formatChartCaption(report)
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	return c.send(ctx, photo)
}

func chartFileName(report *models.LevelReport) string {
	name := strings.ToLower(strings.ReplaceAll(report.Medication.Name, " ", "-"))
	if name == "" {
		name = "level"
	}
	return fmt.Sprintf("%s-%s.png", name, report.GeneratedAt.Format("20060102"))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
