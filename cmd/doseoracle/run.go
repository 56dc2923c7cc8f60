package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/doseoracle/internal/chart"
	"github.com/rewired-gh/doseoracle/internal/config"
	"github.com/rewired-gh/doseoracle/internal/desktop"
	"github.com/rewired-gh/doseoracle/internal/logger"
	"github.com/rewired-gh/doseoracle/internal/models"
	"github.com/rewired-gh/doseoracle/internal/monitor"
	"github.com/rewired-gh/doseoracle/internal/telegram"
)

// reminderSender delivers one reminder over some channel.
type reminderSender interface {
	SendReminder(ctx context.Context, r models.Reminder) error
}

// service wires the monitor to its notification channels. It also answers
// Telegram bot commands.
type service struct {
	mu       sync.RWMutex
	cfg      *config.Config
	mon      *monitor.Monitor
	telegram *telegram.Client
	senders  map[string]reminderSender
}

func (s *service) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// applyConfig installs a reloaded configuration. Logging level, monitor,
// reminder and chart settings take effect immediately; storage, Telegram,
// desktop, the poll interval and the report schedule keep their startup values.
func (s *service) applyConfig(c *config.Config) {
	s.mu.Lock()
	s.cfg = c
	s.mu.Unlock()
	logger.SetLevel(c.Logging.Level)
	s.mon.UpdateConfig(monitorConfig(c))
}

func (s *service) Reports() ([]*models.LevelReport, error) {
	return s.mon.BuildReports()
}

func (s *service) RenderChart(report *models.LevelReport) ([]byte, error) {
	cfg := s.currentConfig()
	return chart.Render(report, cfg.Chart.Width, cfg.Chart.Height)
}

func runService(cfg *config.Config) {
	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if n, err := store.CountReminders(); err == nil {
		logger.Debug("Reminder log holds %d entries", n)
	} else {
		logger.Warn("Failed to count reminders: %v", err)
	}

	mon := monitor.New(store, monitorConfig(cfg), time.Now)
	svc := &service{cfg: cfg, mon: mon, senders: map[string]reminderSender{}}

	if cfg.Telegram.Enabled {
		svc.telegram, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		svc.senders["telegram"] = svc.telegram
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Desktop.Enabled {
		svc.senders["desktop"] = desktop.NewNotifier(cfg.Desktop.AppName)
		logger.Info("Desktop notifications enabled")
	}

	if err := config.Watch(*configPath, func(c *config.Config) {
		svc.applyConfig(c)
		logger.Info("Configuration reloaded from %s", *configPath)
	}, func(err error) {
		logger.Warn("Ignoring configuration change: %v", err)
	}); err != nil {
		logger.Warn("Configuration hot reload disabled: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if svc.telegram != nil {
		svc.telegram.ListenForCommands(ctx, svc)
	}

	if cfg.Report.Enabled && svc.telegram != nil {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Report.Schedule, func() { svc.sendScheduledReport(ctx) }); err != nil {
			logger.Fatal("Failed to schedule level report: %v", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		logger.Info("Level report scheduled (%s)", cfg.Report.Schedule)
	}

	logger.Info("Starting monitoring service (interval: %v, lookback: %dd, projection: %dd)",
		cfg.Monitor.PollInterval,
		cfg.Monitor.LookbackDays,
		cfg.Monitor.ProjectionDays,
	)

	ticker := time.NewTicker(cfg.Monitor.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && svc.telegram != nil {
				if sendErr := svc.telegram.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && svc.telegram != nil {
				if sendErr := svc.telegram.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(svc.runMonitoringCycle(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(svc.runMonitoringCycle(ctx))
		}
	}
}

// runMonitoringCycle builds level reports and delivers any due reminders.
func (s *service) runMonitoringCycle(ctx context.Context) error {
	startTime := time.Now()

	reports, err := s.mon.BuildReports()
	if err != nil {
		return fmt.Errorf("failed to build level reports: %w", err)
	}
	for _, r := range reports {
		logger.Info("%s: %.3f mg now, %.0f%% of steady state, next dose %s",
			r.Medication.Name, r.CurrentLevelMg, r.PercentOfSteadyState(), formatWhen(r.NextDueAt))
	}

	due, err := s.mon.DueReminders(reports)
	if err != nil {
		return fmt.Errorf("failed to evaluate reminders: %w", err)
	}

	sent := s.deliver(ctx, due)
	if err := s.mon.RecordNotified(sent); err != nil {
		return err
	}

	logger.Info("Monitoring cycle completed in %v (%d reports, %d/%d reminders sent)",
		time.Since(startTime), len(reports), len(sent), len(due))
	return nil
}

// deliver sends each reminder on every channel. A reminder counts as sent
// when at least one channel accepted it; with no channels it is only logged.
func (s *service) deliver(ctx context.Context, reminders []models.Reminder) []models.Reminder {
	var sent []models.Reminder
	for _, r := range reminders {
		if len(s.senders) == 0 {
			logger.Info("Reminder (%s) for %s due %s", r.Kind, r.MedicationName, formatWhen(r.DueAt))
			sent = append(sent, r)
			continue
		}
		delivered := false
		for name, sender := range s.senders {
			if err := sender.SendReminder(ctx, r); err != nil {
				logger.Error("Failed to send %s reminder via %s: %v", r.Kind, name, err)
				continue
			}
			delivered = true
		}
		if delivered {
			logger.Info("Sent %s reminder for %s", r.Kind, r.MedicationName)
			sent = append(sent, r)
		}
	}
	return sent
}

// sendScheduledReport runs from the cron scheduler.
func (s *service) sendScheduledReport(ctx context.Context) {
	reports, err := s.mon.BuildReports()
	if err != nil {
		logger.Error("Scheduled report failed: %v", err)
		return
	}
	if len(reports) == 0 {
		logger.Debug("Scheduled report skipped: no injections logged")
		return
	}
	if err := s.telegram.SendReports(ctx, reports); err != nil {
		logger.Error("Failed to send scheduled report: %v", err)
		return
	}
	if !s.currentConfig().Report.AttachChart {
		return
	}
	for _, r := range reports {
		png, err := s.RenderChart(r)
		if err != nil {
			logger.Error("Failed to render chart for %s: %v", r.Medication.Name, err)
			continue
		}
		if err := s.telegram.SendChart(ctx, r, png); err != nil {
			logger.Error("Failed to send chart for %s: %v", r.Medication.Name, err)
		}
	}
	logger.Info("Sent scheduled level report for %d medications", len(reports))
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format("2006-01-02 15:04")
}
