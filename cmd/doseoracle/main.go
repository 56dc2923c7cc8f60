package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rewired-gh/doseoracle/internal/config"
	"github.com/rewired-gh/doseoracle/internal/desktop"
	"github.com/rewired-gh/doseoracle/internal/logger"
	"github.com/rewired-gh/doseoracle/internal/monitor"
	"github.com/rewired-gh/doseoracle/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const usageText = `Usage: doseoracle [-config path] <command> [flags]

Commands:
  run          run the monitoring service (default)
  log          log an injection
  injections   list or delete logged injections
  level        show current levels and projected troughs
  medications  list, add, update or delete medications
  calc         reconstitution calculator
  presets      list peptide presets
  notify-test  show a test desktop notification
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd, args := "run", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	// The calculator needs neither configuration nor storage.
	switch cmd {
	case "calc":
		exitOnError(cmd, runCalc(args, os.Stdout))
		return
	case "presets":
		exitOnError(cmd, runPresets(os.Stdout))
		return
	case "run", "log", "injections", "level", "medications", "notify-test":
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Debug("Configuration loaded from %s", *configPath)

	switch cmd {
	case "run":
		runService(cfg)
		return
	case "notify-test":
		exitOnError(cmd, runNotifyTest(desktop.NewNotifier(cfg.Desktop.AppName), os.Stdout))
		return
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	switch cmd {
	case "log":
		err = runLog(store, args, os.Stdout)
	case "injections":
		err = runInjections(store, args, os.Stdout)
	case "level":
		err = runLevel(store, cfg, args, os.Stdout)
	case "medications":
		err = runMedications(store, args, os.Stdout)
	}
	if err != nil {
		_ = store.Close()
		exitOnError(cmd, err)
	}
}

func exitOnError(cmd string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "doseoracle %s: %v\n", cmd, err)
	os.Exit(1)
}

// openStore opens the database and seeds the default medications when enabled.
func openStore(cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.New(cfg.Storage.MaxReminders, cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.SeedDefaults {
		n, err := store.SeedDefaultMedications()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("Seeded %d default medications", n)
		}
	}
	return store, nil
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		LookbackDays:     cfg.Monitor.LookbackDays,
		ProjectionDays:   cfg.Monitor.ProjectionDays,
		HistoryDays:      cfg.Chart.HistoryDays,
		Medications:      cfg.Monitor.Medications,
		RemindersEnabled: cfg.Reminders.Enabled,
		DayBefore:        cfg.Reminders.DayBefore,
		LeadTime:         cfg.Reminders.LeadTime,
		Due:              cfg.Reminders.Due,
		Missed:           cfg.Reminders.Missed,
		MissedGrace:      cfg.Reminders.MissedGrace,
	}
}
