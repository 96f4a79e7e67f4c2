package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"mailwatch/internal/config"
	"mailwatch/internal/decode"
	"mailwatch/internal/engine"
	"mailwatch/internal/keepalive"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/monitor"
	"mailwatch/internal/notify"
	"mailwatch/internal/state"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	dataDir := flag.String("data-dir", "data", "directory for persistent data (processed-message state)")
	once := flag.Bool("once", false, "run a single check and exit")
	testNotification := flag.Bool("test-notification", false, "send the startup notification and exit")
	initOnly := flag.Bool("init", false, "mark all existing unread mail as processed and exit")
	reset := flag.Bool("reset", false, "clear persisted state and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	if *reset {
		for _, acct := range cfg.Accounts {
			path := statePath(*dataDir, acct)
			if err := state.Clear(path); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Println("Reset complete. All messages will be treated as new on next run.")
		return
	}

	notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *testNotification {
		addrs := make([]string, 0, len(cfg.Accounts))
		for _, a := range cfg.Accounts {
			addrs = append(addrs, a.Address)
		}
		banner := notify.Startup(strings.Join(addrs, ", "), cfg.Interval(), cfg.Senders(), cfg.KeepAlive.Enabled)
		if notifier.Deliver(ctx, banner) {
			fmt.Println("Startup notification sent successfully.")
		} else {
			fmt.Fprintln(os.Stderr, "Failed to send startup notification.")
			os.Exit(1)
		}
		return
	}

	logger.Info("mailwatch starting", "accounts", len(cfg.Accounts))

	monitors := make([]*monitor.Monitor, 0, len(cfg.Accounts))
	engines := make([]*engine.Engine, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		mb := mailbox.NewIMAP(
			cfg.IMAP.Host, cfg.IMAP.GetPort(),
			acct.Address, acct.Password,
			cfg.IMAP.GetUseTLS(), cfg.IMAP.GetFolder(),
			logger,
		)

		path := statePath(*dataDir, acct)
		store, err := state.Open(path, cfg.Retention())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		logger.Info("loaded state", "account", acct.Address, "processed_count", store.Len())

		eng := engine.New(mb, decode.New(logger), notifier, store, cfg.Senders(), logger)
		engines = append(engines, eng)
		monitors = append(monitors, monitor.New(monitor.Config{
			Account:   acct.Address,
			Engine:    eng,
			Notifier:  notifier,
			StatePath: path,
			Interval:  cfg.Interval(),
			Senders:   cfg.Senders(),
			KeepAlive: cfg.KeepAlive.Enabled,
			Logger:    logger,
		}))
	}

	if *initOnly {
		for _, eng := range engines {
			if err := eng.Initialize(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Println("Initialization complete. Existing unread mail marked as processed.")
		return
	}

	if *once {
		for _, m := range monitors {
			if err := m.RunOnce(ctx); err != nil {
				logger.Error("single check failed", "error", err)
			}
		}
		return
	}

	var keep *keepalive.Server
	if cfg.KeepAlive.Enabled {
		keep = keepalive.New(cfg.KeepAlive.GetPort(), cfg.KeepAlive.GetExternalURL(), logger)
		if err := keep.Start(); err != nil {
			logger.Error("keep-alive start failed, continuing without it", "error", err)
			keep = nil
		}
	}

	var wg sync.WaitGroup
	for _, m := range monitors {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Run(ctx); err != nil {
				logger.Error("monitor exited", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for monitors to finish...")

	// Force exit on second signal.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	wg.Wait()
	if keep != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		keep.Stop(stopCtx)
		stopCancel()
	}
	logger.Info("mailwatch stopped")
}

func statePath(dataDir string, acct config.Account) string {
	name := acct.Name
	if name == "" {
		name = acct.Address
	}
	return filepath.Join(dataDir, sanitize(name)+".json")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func sanitize(name string) string {
	if name == "" {
		return "default"
	}
	out := make([]byte, 0, len(name))
	for _, b := range []byte(name) {
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-' || b == '_' {
			out = append(out, b)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
