package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackonomics/internal/api"
	"hackonomics/internal/config"
	"hackonomics/internal/ics"
	appLog "hackonomics/internal/log"
	"hackonomics/internal/scheduler"
	"hackonomics/internal/web"
)

const version = "0.1.0-dev"

type flagConfig struct {
	configPath string
	listen     string
	apiBaseURL string
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("failed to apply environment overrides", err)
		os.Exit(1)
	}

	// CLI flags override file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.apiBaseURL != "" {
		conf.APIBaseURL = flags.apiBaseURL
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	conf.Normalize()

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("hackonomics starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_base_url", conf.APIBaseURL,
		"request_timeout", conf.RequestTimeout().String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"basic_auth", conf.BasicAuth != nil,
	)

	client, err := api.New(conf.APIBaseURL,
		api.WithTimeout(conf.RequestTimeout()),
		api.WithDeviceID(conf.DeviceID),
	)
	if err != nil {
		appLog.Error("failed to create API client", err)
		os.Exit(1)
	}

	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: c.ID, Name: c.Name, URL: c.URL, Color: c.Color})
	}
	overlay := ics.NewOverlay(ics.NewFetcher(conf.ResolveCacheDir(flags.configPath), nil), sources)

	server := web.NewServer(conf, client, overlay)

	sched, err := scheduler.New(conf.RefreshCron, 2*time.Minute,
		scheduler.Job{Name: "ics-overlay", Run: overlay.Refresh},
		scheduler.Job{Name: "backend-events", Run: func(ctx context.Context) error {
			_, err := server.RefreshEvents(ctx)
			return err
		}},
	)
	if err != nil {
		appLog.Error("failed to create scheduler", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the log level is applied live; other edits need a restart.
	go func() {
		err := config.Watch(ctx, flags.configPath, func(next *config.Config) {
			if err := next.ApplyEnv(); err != nil {
				appLog.Warn("ignoring reloaded config", "err", err.Error())
				return
			}
			if flags.logLevel != "" {
				return
			}
			appLog.SetLevel(appLog.ParseLevel(next.LogLevel))
			appLog.Info("log level updated", "log_level", next.LogLevel)
		})
		if err != nil {
			appLog.Warn("config watcher unavailable", "err", err.Error())
		}
	}()

	// Best effort; failure leaves the session logged out.
	client.Session().Bootstrap(ctx)

	sched.RunNow(ctx)
	sched.Start()

	if err := server.Run(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop(stopCtx)

	appLog.Info("hackonomics exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/hackonomics/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.apiBaseURL, "api", "", "Backend API base URL (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")

	flag.Parse()

	return cfg
}
