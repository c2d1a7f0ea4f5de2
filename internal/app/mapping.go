package app

import (
	"time"

	"parkpin/internal/config"
	"parkpin/internal/notify/queue"
	"parkpin/internal/notify/sink"
	"parkpin/internal/observability/pprof"
	"parkpin/internal/storage"
	"parkpin/internal/timer"
	logx "parkpin/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "./data/notifications.json"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Key:      cfg.Storage.Redis.Key,
		},
	}, nil
}

func mapQueueConfig(cfg *config.Config) (queue.Config, error) {
	scan, err := config.ParseDurationOrDefault("queue.scan_interval", cfg.Queue.ScanInterval, 5*time.Second)
	if err != nil {
		return queue.Config{}, err
	}
	keep, err := config.ParseDurationOrDefault("queue.keepalive_interval", cfg.Queue.KeepAliveInterval, 20*time.Second)
	if err != nil {
		return queue.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("queue.retry_backoff", cfg.Queue.RetryBackoff, 30*time.Second)
	if err != nil {
		return queue.Config{}, err
	}
	return queue.Config{
		ScanInterval:      scan,
		KeepAliveInterval: keep,
		RetryMax:          cfg.Queue.RetryMax,
		RetryBackoff:      backoff,
	}, nil
}

func mapTimersConfig(cfg *config.Config) (timer.Config, error) {
	resync, err := config.ParseDurationOrDefault("timers.resync", cfg.Timers.Resync, time.Minute)
	if err != nil {
		return timer.Config{}, err
	}
	reminder := time.Duration(cfg.Timers.DefaultReminderMinutes) * time.Minute
	if cfg.Timers.DefaultReminderMinutes == 0 {
		reminder = 10 * time.Minute
	}
	return timer.Config{
		DefaultReminder: reminder,
		Resync:          resync,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled: cfg.Debug.Pprof.Enabled,
		Addr:    cfg.Debug.Pprof.Addr,
		Token:   cfg.Debug.Pprof.Token,
	}
}

// buildSink assembles the delivery chain: an optional background-capable
// sink (desktop or telegram) rate-limited and backed by the foreground
// callback sink, or the callback sink alone.
func buildSink(cfg config.SinksConfig, cb *sink.Callback, log logx.Logger) (sink.Sink, error) {
	var background sink.Sink

	switch {
	case cfg.Desktop.Enabled:
		background = sink.NewDBus(cfg.Desktop.AppName, log.With(logx.String("comp", "sink.dbus")))
	case cfg.Telegram.Enabled:
		tg, err := sink.NewTelegram(sink.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, log.With(logx.String("comp", "sink.telegram")))
		if err != nil {
			return nil, err
		}
		background = tg
	}

	if background == nil {
		return sink.RateLimited(cb, cfg.RatePerSec), nil
	}
	return sink.RateLimited(sink.Fallback(background, cb), cfg.RatePerSec), nil
}
