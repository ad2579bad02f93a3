// notifier は通知キューを読み、LINE の push API に送る
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/logging"
	"CAMPUS-backend/internal/platform/notify"
)

func main() {
	configPath := flag.String("config", db.DefaultConfigPath(), "config file")
	flag.Parse()

	cfg, err := db.LoadConfig(*configPath)
	if err != nil {
		logging.LogError("notifier", "main", "load config failed", *configPath, err)
		os.Exit(1)
	}
	logging.SetMode(cfg.Mode)

	if cfg.RabbitMQ.URL == "" || cfg.Notify.ChannelToken == "" {
		logging.LogError("notifier", "main", "rabbitmq url and channel token are required", nil, nil)
		os.Exit(1)
	}

	pusher := notify.NewLinePusher(cfg.Notify.Endpoint, cfg.Notify.ChannelToken, cfg.Notify.RatePerSecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.LogInfo("notifier", "main", "consuming", cfg.RabbitMQ.Queue)
	err = notify.Consume(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, func(ctx context.Context, msg notify.Message) error {
		if err := pusher.Push(ctx, msg); err != nil {
			return err
		}
		logging.LogInfo("notifier", "push", "sent", map[string]any{"template": msg.Template, "to": len(msg.To)})
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.LogError("notifier", "main", "consumer stopped", nil, err)
		os.Exit(1)
	}
	logging.LogInfo("notifier", "main", "stopped", nil)
}
