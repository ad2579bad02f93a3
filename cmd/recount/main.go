// recount は products から inventory_stats を作り直す（cron 用）
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/kv"
	"CAMPUS-backend/internal/platform/logging"
)

func main() {
	configPath := flag.String("config", db.DefaultConfigPath(), "config file")
	timeout := flag.Duration("timeout", 2*time.Minute, "")
	flag.Parse()

	cfg, err := db.LoadConfig(*configPath)
	if err != nil {
		logging.LogError("recount", "main", "load config failed", *configPath, err)
		os.Exit(1)
	}
	logging.SetMode(cfg.Mode)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		logging.LogError("recount", "main", "db connect failed", cfg.DB.Host, err)
		os.Exit(1)
	}
	defer conn.Close()

	rdb := kv.NewClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	svc := ledger.NewService(conn, kv.NewCache(rdb, "campus:"), kv.NewLocker(rdb),
		time.Duration(cfg.Redis.StatsTTLSeconds)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	res, err := svc.Recount(ctx)
	if err != nil {
		logging.LogError("recount", "main", "recount failed", nil, err)
		os.Exit(1)
	}
	logging.LogInfo("recount", "main", "done", res)
}
