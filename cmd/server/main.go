package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aquadepot/ledger-service/internal/config"
	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/logger"
	"github.com/aquadepot/ledger-service/internal/service"
	"github.com/aquadepot/ledger-service/internal/store/filestore"
	"github.com/aquadepot/ledger-service/internal/store/gormstore"
	httptransport "github.com/aquadepot/ledger-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. ledger store
	var st ledger.Store
	switch cfg.Store.Backend {
	case "file":
		fs, err := filestore.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("open file store: %v", err)
		}
		st = fs
		log.Infof("using file store at %s", cfg.Store.Path)

	case "postgres":
		gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}

		kw := &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		}

		gs := gormstore.New(gdb, rdb, kw, log)
		if err := gs.Migrate(); err != nil {
			log.Fatalf("auto-migrate: %v", err)
		}
		st = gs

	default:
		log.Fatalf("unknown store backend %q", cfg.Store.Backend)
	}

	// 4. service & router
	svc := service.NewLedgerService(st, log)
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	// 5. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("ledger-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
