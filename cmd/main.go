package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"pharmago/internal/audit"
	"pharmago/internal/cache"
	"pharmago/internal/config"
	"pharmago/internal/db"
	"pharmago/internal/idempotency"
	"pharmago/internal/kafka"
	taskprocessor "pharmago/internal/processor"
	"pharmago/internal/repository"
	"pharmago/internal/server"
	"pharmago/internal/service"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		orders         repository.Orders
		establishments repository.Establishments
		carts          repository.Carts
		catalog        repository.Catalog
		tasks          repository.Tasks
	)

	if cfg.DSN != "" {
		database, err := db.Connect(cfg)
		if err != nil {
			log.Fatalf("error in connection to db: %v", err)
		}
		defer database.Close()

		orders = repository.NewOrderRepository(database)
		establishments = repository.NewEstablishmentRepository(database)
		carts = repository.NewCartRepository(database)
		catalog = repository.NewCatalogRepository(database)
		tasks = repository.NewTaskRepository(database)
	} else {
		// Dev mode: file-backed store, no Postgres required.
		store, err := repository.NewMemoryStore("pharmago_dev.json")
		if err != nil {
			log.Fatalf("error opening dev store: %v", err)
		}
		orders = store
		establishments = store.AsEstablishments()
		carts = store.AsCarts()
		catalog = store
	}

	auditProcessors := []audit.Processor{&audit.StdoutProcessor{Filter: cfg.FilterWord}}
	if tasks != nil {
		auditProcessors = append(auditProcessors, &audit.OutboxProcessor{Tasks: tasks})
	}
	auditPool := audit.NewWorkerPool(audit.PoolConfig{
		BatchSize:   10,
		Timeout:     2 * time.Second,
		ChannelSize: 256,
	}, auditProcessors...)
	auditPool.Start(ctx, 2)

	if tasks != nil {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Printf("kafka producer unavailable, outbox paused: %v", err)
		} else {
			defer producer.Close()
			proc := taskprocessor.NewTaskProcessor(tasks, producer, 5*time.Second, 50)
			go proc.Start(ctx)
			go kafka.StartConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic})
		}
	}

	live := cache.NewLiveOrdersCache()
	delivered := cache.NewDeliveredCache()
	go delivered.StartAutoRefresh(ctx, orders, cfg.CacheRefresh)

	svc := service.NewOrderService(orders, establishments, carts, catalog, live, delivered, auditPool)
	idem := idempotency.NewStore(cfg.RedisAddr)

	srv := server.NewServer(svc, idem, auditPool, cfg)
	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
	}).Handler(srv.Handler())

	if err := srv.Run(handler); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
