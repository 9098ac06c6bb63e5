package main

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"Storefront/internal/cart"
	"Storefront/internal/events"
	"Storefront/internal/recent"
	"Storefront/internal/visitor"
	"Storefront/internal/widget"
	"Storefront/pkg/kit"
)

func main() {
	_ = godotenv.Load()

	service := "widgets"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8080")
	cartURL := getenv("CART_URL", "http://localhost:9292")

	secret := os.Getenv("VISITOR_SECRET")
	if len(secret) < 32 {
		log.Fatal("VISITOR_SECRET is required and must be at least 32 chars")
	}

	kv := newKV(log)
	reg := prometheus.NewRegistry()

	presenter := cart.NewPresenter(os.Getenv("COUNT_EXCLUDED_TITLE"))
	presenter.Register("metrics", widget.NewGaugeDisplay(reg))
	presenter.Register("log", &widget.LogDisplay{Log: log})

	s := &widget.Server{
		KV:        kv,
		Cart:      cart.NewClient(cartURL, presenter, log),
		Presenter: presenter,
		Toasts:    cart.NewToaster(),
		Log:       log,
	}

	h := widget.NewHandler(s, widget.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		Tokens:         visitor.NewTokenMaker(secret),
		MetricsEnabled: true,
		MetricsToken:   os.Getenv("METRICS_TOKEN"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startConsumer(ctx, kv, log)

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func newKV(log *zap.Logger) recent.KV {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		log.Info("PG_DSN not set, using in-memory storage")
		return recent.NewMemKV()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("open postgres failed", zap.Error(err))
	}
	return recent.NewPostgresKV(db)
}

func startConsumer(ctx context.Context, kv recent.KV, log *zap.Logger) {
	broker := os.Getenv("KAFKA_BROKER")
	if broker == "" {
		return
	}

	cons := events.NewConsumer(events.Config{
		Brokers:  strings.Split(broker, ","),
		Topic:    getenv("KAFKA_TOPIC", "product_views"),
		GroupID:  getenv("KAFKA_GROUP", "widgets-consumer"),
		DLQTopic: os.Getenv("KAFKA_DLQ_TOPIC"),
	}, kv, log)

	go func() {
		defer func() { _ = cons.Close() }()
		if err := cons.Run(ctx); err != nil {
			log.Warn("view event consumer stopped", zap.Error(err))
		}
	}()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
