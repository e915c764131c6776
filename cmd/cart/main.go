package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"MiniCart/internal/auth"
	"MiniCart/internal/cart"
	"MiniCart/pkg/kit"
)

func main() {
	service := "cart"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8084")
	catalogURL := getenv("CATALOG_URL", "http://catalog:8082")

	jwtSecret := os.Getenv("JWT_SECRET")
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET is required and must be at least 32 chars")
	}

	store := buildStore(log)

	s := cart.NewService(store, cart.NewCatalogClient(catalogURL, 3*time.Second), log)
	if n := getenvInt("PAGE_SIZE", cart.DefaultPageSize); n > 0 {
		s.PageSize = n
	}

	reg := prometheus.NewRegistry()
	h := cart.NewHandler(s, cart.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   os.Getenv("METRICS_TOKEN"),
		JWT:            auth.NewTokenMaker(jwtSecret),
		MutationLimit:  int64(getenvInt("MUTATION_CONCURRENCY", 5)),
	})

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func buildStore(log *zap.Logger) cart.Store {
	switch backend := getenv("CART_STORE", "memory"); backend {
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("DATABASE_URL is required for the postgres store")
		}

		runMigrations(log, dsn)

		db, err := sql.Open("pgx", dsn)
		if err != nil {
			log.Fatal("open postgres failed", zap.Error(err))
		}
		return cart.NewPostgresStore(db)

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: getenv("REDIS_ADDR", "localhost:6379"),
		})
		return cart.NewRedisStore(client)

	case "memory":
		return cart.NewMemStore()

	default:
		log.Fatal("unknown CART_STORE", zap.String("value", backend))
		return nil
	}
}

func runMigrations(log *zap.Logger, dsn string) {
	path := getenv("MIGRATIONS_PATH", "./migrations")

	m, err := migrate.New("file://"+path, dsn)
	if err != nil {
		log.Fatal("init migrations failed", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("run migrations failed", zap.Error(err))
	}
	log.Info("migrations up to date")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
