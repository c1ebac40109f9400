package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"govportal/internal/app"
	"govportal/internal/cache"
	"govportal/internal/db"
	"govportal/internal/questionnaire"
	"govportal/internal/versions"
)

func main() {
	cfg := app.LoadConfig()
	ctx := context.Background()

	dialect, err := db.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}
	dbConn, err := db.Open(ctx, dialect, cfg.DBDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	versionSvc, err := versions.NewService(ctx, dbConn, dialect)
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}

	var store cache.Store = cache.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client, err := cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("redis error: %v", err)
			os.Exit(1)
		}
		defer client.Close()
		store = cache.NewRedisStore(client, "govportal:")
	} else {
		log.Printf("REDIS_ADDR not set, projections are kept in process memory")
	}

	ttl := time.Duration(cfg.ProjectionTTLMinutes) * time.Minute
	r := app.NewRouter(cfg, dbConn, app.Services{
		Versions:      versionSvc,
		Questionnaire: questionnaire.NewService(versionSvc, store, ttl),
	})

	log.Printf("govportal web listening on %s (db=%s)", cfg.HTTPAddr, dialect)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
