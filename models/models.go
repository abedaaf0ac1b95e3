package models

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabase opens the Postgres mirror through a pgx pool and wraps it in
// gorm. The returned func closes the pool.
func ConnectDatabase(ctx context.Context, dsnURL, env string, maxConns int32) (*gorm.DB, func(), error) {

	// Configure logger
	var logLevel logger.LogLevel
	if env == "prod" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logLevel,
			Colorful:      true,
		},
	)

	cfg, err := pgxpool.ParseConfig(dsnURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse mirror dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mirror: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping mirror: %w", err)
	}

	database, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("open gorm: %w", err)
	}
	return database, pool.Close, nil
}

func ConnectRedis(ctx context.Context, host, port, user, password, db, env string) (*redis.Client, error) {
	dbInt, _ := strconv.Atoi(db)
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       dbInt,
		Username: user,
	}

	if env == "prod" {
		options.TLSConfig = &tls.Config{
			ServerName: host,
		}
	}

	rdb := redis.NewClient(options)

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return rdb, nil
}
