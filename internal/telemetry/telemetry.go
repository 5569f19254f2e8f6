// Package telemetry records refresh outcomes in an append-only analytics
// store. Sink failures are logged and swallowed: telemetry never overrides a
// run's real outcome.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"aircraft_registry/internal/store"
)

// Sink receives refresh outcome events.
type Sink interface {
	RefreshCompleted(ctx context.Context, trigger string, duration time.Duration, stats store.Stats)
	RefreshFailed(ctx context.Context, trigger string, duration time.Duration, errMsg string)
	Flush(ctx context.Context) error
	Close() error
}

// Nop discards all events. Used when no telemetry backend is configured.
type Nop struct{}

func (Nop) RefreshCompleted(context.Context, string, time.Duration, store.Stats) {}
func (Nop) RefreshFailed(context.Context, string, time.Duration, string)         {}
func (Nop) Flush(context.Context) error                                          { return nil }
func (Nop) Close() error                                                         { return nil }

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseSink appends refresh events to a MergeTree table.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *log.Logger
}

// OpenClickHouse opens a connection and ensures the events table exists.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig, logger *log.Logger) (*ClickHouseSink, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	sink := &ClickHouseSink{conn: conn, logger: logger}
	if err := sink.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return sink, nil
}

func (s *ClickHouseSink) createSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS registry_refresh_events (
			timestamp     DateTime64(3) DEFAULT now64(3),
			trigger       LowCardinality(String),
			outcome       LowCardinality(String),
			duration_ms   UInt64,
			manufacturers UInt64,
			models        UInt64,
			engines       UInt64,
			aircraft      UInt64,
			owners        UInt64,
			owner_links   UInt64,
			error         String
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (outcome, timestamp)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

// RefreshCompleted records a successful run with its merge totals.
func (s *ClickHouseSink) RefreshCompleted(ctx context.Context, trigger string, duration time.Duration, stats store.Stats) {
	err := s.conn.Exec(ctx, `
		INSERT INTO registry_refresh_events
			(trigger, outcome, duration_ms, manufacturers, models, engines, aircraft, owners, owner_links, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trigger, "COMPLETED", uint64(duration.Milliseconds()),
		uint64(stats.Manufacturers), uint64(stats.AircraftModels), uint64(stats.Engines),
		uint64(stats.Aircraft), uint64(stats.Owners), uint64(stats.OwnerLinks), "")
	if err != nil {
		s.logger.Printf("[telemetry] record completed refresh: %v", err)
	}
}

// RefreshFailed records a failed run with its error message.
func (s *ClickHouseSink) RefreshFailed(ctx context.Context, trigger string, duration time.Duration, errMsg string) {
	err := s.conn.Exec(ctx, `
		INSERT INTO registry_refresh_events
			(trigger, outcome, duration_ms, manufacturers, models, engines, aircraft, owners, owner_links, error)
		VALUES (?, ?, ?, 0, 0, 0, 0, 0, 0, ?)
	`, trigger, "FAILED", uint64(duration.Milliseconds()), errMsg)
	if err != nil {
		s.logger.Printf("[telemetry] record failed refresh: %v", err)
	}
}

// Flush is a no-op for ClickHouse: inserts are synchronous.
func (s *ClickHouseSink) Flush(context.Context) error { return nil }
