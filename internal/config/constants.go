package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Redis health probe timeout used when selecting the session backend
const RedisHealthTimeout = 500 * time.Millisecond

// Background job intervals
const SessionSweepInterval = 5 * time.Minute

// Websocket connection settings
const (
	WSWriteWait      = 10 * time.Second
	WSPingPeriod     = 30 * time.Second
	WSReadLimit      = 64 * 1024
	WSSendBufferSize = 128
)

// Default rate limiting
const DefaultRateLimitPerMin = 120
