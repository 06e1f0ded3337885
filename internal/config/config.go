// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EventSourceKafka  = "kafka"
	EventSourceMemory = "memory"
)

type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	MySQLDSN          string
	RedisAddr         string
	RedisPoolSize     int
	KafkaBrokers      []string
	KafkaTopic        string
	EventSource       string // kafka|memory
	WSSendBuffer      int
	WSAllowedOrigins  []string // empty allows any origin
	WSWriteTimeout    time.Duration
	WatcherBackoff    time.Duration
	WatcherMaxWait    time.Duration
	InvalidateOnWrite bool
	LogLevel          string
	ShutdownTimeout   time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, defMs int) time.Duration {
	return time.Duration(atoienv(key, defMs)) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	return time.Duration(atoienv(key, defSec)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	source := strings.ToLower(getenv("EVENT_SOURCE", EventSourceKafka))
	if source != EventSourceMemory {
		source = EventSourceKafka
	}
	return Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:          getenv("GRPC_ADDR", ":50051"),
		MySQLDSN:          getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/orders?parseTime=true"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:     atoienv("REDIS_POOL_SIZE", 100),
		KafkaBrokers:      splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getenv("KAFKA_TOPIC", "orders.changes"),
		EventSource:       source,
		WSSendBuffer:      atoienv("WS_SEND_BUFFER", 64),
		WSAllowedOrigins:  splitList(getenv("WS_ALLOWED_ORIGINS", "")),
		WSWriteTimeout:    durenvms("WS_WRITE_TIMEOUT_MS", 10000),
		WatcherBackoff:    durenvms("WATCHER_BACKOFF_MS", 500),
		WatcherMaxWait:    durenvms("WATCHER_MAX_BACKOFF_MS", 30000),
		InvalidateOnWrite: boolenv("INVALIDATE_ON_WRITE", false),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		ShutdownTimeout:   durenvs("SHUTDOWN_TIMEOUT", 10),
	}
}
