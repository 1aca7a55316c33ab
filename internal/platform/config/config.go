package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	WorkerPollInterval  time.Duration
	DeliveryBatchSize   int
	DeliveryMaxRetry    int
	DeliveryLeaseTTL    time.Duration
	DeliveryConcurrency int
	DeliveryRetryDelay  time.Duration
	HandlerTimeout      time.Duration
	IngestBatchSize     int
	HookEndpointURL     string

	EnableIngestWorker    bool
	EnableDeliveryWorker  bool
	EnablePersistConsumer bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "clipfeed"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		WorkerPollInterval:  envDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		DeliveryBatchSize:   envInt("DELIVERY_BATCH_SIZE", 25),
		DeliveryMaxRetry:    envInt("DELIVERY_MAX_RETRY", 5),
		DeliveryLeaseTTL:    envDuration("DELIVERY_LEASE_TTL", 5*time.Minute),
		DeliveryConcurrency: envInt("DELIVERY_CONCURRENCY", 8),
		DeliveryRetryDelay:  envDuration("DELIVERY_RETRY_DELAY", 30*time.Second),
		HandlerTimeout:      envDuration("HANDLER_TIMEOUT", 30*time.Second),
		IngestBatchSize:     envInt("INGEST_BATCH_SIZE", 50),
		HookEndpointURL:     strings.TrimSpace(os.Getenv("HOOK_ENDPOINT_URL")),

		EnableIngestWorker:    envBool("ENABLE_INGEST_WORKER", true),
		EnableDeliveryWorker:  envBool("ENABLE_DELIVERY_WORKER", true),
		EnablePersistConsumer: envBool("ENABLE_PERSIST_CONSUMER", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
