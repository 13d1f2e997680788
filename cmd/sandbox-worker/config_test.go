package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, `
kafka:
  brokers: [localhost:9092]
  compression: zstd
worker:
  poolSize: 2
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	q := cfg.Worker.Queue
	if q.RequestTopic != "sandbox.run.request" || q.ReplyTopic != "sandbox.run.reply" {
		t.Fatalf("unexpected topics: %+v", q)
	}
	if q.ConsumerGroup != "sandbox-worker" || q.Concurrency != 2 {
		t.Fatalf("unexpected consumer settings: %+v", q)
	}
	if cfg.Logger.Service != "sandbox-worker" {
		t.Fatalf("unexpected logger service: %q", cfg.Logger.Service)
	}
	if cfg.Sandbox.Timeout <= 0 {
		t.Fatalf("limits not defaulted")
	}
	if mqCfg := cfg.Kafka.toMQConfig(); mqCfg.Compression != kafka.Zstd || len(mqCfg.Brokers) != 1 {
		t.Fatalf("unexpected kafka config: %+v", mqCfg)
	}
}

func TestLoadAppConfigRequiresBrokers(t *testing.T) {
	if _, err := loadAppConfig(writeConfig(t, "worker:\n  poolSize: 1\n")); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
