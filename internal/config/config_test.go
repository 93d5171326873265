package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4620 {
		t.Fatalf("expected default server port 4620, got %d", cfg.Server.Port)
	}
	if cfg.Table.Shards != 32 {
		t.Fatalf("expected default shard count 32, got %d", cfg.Table.Shards)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dserv.yaml")
	yaml := "server:\n  port: 9000\ntable:\n  shards: 8\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Table.Shards != 8 {
		t.Fatalf("expected 8 shards, got %d", cfg.Table.Shards)
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dserv.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DSERV_SERVER_PORT", "1234")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 1234 {
		t.Fatalf("expected env override 1234, got %d", cfg.Server.Port)
	}
}

func TestValidateRejectsConflictingPorts(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.HTTP.Enabled = true
	cfg.HTTP.Port = cfg.Server.Port
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for conflicting http/server ports")
	}
}

func TestValidateRequiresKafkaBrokersWhenEnabled(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for kafka enabled without brokers")
	}
}
