package redis

import (
	"context"
	"testing"

	"corridor-server/internal/shared/config"
)

func TestOptionsFromHost(t *testing.T) {
	opts, err := options(config.RedisConfig{Host: "cache", Port: "6380", DB: 2, Password: "pw"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "pw" {
		t.Fatalf("opts addr=%s db=%d", opts.Addr, opts.DB)
	}
}

func TestOptionsFromURLWins(t *testing.T) {
	opts, err := options(config.RedisConfig{URL: "redis://:secret@broker:6390/4", Host: "ignored", Port: "1"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "broker:6390" || opts.DB != 4 || opts.Password != "secret" {
		t.Fatalf("opts addr=%s db=%d", opts.Addr, opts.DB)
	}

	if _, err := options(config.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatal("non-redis URL accepted")
	}
}

func TestConnectDisabled(t *testing.T) {
	prev := config.GlobalConfig
	t.Cleanup(func() { config.GlobalConfig = prev })
	config.GlobalConfig = &config.Config{Redis: config.RedisConfig{Enabled: false}}

	c, err := Connect(context.Background())
	if err != nil || c != nil {
		t.Fatalf("client=%v err=%v", c, err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}
