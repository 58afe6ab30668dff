// Command token mints bearer tokens for chat adapters calling the gateway.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"corridor-server/internal/auth"
	"corridor-server/internal/shared/config"
)

func main() {
	adapter := flag.String("adapter", "discord", "adapter name recorded in the token")
	role := flag.String("role", string(auth.RoleService), "token role: service or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime; 0 uses JWT_EXPIRATION_HOURS")
	flag.Parse()

	if err := config.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	cfg := config.GlobalConfig.Auth
	token, err := auth.GenerateJWT(cfg, *adapter, auth.Role(*role), *ttl)
	if err != nil {
		slog.Error("Failed to mint token", "adapter", *adapter, "role", *role, "error", err)
		os.Exit(1)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.TokenExpiration
	}
	slog.Info("Token minted", "adapter", *adapter, "role", *role, "expires_at", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	fmt.Println(token)
}
