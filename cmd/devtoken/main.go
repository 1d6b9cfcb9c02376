// Command devtoken prints a bearer token for local testing, signed with the
// same secret the server reads from its configuration.
package main

import (
	"flag"
	"fmt"
	"os"

	"silent-auction/internal/auth"
	"silent-auction/internal/config"
	model "silent-auction/internal/models"
	"silent-auction/utils"
)

func main() {
	userID := flag.String("user", "", "user id (token subject)")
	email := flag.String("email", "", "user email")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to the configured TTL")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -user <id> [-email <email>] [-ttl 2h]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("devtoken: failed to load config", map[string]any{"error": err.Error()})
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	provider, err := auth.NewJWTProvider(cfg.Auth.JWTSecret, lifetime)
	if err != nil {
		utils.Fatal("devtoken: failed to build provider", map[string]any{"error": err.Error()})
	}
	token, err := provider.Issue(model.Identity{UserID: *userID, Email: *email})
	if err != nil {
		utils.Fatal("devtoken: failed to issue token", map[string]any{"error": err.Error()})
	}
	fmt.Println(token)
}
