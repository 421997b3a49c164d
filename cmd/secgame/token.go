package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/freeeve/secgame/api/internal/auth"
	"github.com/freeeve/secgame/api/internal/config"
)

func tokenCmd(args []string) error {
	cfg := config.Load()
	var (
		analyst string
		secret  string
		ttl     time.Duration
	)
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.StringVar(&analyst, "analyst", "", "Analyst id to embed in the token")
	fs.StringVar(&secret, "secret", cfg.JWTSecret, "Signing secret (or use JWT_SECRET env)")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "Access token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if analyst == "" {
		fs.Usage()
		return fmt.Errorf("-analyst is required")
	}

	pair, err := auth.NewJWTManager(secret).WithAccessExpiry(ttl).GenerateTokenPair(analyst)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pair)
}
