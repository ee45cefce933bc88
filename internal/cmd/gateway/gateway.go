// Package gateway parses gateway command flags and composes the chat
// backend entrypoint.
package gateway

import (
	"context"
	"flag"
	"fmt"

	server "github.com/DANG-PH/NgocRongOnline/internal/gateway"
	entrypoint "github.com/DANG-PH/NgocRongOnline/internal/platform/cmd"
)

// Config holds gateway command configuration.
type Config struct {
	HTTPAddr    string `env:"NGOCRONG_GATEWAY_HTTP_ADDR" envDefault:":8086"`
	DBPath      string `env:"NGOCRONG_GATEWAY_DB_PATH"   envDefault:"gateway.db"`
	TokenSecret string `env:"NGOCRONG_TOKEN_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "gateway HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the gateway SQLite database")
	fs.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "access token signing secret")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the gateway and serves until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGateway, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:    cfg.HTTPAddr,
			DBPath:      cfg.DBPath,
			TokenSecret: cfg.TokenSecret,
		}); err != nil {
			return fmt.Errorf("serve gateway: %w", err)
		}
		return nil
	})
}
