// Package messenger parses messenger command flags and composes the
// terminal chat client around the session engine.
package messenger

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/directory"
	"github.com/DANG-PH/NgocRongOnline/internal/chat/history"
	"github.com/DANG-PH/NgocRongOnline/internal/chat/session"
	entrypoint "github.com/DANG-PH/NgocRongOnline/internal/platform/cmd"
)

// Config holds messenger command configuration.
type Config struct {
	GatewayWSURL string `env:"NGOCRONG_GATEWAY_WS_URL" envDefault:"ws://localhost:8086/ws-chat"`
	APIBaseURL   string `env:"NGOCRONG_API_BASE_URL"   envDefault:"http://localhost:8086"`
	AccessToken  string `env:"NGOCRONG_ACCESS_TOKEN"`
	UserID       int64  `env:"NGOCRONG_USER_ID"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.GatewayWSURL, "gateway-ws-url", cfg.GatewayWSURL, "gateway websocket URL")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "gateway REST base URL")
	fs.StringVar(&cfg.AccessToken, "access-token", cfg.AccessToken, "bearer access token")
	fs.Int64Var(&cfg.UserID, "user-id", cfg.UserID, "authenticated user id")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run wires the session engine to the gateway and drives it from the
// terminal until the context ends or the user quits.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMessenger, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.AccessToken) == "" {
			return errors.New("access token is required")
		}
		if cfg.UserID <= 0 {
			return errors.New("user id is required")
		}

		tokens := session.StaticToken(strings.TrimSpace(cfg.AccessToken))
		backend, err := history.NewClient(cfg.APIBaseURL, tokens)
		if err != nil {
			return fmt.Errorf("init history client: %w", err)
		}
		contacts, err := directory.NewClient(cfg.APIBaseURL, tokens)
		if err != nil {
			return fmt.Errorf("init directory client: %w", err)
		}

		client := newClient(clientConfig{
			selfID:   cfg.UserID,
			wsURL:    cfg.GatewayWSURL,
			tokens:   tokens,
			backend:  backend,
			contacts: contacts,
			input:    os.Stdin,
			output:   os.Stdout,
		})
		if err := client.run(ctx); err != nil {
			return fmt.Errorf("run messenger: %w", err)
		}
		return nil
	})
}
