// Command seed creates a session with the built-in playlist and a few players,
// for trying out a host screen without phones.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pulsequiz/internal/app"
	"pulsequiz/internal/config"
	"pulsequiz/internal/logging"
	"pulsequiz/internal/tracksource"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := &config.Config{}
	var players []string

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Create a demo session in the configured store.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Store == config.StoreMemory {
				return errors.New("seeding the memory store is pointless, use --store redis or --store mongo")
			}
			logging.Setup(cfg.Environment)
			return seed(cmd.Context(), *cfg, players)
		},
	}
	cfg.RegisterFlags(cmd.Flags())
	cmd.Flags().StringSliceVar(&players, "players", []string{"Ada", "Grace", "Linus"}, "player names to add")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func seed(ctx context.Context, cfg config.Config, players []string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	created, err := a.Sessions.CreateSession(ctx, tracksource.DefaultPlaylist())
	if err != nil {
		return err
	}
	for _, name := range players {
		joined, err := a.Sessions.JoinSession(ctx, created.PIN, name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		log.Info().Str("player_id", joined.PlayerID).Str("name", name).Msg("player added")
	}

	fmt.Printf("PIN:        %s\n", created.PIN)
	fmt.Printf("Host token: %s\n", created.HostToken)
	return nil
}
