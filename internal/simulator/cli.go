package simulator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rocketstat/internal/config"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

// Default flag values.
const (
	defaultBaseURL = "http://localhost:9080"
	defaultMatches = 10
	defaultTimeout = 10 * time.Second
)

// NewCommand returns the telemetry-sim root command. Players come from the
// service's own config file so the simulated identities match.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var (
		configPath string
		logFormat  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "telemetry-sim",
		Short: "Send simulated Rocket League telemetry to a rocketstat service",
		Long: `telemetry-sim plays matches for every player in the service config
and posts the resulting documents, either broadcast to every engine or
addressed to each player's webhook.`,
		Example: `  telemetry-sim --config config.yaml
  telemetry-sim --config config.yaml --mode webhook --matches 50 --interval 200ms --verify`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithFormat(logFormat)); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			players, err := loadPlayers(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			cfg.Players = players

			stats, err := Run(cmd.Context(), cfg)
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sent=%d accepted=%d rejected=%d failed=%d verified=%d mismatch=%d\n",
					stats.Sent, stats.Accepted, stats.Rejected, stats.Failed, stats.Verified, stats.Mismatch)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", defaultBaseURL, "Base URL of the service")
	f.StringVarP(&configPath, "config", "c", os.Getenv(config.EnvConfig), "Service config file holding the players")
	f.IntVarP(&cfg.Matches, "matches", "n", defaultMatches, "Matches to play per player")
	f.DurationVar(&cfg.Interval, "interval", 0, "Pause between rounds")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.Mode, "mode", ModeBroadcast, "Delivery mode: broadcast or webhook")
	f.Uint64Var(&cfg.Seed, "seed", 0, "Generator seed (0 picks one)")
	f.BoolVar(&cfg.Strays, "strays", false, "Also send documents for unknown players")
	f.BoolVar(&cfg.Verify, "verify", false, "Check score views after the run")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func loadPlayers(ctx context.Context, path string) ([]model.PlayerRecord, error) {
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	players, err := cfg.Records()
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, ErrNoPlayers
	}
	return players, nil
}
