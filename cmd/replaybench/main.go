package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/experience"
	"github.com/cartridge/experience/internal/config"
	"github.com/cartridge/experience/internal/rollout"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replaybench",
	Short: "Replay buffer exerciser",
	Long: `replaybench fills a replay buffer with synthetic rollouts and runs it
through sampling, flattening and snapshot persistence, reporting buffer
statistics along the way.`,
	RunE:         runBench,
	SilenceUsage: true,
}

func init() {
	cfg = config.Default()

	// Rollout settings
	rootCmd.Flags().IntVar(&cfg.Transitions, "transitions", cfg.Transitions, "Number of transitions to collect")
	rootCmd.Flags().IntVar(&cfg.StateDim, "state-dim", cfg.StateDim, "State vector length")
	rootCmd.Flags().IntVar(&cfg.NumActions, "num-actions", cfg.NumActions, "Discrete action count")
	rootCmd.Flags().IntVar(&cfg.Horizon, "horizon", cfg.Horizon, "Maximum episode length")
	rootCmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent rollout workers")

	// Buffer settings
	rootCmd.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Buffer capacity (0 for unbounded)")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	rootCmd.Flags().IntVar(&cfg.SampleSize, "sample-size", cfg.SampleSize, "Records per sample")

	// Persistence and logging
	rootCmd.Flags().StringVar(&cfg.SnapshotPath, "snapshot-path", cfg.SnapshotPath, "Snapshot file path")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Bind flags to viper for environment variable support
	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("REPLAYBENCH")
	viper.AutomaticEnv()
}

func runBench(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	replay := experience.New(
		experience.WithCapacity(cfg.Capacity),
		experience.WithSeed(cfg.Seed),
	)
	gen := rollout.New(rollout.Config{
		StateDim:   cfg.StateDim,
		NumActions: cfg.NumActions,
		Horizon:    cfg.Horizon,
		StopProb:   0.02,
	}, cfg.Seed, logger)

	if _, err := gen.FillParallel(replay, cfg.Transitions, cfg.Workers); err != nil {
		return err
	}
	stats := replay.Stats()
	logger.Info().
		Int("transitions", stats.Transitions).
		Int("episodes", stats.Episodes).
		Float64("reward_mean", stats.RewardMean).
		Float64("reward_std", stats.RewardStd).
		Uint64("storage_bytes", stats.StorageBytes).
		Msg("buffer filled")

	if err := runSampling(replay, logger); err != nil {
		return err
	}
	if err := runFlatten(gen, logger); err != nil {
		return err
	}
	return runSnapshot(replay, logger)
}

func runSampling(replay *experience.Replay, logger zerolog.Logger) error {
	uniform, err := replay.Sample(experience.SampleConfig{Size: cfg.SampleSize})
	if err != nil {
		return err
	}
	states, err := uniform.States()
	if err != nil {
		return err
	}
	logger.Info().Ints("batch_shape", states.Shape()).Msg("uniform sample")

	contiguous, err := replay.Sample(experience.SampleConfig{Size: cfg.SampleSize, Contiguous: true})
	if err != nil {
		return err
	}
	logger.Info().Int("records", contiguous.Len()).Msg("contiguous sample")

	episode, err := replay.Sample(experience.SampleConfig{Size: 1, Episodes: true})
	if err != nil {
		return err
	}
	logger.Info().Int("records", episode.Len()).Msg("episode sample")
	return nil
}

func runFlatten(gen *rollout.Generator, logger zerolog.Logger) error {
	vec := experience.New(experience.WithVectorized(true), experience.WithSeed(cfg.Seed))
	if err := gen.FillVectorized(vec, 16, 4); err != nil {
		return err
	}
	flat, err := vec.Flatten()
	if err != nil {
		return err
	}
	logger.Info().Int("vectorized", vec.Len()).Int("flat", flat.Len()).Msg("flattened rollout")
	return nil
}

func runSnapshot(replay *experience.Replay, logger zerolog.Logger) error {
	if err := replay.Save(cfg.SnapshotPath); err != nil {
		return err
	}
	restored := experience.New(experience.WithSeed(cfg.Seed))
	if err := restored.Load(cfg.SnapshotPath); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.SnapshotPath).Int("records", restored.Len()).Msg("snapshot round trip")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
