package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/llxisdsh/slim/internal/bench"
	"github.com/llxisdsh/slim/internal/log"
)

const longDesc = `Measure slim lock throughput under contention.

Workers repeatedly acquire and release the selected primitive until the
duration elapses. A share of critical sections (--probability percent)
spin inside the lock before releasing it.

Modes:
  lock       one FairLock
  reentrant  one ReentrantLock, entered twice per iteration
  any        WaitAny over two FairLocks
  all        WaitAll over two FairLocks (needs --timeout)
`

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrLogHandlerFailed = errors.New("log handler failed")
)

func NewRootCmd(name string) *cobra.Command {
	def := bench.DefaultConfig()

	cmd := &cobra.Command{
		Use:           name,
		Short:         "Measure slim lock throughput",
		Long:          longDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log_level", "warn", "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log_format", "text", "Set the log format (text, logfmt, json)")

	cmd.Flags().StringP("mode", "m", def.Mode, "Primitive to drive (lock, reentrant, any, all)")
	cmd.Flags().IntP("workers", "w", def.Workers, "Number of contending workers")
	cmd.Flags().Int("spin", def.SpinCount, "Spin count passed to every lock")
	cmd.Flags().DurationP("duration", "d", def.Duration, "How long to run")
	cmd.Flags().IntP("probability", "p", def.Probability, "Percentage of critical sections that spin inside the lock")
	cmd.Flags().Duration("timeout", def.Timeout, "Timeout of each acquisition (0 waits forever)")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		flags := cc.Flags()

		var merr error

		logLevel, err := flags.GetString("log_level")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		logFormat, err := flags.GetString("log_format")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		if merr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
		}

		h, err := log.CreateHandler(cc.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogHandlerFailed, err)
		}

		slog.SetDefault(slog.New(h))

		return nil
	}

	cmd.RunE = func(cc *cobra.Command, _ []string) error {
		cfg, err := configFromFlags(cc)
		if err != nil {
			return err
		}

		slog.Info("starting", "mode", cfg.Mode, "workers", cfg.Workers, "duration", cfg.Duration)

		res, err := bench.Run(cc.Context(), cfg)
		if err != nil {
			return fmt.Errorf("run %s: %w", cfg.Mode, err)
		}

		for w, n := range res.PerWorker {
			slog.Debug("worker done", "worker", w, "acquisitions", n)
		}

		out := cc.OutOrStdout()
		fmt.Fprintf(out, "mode:         %s\n", cfg.Mode)
		fmt.Fprintf(out, "workers:      %d\n", cfg.Workers)
		fmt.Fprintf(out, "acquisitions: %d\n", res.Acquisitions)
		fmt.Fprintf(out, "timeouts:     %d\n", res.Timeouts)
		fmt.Fprintf(out, "elapsed:      %v\n", res.Elapsed)
		fmt.Fprintf(out, "unit cost:    %v\n", res.UnitCost())

		return nil
	}

	return cmd
}

func configFromFlags(cc *cobra.Command) (bench.Config, error) {
	flags := cc.Flags()

	var (
		cfg  bench.Config
		merr error
		err  error
	)

	if cfg.Mode, err = flags.GetString("mode"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if cfg.SpinCount, err = flags.GetInt("spin"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if cfg.Duration, err = flags.GetDuration("duration"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if cfg.Probability, err = flags.GetInt("probability"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		merr = multierror.Append(merr, err)
	}

	if merr != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return cfg, nil
}
