package run

import (
	"context"
	"log"
	"time"

	"github.com/flarebyte/aegis/internal/metrics"
	"github.com/flarebyte/aegis/internal/schedule"
	"github.com/flarebyte/aegis/internal/stage"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

var (
	flagListen    string
	flagImmediate bool
)

// checkJob runs one check per activation. Drift counts as a failed run so
// that /status reports it.
func checkJob(cfgEnv stage.Envelope, m *metrics.Metrics) schedule.JobFn {
	return func(ctx context.Context, logger *log.Logger) error {
		env, err := executeAction(ctx, actionRequest{
			action:  stage.ActionCheck,
			config:  cfgEnv.Config,
			logger:  logger,
			metrics: m,
		})
		if err != nil {
			m.ObserveRun(stage.ActionCheck, "error", time.Now())
			return err
		}
		return evaluateRunExit(env)
	}
}

// ScheduleCmd represents `aegis schedule`, the periodic re-scan daemon.
var ScheduleCmd = &cobra.Command{
	Use:           "schedule",
	Short:         "Run check on the configured cron schedule until interrupted",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		logger := newLogger()
		ctx, cancel := context.WithCancel(osutil.CancelOnInterruptOrTerminate(logex.Prefix("main", logger)))
		defer cancel()

		cfgEnv, err := stage.Run(ctx, "validate-config", stage.Envelope{Meta: &stage.Meta{
			ConfigPath: cfgPath,
			EnvFile:    envFile,
			Config:     &stage.ConfigMeta{Action: stage.ActionCheck},
		}}, stage.Deps{Logger: logger})
		if err != nil {
			return err
		}
		m := metrics.New()
		runner, err := schedule.New(cfgEnv.Config.Schedule.Spec, checkJob(cfgEnv, m), logex.Prefix("schedule", logger))
		if err != nil {
			return err
		}

		errCh := make(chan error, 2)
		workers := 1
		go func() { errCh <- runner.Run(ctx, flagImmediate) }()
		if flagListen != "" {
			workers++
			go func() {
				errCh <- schedule.Serve(ctx, flagListen, schedule.Router(runner, m.Handler()), logex.Prefix("http", logger))
			}()
		}
		var firstErr error
		for i := 0; i < workers; i++ {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
			}
			cancel()
		}
		return firstErr
	},
}

func init() {
	ScheduleCmd.Flags().StringVar(&flagListen, "listen", "", "Serve /metrics, /healthz and /status on this address (e.g. :9717)")
	ScheduleCmd.Flags().BoolVar(&flagImmediate, "immediate", false, "Run a check at startup before waiting for the schedule")
}
