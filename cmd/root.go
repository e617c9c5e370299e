package cmd

import (
	"strings"

	"wpool/cmd/run"
	"wpool/cmd/status"
	"wpool/cmd/version"
	"wpool/internal/config"
	"wpool/internal/logging"

	"github.com/spf13/cobra"
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "wpool",
		Short: "wpool - a bounded worker-pool engine",
		Long: `wpool is a command-line tool for driving and inspecting a bounded,
fixed-size worker pool: a shared FIFO task queue, lockable dedicated
workers, and the thread-state introspection that comes with it.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				if err := config.SetConfigFile(configFile); err != nil {
					logging.Error("failed to load config file", err)
				}
			}

			logFormat := logging.Text
			if strings.ToLower(config.Config.LogFormat) == "json" {
				logFormat = logging.JSON
			}

			var level logging.Level
			switch strings.ToUpper(config.Config.LogLevel) {
			case "DEBUG":
				level = logging.DEBUG
			case "WARN":
				level = logging.WARN
			case "ERROR":
				level = logging.ERROR
			default:
				level = logging.INFO
			}

			logging.Configure(logging.LogConfig{
				Level:  level,
				Format: logFormat,
			})

			config.LogConfigurationSources(level == logging.DEBUG, cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().IntVar(&config.Config.ThreadCount, "threads", config.Config.ThreadCount, "number of worker goroutines")
	rootCmd.PersistentFlags().IntVar(&config.Config.QueueSize, "queue-size", config.Config.QueueSize, "bounded shared queue size, -1 for unlimited")
	rootCmd.PersistentFlags().Float64Var(&config.Config.Timeout, "timeout", config.Config.Timeout, "default wait timeout, in seconds")
	rootCmd.PersistentFlags().StringVar(&config.Config.CancelType, "cancel-type", config.Config.CancelType, "cancellation semantics: deferred or async")
	rootCmd.PersistentFlags().BoolVar(&config.Config.TimedWait, "timed-wait", config.Config.TimedWait, "bound a blocking AddWork by --timeout instead of blocking indefinitely")
	rootCmd.PersistentFlags().BoolVar(&config.Config.BlockOnAdd, "block-on-add", config.Config.BlockOnAdd, "AddWork blocks on a full queue instead of failing")
	rootCmd.PersistentFlags().BoolVar(&config.Config.BlockOnErr, "block-on-err", config.Config.BlockOnErr, "latch a worker into BLOCKED after a failing task")
	rootCmd.PersistentFlags().StringVar(&config.Config.CreatePolicy, "create-policy", config.Config.CreatePolicy, "worker startup policy: lazy or strict")
	rootCmd.PersistentFlags().StringVar(&config.Config.LogFormat, "log-format", config.Config.LogFormat, "log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&config.Config.LogLevel, "log-level", config.Config.LogLevel, "logging level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(run.NewRunCmd())
	rootCmd.AddCommand(status.NewStatusCmd())
	rootCmd.AddCommand(version.NewVersionCmd())

	if err := config.InitConfig(false, rootCmd); err != nil {
		return err
	}
	if err := config.CreateDefaultConfig(); err != nil {
		return err
	}

	return rootCmd.Execute()
}
