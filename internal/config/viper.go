package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wpool/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parameterSource tracks where each parameter value came from.
type parameterSource struct {
	Key    string
	Value  interface{}
	Source string
}

// flagNames maps viper config keys to the CLI flag that overrides them.
var flagNames = map[string]string{
	"pool.thread_count":  "threads",
	"pool.queue_size":    "queue-size",
	"pool.timeout":       "timeout",
	"pool.cancel_type":   "cancel-type",
	"pool.timed_wait":    "timed-wait",
	"pool.block_on_add":  "block-on-add",
	"pool.block_on_err":  "block-on-err",
	"pool.create_policy": "create-policy",
	"app.log_format":     "log-format",
	"app.log_level":      "log-level",
}

// getParameterSource determines where a parameter value came from: a
// command-line flag, an environment variable, the config file, or the
// built-in default.
func getParameterSource(key string, cmd *cobra.Command) parameterSource {
	flagValue := viper.Get(key)
	envKey := "WPOOL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

	flagName := flagNames[key]
	if flagName == "" {
		flagName = strings.Replace(key, ".", "-", -1)
	}

	if cmd != nil {
		if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
			return parameterSource{key, flagValue, "command line flag"}
		}
		current := cmd
		for current != nil {
			if f := current.PersistentFlags().Lookup(flagName); f != nil && f.Changed {
				return parameterSource{key, flagValue, "command line flag"}
			}
			current = current.Parent()
		}
	}

	if _, exists := os.LookupEnv(envKey); exists {
		return parameterSource{key, flagValue, "environment variable"}
	}

	if viper.GetViper().InConfig(key) {
		return parameterSource{key, flagValue, "config file"}
	}

	return parameterSource{key, flagValue, "default value"}
}

// LogConfigurationSources logs the source of each configuration
// parameter, at DEBUG level.
func LogConfigurationSources(shouldLog bool, cmd *cobra.Command) {
	if !shouldLog {
		return
	}

	logging.Debug("configuration parameter sources", nil)

	params := make([]string, 0, len(flagNames))
	for key := range flagNames {
		params = append(params, key)
	}

	for _, param := range params {
		source := getParameterSource(param, cmd)
		logging.Debug(fmt.Sprintf("  %s = %v (from %s)", source.Key, source.Value, source.Source), nil)
	}
}

// InitConfig initializes the Viper configuration: search paths, the
// WPOOL_ environment prefix, defaults, and an optional config file.
func InitConfig(shouldLog bool, cmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("WPOOL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	viper.SetDefault("pool.thread_count", Config.ThreadCount)
	viper.SetDefault("pool.queue_size", Config.QueueSize)
	viper.SetDefault("pool.timeout", Config.Timeout)
	viper.SetDefault("pool.cancel_type", Config.CancelType)
	viper.SetDefault("pool.timed_wait", Config.TimedWait)
	viper.SetDefault("pool.block_on_add", Config.BlockOnAdd)
	viper.SetDefault("pool.block_on_err", Config.BlockOnErr)
	viper.SetDefault("pool.create_policy", Config.CreatePolicy)
	viper.SetDefault("app.log_format", Config.LogFormat)
	viper.SetDefault("app.log_level", Config.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if shouldLog {
			logging.Debug("no config file found, using defaults and environment variables", nil)
		}
	} else if shouldLog {
		logging.Debug("loaded config file", map[string]interface{}{
			"path": viper.ConfigFileUsed(),
		})
	}

	Config.ThreadCount = viper.GetInt("pool.thread_count")
	Config.QueueSize = viper.GetInt("pool.queue_size")
	Config.Timeout = viper.GetFloat64("pool.timeout")
	Config.CancelType = viper.GetString("pool.cancel_type")
	Config.TimedWait = viper.GetBool("pool.timed_wait")
	Config.BlockOnAdd = viper.GetBool("pool.block_on_add")
	Config.BlockOnErr = viper.GetBool("pool.block_on_err")
	Config.CreatePolicy = viper.GetString("pool.create_policy")
	Config.LogFormat = viper.GetString("app.log_format")
	Config.LogLevel = viper.GetString("app.log_level")

	return nil
}

// SetConfigFile sets a custom config file path and reloads the
// configuration.
func SetConfigFile(configFile string) error {
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a default config file under
// ~/.wpool/config.yaml if one does not already exist.
func CreateDefaultConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("error getting home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".wpool")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		defaultConfig := []byte(`# wpool configuration file

pool:
  thread_count: 4      # number of worker goroutines
  queue_size: 16        # bounded shared queue size, -1 for unlimited
  timeout: 10           # default wait timeout, seconds
  cancel_type: deferred # deferred or async
  timed_wait: false     # bound a blocking AddWork by timeout instead of blocking indefinitely
  block_on_add: false   # AddWork blocks on a full queue instead of failing
  block_on_err: true    # latch a worker into BLOCKED after a failing task
  create_policy: lazy   # lazy or strict worker goroutine startup

app:
  log_format: text  # text or json
  log_level: INFO   # DEBUG, INFO, WARN, ERROR
`)
		if err := os.WriteFile(configPath, defaultConfig, 0644); err != nil {
			return fmt.Errorf("error writing default config file: %w", err)
		}
	}

	return nil
}
