package config

import "wpool/internal/worker"

// GlobalConfig holds the process-wide configuration for the pool CLI. It
// maps onto worker.Attributes; InitConfig (viper.go) resolves
// env/file/default precedence into these fields, and the root command's
// flags, bound directly to them, override those values when set, before
// a command builds an Attributes value from them.
type GlobalConfig struct {
	// ThreadCount is the number of worker goroutines in the pool.
	ThreadCount int

	// QueueSize bounds the shared task queue. -1 means unlimited.
	QueueSize int

	// Timeout is the default wait timeout, in seconds.
	Timeout float64

	// CancelType selects "deferred" or "async" cancellation semantics.
	CancelType string

	// TimedWait makes a blocking AddWork (BlockOnAdd enabled) bound
	// itself by Timeout instead of blocking indefinitely. The explicit
	// TimedAddWork/TimedWait methods always honor their own argument
	// regardless of this flag.
	TimedWait bool

	// BlockOnAdd makes AddWork block on a full queue instead of failing.
	BlockOnAdd bool

	// BlockOnErr latches a worker into BLOCKED after a failing task.
	BlockOnErr bool

	// CreatePolicy selects "lazy" or "strict" worker goroutine startup.
	CreatePolicy string

	// LogFormat is the format for logging ("text" or "json").
	LogFormat string

	// LogLevel is the level for logging (DEBUG, INFO, WARN, ERROR).
	LogLevel string
}

// Config is the global configuration instance.
var Config = &GlobalConfig{
	ThreadCount:  4,
	QueueSize:    16,
	Timeout:      10,
	CancelType:   "deferred",
	TimedWait:    false,
	BlockOnAdd:   false,
	BlockOnErr:   true,
	CreatePolicy: "lazy",
	LogFormat:    "text",
	LogLevel:     "INFO",
}

func toggle(b bool) worker.Toggle {
	if b {
		return worker.Enabled
	}
	return worker.Disabled
}

// Attributes builds a worker.Attributes value from the resolved global
// configuration, ready to pass to worker.Create.
func Attributes() worker.Attributes {
	attr := worker.DefaultAttributes()
	attr.ThreadCount = Config.ThreadCount
	attr.QueueSize = Config.QueueSize
	attr.Timeout = Config.Timeout
	if Config.CancelType == "async" {
		attr.CancelType = worker.CancelAsync
	} else {
		attr.CancelType = worker.CancelDeferred
	}
	attr.TimedWait = toggle(Config.TimedWait)
	attr.BlockOnAdd = toggle(Config.BlockOnAdd)
	attr.BlockOnErr = toggle(Config.BlockOnErr)
	if Config.CreatePolicy == "strict" {
		attr.CreatePolicy = worker.Strict
	} else {
		attr.CreatePolicy = worker.Lazy
	}
	return attr
}
