package gocbbridge

import (
	"strconv"
	"sync"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/connstr"
)

const (
	defaultKVTimeout      = 2500 * time.Millisecond
	defaultConnectTimeout = 10 * time.Second
)

// Config specifies the configuration options for a Connection.
type Config struct {
	// ConnStr is the couchbase:// connection string the agents are built from.
	ConnStr  string
	Username string
	Password string

	// DefaultBucket is used by operations whose Target names no bucket.
	DefaultBucket string

	// KVTimeout is the default operation timeout, overridden per operation by
	// Options.Timeout.
	KVTimeout time.Duration

	// ConnectTimeout bounds how long opening a bucket waits for it to become ready.
	ConnectTimeout time.Duration

	// DurabilityPollInterval is the pause between observe rounds of persist_to and
	// replicate_to durability.
	DurabilityPollInterval time.Duration

	// Transcoder encodes mutation values and decodes read results. Defaults to the
	// LegacyTranscoder.
	Transcoder Transcoder

	Tracer           gocbcore.RequestTracer
	NoRootTraceSpans bool
	Meter            gocbcore.Meter

	ObservabilityConventions []ObservabilitySemanticConvention

	// ExecutionLock is the caller's ambient serialization lock. When set, callers hold
	// it when invoking operations; it is released for every wait on the native layer
	// and held while callback mode continuations run.
	ExecutionLock sync.Locker
}

func (config *Config) kvTimeout() time.Duration {
	if config.KVTimeout > 0 {
		return config.KVTimeout
	}
	return defaultKVTimeout
}

func (config *Config) connectTimeout() time.Duration {
	if config.ConnectTimeout > 0 {
		return config.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (config *Config) transcoder() Transcoder {
	if config.Transcoder != nil {
		return config.Transcoder
	}
	return NewLegacyTranscoder()
}

// FromConnStr populates the configuration from a connection string. Options not
// understood here are left for gocbcore to interpret when the connection is made.
//
// Supported options are:
//
//	kv_timeout (duration or milliseconds) - The default operation timeout.
//	connect_timeout (duration or milliseconds) - The bucket readiness timeout.
//	durability_poll_interval (duration or milliseconds) - The observe poll interval.
func (config *Config) FromConnStr(connStr string) error {
	spec, err := connstr.Parse(connStr)
	if err != nil {
		return wrapErrorf(ErrInvalidArgument, "connection string could not be parsed: %s", err)
	}

	fetchOption := func(name string) (string, bool) {
		optValue := spec.Options[name]
		if len(optValue) == 0 {
			return "", false
		}
		return optValue[len(optValue)-1], true
	}

	if valStr, ok := fetchOption("kv_timeout"); ok {
		val, err := parseDurationOption(valStr)
		if err != nil {
			return wrapErrorf(ErrInvalidArgument, "kv_timeout option must be a duration or a number: %s", err)
		}
		config.KVTimeout = val
	}

	if valStr, ok := fetchOption("connect_timeout"); ok {
		val, err := parseDurationOption(valStr)
		if err != nil {
			return wrapErrorf(ErrInvalidArgument, "connect_timeout option must be a duration or a number: %s", err)
		}
		config.ConnectTimeout = val
	}

	if valStr, ok := fetchOption("durability_poll_interval"); ok {
		val, err := parseDurationOption(valStr)
		if err != nil {
			return wrapErrorf(ErrInvalidArgument,
				"durability_poll_interval option must be a duration or a number: %s", err)
		}
		config.DurabilityPollInterval = val
	}

	if spec.Bucket != "" {
		config.DefaultBucket = spec.Bucket
	}

	config.ConnStr = connStr
	return nil
}

// parseDurationOption accepts a Go duration or a plain number of milliseconds.
func parseDurationOption(valStr string) (time.Duration, error) {
	dur, err := time.ParseDuration(valStr)
	if err == nil {
		return dur, nil
	}

	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(val) * time.Millisecond, nil
}

// agentGroupConfig builds the gocbcore configuration for the agents backing a
// Connection.
func (config *Config) agentGroupConfig() (*gocbcore.AgentGroupConfig, error) {
	agentConfig := &gocbcore.AgentGroupConfig{}
	if err := agentConfig.FromConnStr(config.ConnStr); err != nil {
		return nil, err
	}

	agentConfig.UserAgent = "gocbbridge/" + Version()
	agentConfig.SecurityConfig.Auth = gocbcore.PasswordAuthProvider{
		Username: config.Username,
		Password: config.Password,
	}

	agentConfig.IoConfig.UseMutationTokens = true
	agentConfig.IoConfig.UseCollections = true
	agentConfig.IoConfig.UseDurations = true
	agentConfig.IoConfig.UseOutOfOrderResponses = true

	// Values are inflated by the result adapter rather than the agent.
	agentConfig.CompressionConfig.Enabled = true
	agentConfig.CompressionConfig.DisableDecompression = true

	agentConfig.TracerConfig.Tracer = config.Tracer
	agentConfig.TracerConfig.NoRootTraceSpans = config.NoRootTraceSpans
	agentConfig.MeterConfig.Meter = config.Meter

	return agentConfig, nil
}
