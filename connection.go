package gocbbridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbase/gocbcore/v10"
	"golang.org/x/sync/singleflight"
)

// Connection is the handle operations are dispatched through. It owns one gocbcore
// agent group and opens buckets on first use.
type Connection struct {
	config   *Config
	group    *gocbcore.AgentGroup
	tracing  *tracerComponent
	lock     executionLock
	defaults descriptorDefaults

	// openProvider opens the native provider for a bucket. Tests replace it.
	openProvider func(bucket string) (kvProvider, error)

	bridgesLock sync.Mutex
	bridges     map[string]*kvBridge
	opening     singleflight.Group
	closed      uint32
}

func newConnection(config *Config) *Connection {
	return &Connection{
		config:  config,
		tracing: newTracerComponent(config.Tracer, config.Meter, config.ObservabilityConventions, config.NoRootTraceSpans),
		lock:    newExecutionLock(config.ExecutionLock),
		defaults: descriptorDefaults{
			timeout:    config.kvTimeout(),
			transcoder: config.transcoder(),
		},
		bridges: make(map[string]*kvBridge),
	}
}

// Connect creates the agent group for config. When the configuration names a default
// bucket it is opened straight away. Connect does not touch the execution lock.
func Connect(config *Config) (*Connection, error) {
	if config == nil {
		return nil, wrapError(ErrInvalidArgument, "config cannot be nil")
	}

	agentConfig, err := config.agentGroupConfig()
	if err != nil {
		return nil, err
	}

	group, err := gocbcore.CreateAgentGroup(agentConfig)
	if err != nil {
		return nil, err
	}

	conn := newConnection(config)
	conn.group = group
	conn.openProvider = conn.openAgent

	logInfof("Created connection to %s", redactSystemData(config.ConnStr))

	if config.DefaultBucket != "" {
		provider, err := conn.openAgent(config.DefaultBucket)
		if err != nil {
			closeErr := group.Close()
			if closeErr != nil {
				logDebugf("Failed to close agent group after failed bucket open: %v", closeErr)
			}
			return nil, err
		}
		conn.addBridge(config.DefaultBucket, provider)
	}

	return conn, nil
}

// openAgent opens the bucket on the agent group and waits until its key-value service
// is ready.
func (c *Connection) openAgent(bucket string) (kvProvider, error) {
	if err := c.group.OpenBucket(bucket); err != nil {
		return nil, err
	}

	agent := c.group.GetAgent(bucket)
	if agent == nil {
		return nil, wrapErrorf(gocbcore.ErrBucketNotFound, "no agent available for bucket %s", redactMetaData(bucket))
	}

	ready := newBlockingCompletion[error]()
	_, err := agent.WaitUntilReady(time.Now().Add(c.config.connectTimeout()), gocbcore.WaitUntilReadyOptions{
		ServiceTypes: []gocbcore.ServiceType{gocbcore.MemdService},
	}, func(_ *gocbcore.WaitUntilReadyResult, err error) {
		ready.set(err)
	})
	if err != nil {
		return nil, err
	}
	if err := ready.get(); err != nil {
		return nil, err
	}

	logDebugf("Bucket %s is ready", redactMetaData(bucket))
	return agentProvider{Agent: agent}, nil
}

// bridgeFor returns the bridge for a bucket, opening the bucket if needed. Concurrent
// first uses of one bucket share a single open; buckets already open are never held up
// by it.
func (c *Connection) bridgeFor(bucket string) (*kvBridge, error) {
	if atomic.LoadUint32(&c.closed) == 1 {
		return nil, ErrBridgeClosed
	}

	if bridge, ok := c.lookupBridge(bucket); ok {
		return bridge, nil
	}

	reacquire := c.lock.relinquish()
	defer reacquire()

	opened, err, _ := c.opening.Do(bucket, func() (interface{}, error) {
		if bridge, ok := c.lookupBridge(bucket); ok {
			return bridge, nil
		}

		provider, err := c.openProvider(bucket)
		if err != nil {
			return nil, err
		}
		return c.addBridge(bucket, provider), nil
	})
	if err != nil {
		return nil, err
	}
	return opened.(*kvBridge), nil
}

func (c *Connection) lookupBridge(bucket string) (*kvBridge, bool) {
	c.bridgesLock.Lock()
	defer c.bridgesLock.Unlock()

	bridge, ok := c.bridges[bucket]
	return bridge, ok
}

func (c *Connection) addBridge(bucket string, provider kvProvider) *kvBridge {
	c.bridgesLock.Lock()
	defer c.bridgesLock.Unlock()

	bridge := newKVBridge(bucket, provider, c.tracing, c.lock, c.config.DurabilityPollInterval)
	c.bridges[bucket] = bridge
	return bridge
}

// Close shuts down the agent group. Operations issued afterwards fail with
// ErrBridgeClosed. Operations already in flight are completed by gocbcore with a
// cancellation error.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return ErrBridgeClosed
	}

	if c.group == nil {
		return nil
	}

	err := c.group.Close()
	if err != nil && !errors.Is(err, gocbcore.ErrShutdown) {
		return err
	}
	return nil
}
