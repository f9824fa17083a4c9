package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqttlink/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client records link telemetry in an InfluxDB v2 bucket.
//
// *Client satisfies link.EventSink. Points go to the library's batching
// write API, so RecordEvent and WritePublish never block the caller; write
// failures surface later through the SetOnError callback.
//
// All methods are safe for concurrent use. Writes after Close are dropped.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	// closeMu keeps writes from racing the write API shutdown in Close.
	closeMu sync.RWMutex
	closed  atomic.Bool
	failed  atomic.Uint64

	onErrorMu sync.RWMutex
	onError   func(err error)
}

// Connect pings the server and opens a batched write API for cfg.Org and
// cfg.Bucket. It returns ErrDisabled when cfg is not enabled and
// ErrConnectionFailed when the server cannot be reached.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// clientOptions maps the config section onto library options, filling in
// defaults for unset batch settings.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	flushMillis := time.Duration(flush) * time.Second / time.Millisecond

	//nolint:gosec // both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flushMillis))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("ping: server not ready")
	}
	return nil
}

// forwardErrors drains the write API error channel until the client closes.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.onErrorMu.RLock()
		fn := c.onError
		c.onErrorMu.RUnlock()

		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError installs the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.onErrorMu.Lock()
	defer c.onErrorMu.Unlock()
	c.onError = fn
}

// Failed returns how many batch writes the server rejected.
func (c *Client) Failed() uint64 {
	return c.failed.Load()
}

// IsConnected reports whether Close has not yet been called. Use
// HealthCheck to ask the server.
func (c *Client) IsConnected() bool {
	return c.client != nil && !c.closed.Load()
}

// HealthCheck pings the server. It returns ErrNotConnected after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. It is a no-op after Close.
func (c *Client) Flush() {
	if c.client == nil {
		return
	}
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if !c.closed.Load() {
		c.writeAPI.Flush()
	}
}

// writePoint queues p unless the client is closed.
func (c *Client) writePoint(p *write.Point) {
	if c.client == nil {
		return
	}
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed.Load() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// Close flushes buffered points and releases the client. Later calls are
// no-ops.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
