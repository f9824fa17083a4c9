package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttlink/internal/link"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is the maximum time to wait for a publish,
	// subscribe or unsubscribe acknowledgment.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultQueueSize bounds inbound messages waiting for the next Step.
	defaultQueueSize = 10000

	// subackFailure is the SUBACK return code for a refused subscription.
	subackFailure = 0x80

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// EngineConfig tunes engines built by NewFactory. Zero values select the defaults.
type EngineConfig struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	// QueueSize bounds messages buffered between Steps. Messages arriving
	// while the queue is full are dropped and counted.
	QueueSize int

	// Logger receives warnings about dropped messages. Optional.
	Logger Logger
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// buildClientOptions creates paho options for one engine.
//
// This configures:
//   - Client ID and session mode
//   - No paho-side reconnect: the link control loop owns reconnection
//   - Connection timeout
//   - Ordered delivery into the engine's queue
//
// The broker URL, keepalive, credentials, will and TLS are added later by
// the Engine setters and Connect.
func buildClientOptions(clientID string, cleanSession bool, cfg EngineConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.SetClientID(clientID)
	opts.SetCleanSession(cleanSession)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.OperationTimeout)

	opts.SetOrderMatters(true)

	return opts
}

// newTLSConfig loads the certificate material named in cfg.
//
// CAFile and every *.pem/*.crt file in CAPath are added to the root pool.
// With neither set, the system pool is used.
func newTLSConfig(cfg link.TLSConfig) (*tls.Config, error) {
	version, err := parseTLSVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         version,
		InsecureSkipVerify: cfg.Insecure, //nolint:gosec // opt-in for self-signed lab brokers
	}

	if cfg.CAFile != "" || cfg.CAPath != "" {
		pool := x509.NewCertPool()
		if cfg.CAFile != "" {
			if err := appendCAFile(pool, cfg.CAFile); err != nil {
				return nil, err
			}
		}
		if cfg.CAPath != "" {
			if err := appendCADir(pool, cfg.CAPath); err != nil {
				return nil, err
			}
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrInvalidTLS, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func appendCAFile(pool *x509.CertPool, path string) error {
	pem, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return fmt.Errorf("%w: reading ca file: %w", ErrInvalidTLS, err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("%w: no certificates found in %s", ErrInvalidTLS, path)
	}
	return nil
}

func appendCADir(pool *x509.CertPool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: reading ca path: %w", ErrInvalidTLS, err)
	}

	loaded := 0
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".pem" && ext != ".crt") {
			continue
		}
		if err := appendCAFile(pool, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("%w: no certificates found in %s", ErrInvalidTLS, dir)
	}
	return nil
}

// parseTLSVersion maps mosquitto-style version names to crypto/tls constants.
// An empty name selects tlsMinVersion.
func parseTLSVersion(name string) (uint16, error) {
	switch strings.ToLower(name) {
	case "":
		return tlsMinVersion, nil
	case "tlsv1.2":
		return tls.VersionTLS12, nil
	case "tlsv1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: unsupported tls version %q", ErrInvalidTLS, name)
	}
}
