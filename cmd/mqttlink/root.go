package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/mqttlink/internal/infrastructure/logging"
)

// configEnv names the environment variable holding the config file path.
const configEnv = "MQTTLINK_CONFIG"

// globalFlags are shared by every command that talks to a broker.
type globalFlags struct {
	configPath string

	host     string
	port     int
	username string
	password string
	cafile   string
	certfile string
	keyfile  string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&globalFlags{})
}

// buildRootCmd binds the persistent flags to g.
func buildRootCmd(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "mqttlink",
		Short: "Supervised MQTT connection with per-topic dispatch",
		Long: `mqttlink maintains one persistent broker connection, reconnects with
exponential backoff, re-establishes subscriptions after every reconnect and
routes inbound messages to the handler registered for each topic.

Configuration comes from a YAML file (--config or $MQTTLINK_CONFIG),
MQTTLINK_* environment variables and the connection flags below, in
increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", os.Getenv(configEnv), "path to YAML config file")
	pf.StringVar(&g.host, "host", "", "broker host")
	pf.IntVar(&g.port, "port", 0, "broker port")
	pf.StringVarP(&g.username, "username", "u", "", "broker username")
	pf.StringVarP(&g.password, "password", "P", "", "broker password")
	pf.StringVar(&g.cafile, "cafile", "", "CA certificate file (enables TLS)")
	pf.StringVar(&g.certfile, "certfile", "", "client certificate file")
	pf.StringVar(&g.keyfile, "keyfile", "", "client private key file")

	root.AddCommand(
		newRunCmd(g),
		newPublishCmd(g),
		newEventsCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file (or defaults when none is given) and
// applies the connection flags the user actually set.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if g.configPath != "" {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, err = config.LoadDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.MQTT.Broker.Host = g.host
	}
	if flags.Changed("port") {
		cfg.MQTT.Broker.Port = g.port
	}
	if flags.Changed("username") {
		cfg.MQTT.Auth.Username = g.username
	}
	if flags.Changed("password") {
		cfg.MQTT.Auth.Password = g.password
	}
	if flags.Changed("cafile") {
		cfg.MQTT.TLS.CAFile = g.cafile
	}
	if flags.Changed("certfile") {
		cfg.MQTT.TLS.CertFile = g.certfile
	}
	if flags.Changed("keyfile") {
		cfg.MQTT.TLS.KeyFile = g.keyfile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

// newLogger builds the configured logger, writing to the command's stderr
// when logging.output is stderr so tests can capture it.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	if cfg.Logging.Output == "stderr" {
		return logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
	}
	return logging.New(cfg.Logging, version)
}
