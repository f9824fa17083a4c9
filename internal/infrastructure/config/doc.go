// Package config handles loading and validating mqttlink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with MQTTLINK_* environment variables
//   - Validation of required fields
//   - Default value handling
//   - Conversion into link.Options and link.TLSConfig
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - mqtt.tls.insecure disables certificate verification and is for lab use only
//
// Usage:
//
//	cfg, err := config.Load("configs/mqttlink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l := link.New(mqtt.NewFactory(mqtt.EngineConfig{}), cfg.LinkOptions())
package config
