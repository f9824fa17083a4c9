package influxdb

import "errors"

// Errors returned by Connect and HealthCheck, or passed to the SetOnError
// callback. Compare with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the ping error from Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps a batch the server rejected.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
