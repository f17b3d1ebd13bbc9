package influxdb

import "errors"

// Sentinel errors for InfluxDB operations, checked with errors.Is.
var (
	// ErrNotConnected: operation attempted on a closed or failed client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed: the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed: a synchronous write failed. Batched writes report
	// their failures through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled: the integration is switched off in config.yaml.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
