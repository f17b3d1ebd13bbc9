package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePhaseTiming writes a completed phase measurement to InfluxDB.
//
// One point is recorded per phase per transition, tagged by event and
// phase name. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - event: Transition event name (e.g., "suspend", "hibernate")
//   - phase: Phase name (e.g., "suspend_noirq", "resume_early")
//   - duration: Wall-clock time the phase took across all devices
//   - deviceCount: Number of devices processed in the phase
//   - failed: Whether the phase recorded an error
//
// Example:
//
//	client.WritePhaseTiming("suspend", "suspend_late", 42*time.Millisecond, 18, false)
func (c *Client) WritePhaseTiming(event, phase string, duration time.Duration, deviceCount int, failed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pm_phase",
		map[string]string{
			"event": event,
			"phase": phase,
		},
		map[string]interface{}{
			"duration_ms":  float64(duration.Microseconds()) / 1000.0,
			"device_count": deviceCount,
			"failed":       failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceTiming writes a per-device callback measurement.
//
// Used for spotting slow devices during suspend and resume. Tag
// cardinality is bounded by the registered device set.
//
// Parameters:
//   - device: Device name
//   - event: Transition event name
//   - phase: Phase the callback ran in
//   - duration: Callback execution time
//   - async: Whether the callback ran on the async path
//   - failed: Whether the callback returned an error
func (c *Client) WriteDeviceTiming(device, event, phase string, duration time.Duration, async, failed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pm_device",
		map[string]string{
			"device": device,
			"event":  event,
			"phase":  phase,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
			"async":       async,
			"failed":      failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTransitionResult writes a whole-transition summary point.
//
// Parameters:
//   - event: Transition event name
//   - duration: Total transition time, entry plus exit
//   - deviceCount: Number of registered devices at the time
//   - failed: Whether the transition was aborted or recorded an error
func (c *Client) WriteTransitionResult(event string, duration time.Duration, deviceCount int, failed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pm_transition",
		map[string]string{
			"event": event,
		},
		map[string]interface{}{
			"duration_ms":  float64(duration.Microseconds()) / 1000.0,
			"device_count": deviceCount,
			"failed":       failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "power-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
