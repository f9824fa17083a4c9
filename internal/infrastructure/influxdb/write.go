package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqttlink/internal/link"
)

// Measurement names.
const (
	// MeasurementLinkEvents holds one point per link lifecycle event.
	MeasurementLinkEvents = "link_events"

	// MeasurementLinkPublish holds publish outcomes reported by the CLI.
	MeasurementLinkPublish = "link_publish"
)

// NewEventPoint converts a link event into a point.
//
// kind and client_id are tags; detail and error are string fields. A
// constant count=1 field is always present so that events without detail
// still produce a valid point and can be summed per kind.
func NewEventPoint(ev link.Event) *write.Point {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"kind": string(ev.Kind),
	}
	if ev.ClientID != "" {
		tags["client_id"] = ev.ClientID
	}

	fields := map[string]interface{}{
		"count": int64(1),
	}
	if ev.Detail != "" {
		fields["detail"] = ev.Detail
	}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}

	return write.NewPoint(MeasurementLinkEvents, tags, fields, ts)
}

// RecordEvent writes ev as a link_events point. It never blocks and is a
// no-op once the client is closed.
func (c *Client) RecordEvent(ev link.Event) {
	c.writePoint(NewEventPoint(ev))
}

// WritePublish records the outcome of a single publish.
//
// Example:
//
//	client.WritePublish("sensor/temperature", 5, err == nil)
func (c *Client) WritePublish(topic string, payloadSize int, ok bool) {
	c.WritePoint(MeasurementLinkPublish,
		map[string]string{"topic": topic},
		map[string]interface{}{
			"bytes": int64(payloadSize),
			"ok":    ok,
		})
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.writePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
