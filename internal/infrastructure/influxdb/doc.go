// Package influxdb records link telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. A connected *Client is
// a link.EventSink: every lifecycle event becomes a point in the link_events
// measurement (tags kind and client_id, fields count, detail and error). The
// CLI also writes link_publish points for each publish attempt.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	l.SetEventSink(client)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures arrive asynchronously through SetOnError. Connection and health
// check errors are returned directly.
package influxdb
