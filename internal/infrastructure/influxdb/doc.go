// Package influxdb records hublink session metrics in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - session_state: one point per supervisor state transition (tags from, to)
//   - connect_attempt: one point per connect attempt (fields attempt,
//     elapsed_ms, success, error)
//   - telemetry_sent: one point per telemetry message (fields seq, queued)
//
// Every point carries a device_id tag.
//
// # Usage
//
//	metrics, err := influxdb.Connect(ctx, cfg.Metrics, deviceID)
//	if err != nil {
//	    return err
//	}
//	defer metrics.Close()
//
//	supervisor.SetObserver(metrics)
//	scheduler.SetRecorder(metrics)
//
// # Error Handling
//
// Writes are non-blocking. Batch failures are delivered to the callback
// registered with SetOnError, wrapping ErrWriteFailed.
package influxdb
