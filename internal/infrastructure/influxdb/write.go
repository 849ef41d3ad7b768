package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSessionState   = "session_state"
	MeasurementConnectAttempt = "connect_attempt"
	MeasurementTelemetrySent  = "telemetry_sent"
)

// RecordStateChange writes a session_state point.
// It satisfies session.Observer together with RecordConnectAttempt.
func (c *Client) RecordStateChange(from, to string) {
	c.writePoint(MeasurementSessionState,
		map[string]string{"from": from, "to": to},
		map[string]interface{}{"value": 1},
	)
}

// RecordConnectAttempt writes a connect_attempt point.
//
// Parameters:
//   - attempt: 1-based attempt number within the current outage
//   - elapsed: Time the attempt took
//   - err: nil for a successful attempt
func (c *Client) RecordConnectAttempt(attempt uint32, elapsed time.Duration, err error) {
	fields := map[string]interface{}{
		"attempt":    int64(attempt),
		"elapsed_ms": elapsed.Milliseconds(),
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.writePoint(MeasurementConnectAttempt, nil, fields)
}

// RecordTelemetry writes a telemetry_sent point.
func (c *Client) RecordTelemetry(seq uint64, queued bool) {
	c.writePoint(MeasurementTelemetrySent,
		nil,
		map[string]interface{}{
			"seq":    int64(seq), //nolint:gosec // sequence numbers stay far below 2^63
			"queued": queued,
		},
	)
}

// writePoint adds the device tag and hands the point to the write API.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	all := map[string]string{"device_id": c.deviceID}
	for k, v := range tags {
		all[k] = v
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, c.now()))
}
