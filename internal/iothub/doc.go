// Package iothub implements the Azure IoT Hub device conventions hublink
// relies on.
//
// This package manages:
//   - Parsing of the device connection string
//   - MQTT client identifier and user name derivation
//   - Topic names for telemetry, cloud-to-device messages and direct methods
//   - Classification of inbound topics
//   - SAS signature payloads and password assembly
//
// Nothing here performs I/O or cryptography. The keyed hash over the
// signature payload is computed by the credential package, which asks this
// package for the string to sign and for the final password layout.
//
// # Topics
//
//	devices/{device_id}/messages/events/            telemetry (publish)
//	devices/+/messages/devicebound/#                notifications (subscribe)
//	$iothub/methods/POST/#                          commands (subscribe)
//	$iothub/methods/res/{status}/?$rid={request_id} command responses (publish)
//
// # Usage
//
//	cs, err := iothub.ParseConnectionString(os.Getenv("AZ_IOT_CONNECTION_STRING"))
//	if err != nil {
//	    return err
//	}
//	hub := iothub.NewClient(cs.HostName, cs.DeviceID, iothub.Options{})
//	topic := hub.TelemetryTopic()
package iothub
