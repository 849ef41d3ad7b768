package iothub

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies what an inbound topic carries.
type Kind int

const (
	// KindUnrecognized is any topic hublink does not handle.
	KindUnrecognized Kind = iota

	// KindNotification is a cloud-to-device message. No response is expected.
	KindNotification

	// KindCommand is a direct method request. A correlated response is required.
	KindCommand
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindCommand:
		return "command"
	default:
		return "unrecognized"
	}
}

// Classification is the result of inspecting an inbound topic.
//
// For KindNotification, PropertyBag holds the still-encoded property list.
// For KindCommand, Name and CorrelationID are set.
type Classification struct {
	Kind          Kind
	PropertyBag   string
	Name          string
	CorrelationID string
}

// Property is one decoded entry of a notification property bag.
type Property struct {
	Name  string
	Value string
}

const (
	notificationPrefix = "devices/"
	notificationMarker = "/messages/devicebound/"
)

// Classify inspects an inbound topic.
//
// Examples:
//
//	devices/dev1/messages/devicebound/%24.mid=1&k=v  -> notification, bag "%24.mid=1&k=v"
//	$iothub/methods/POST/reboot/?$rid=42            -> command "reboot", id "42"
//	$iothub/twin/res/200/?$rid=1                     -> unrecognized
func (c *Client) Classify(topic string) Classification {
	if strings.HasPrefix(topic, commandRequestPrefix) {
		rest := strings.TrimPrefix(topic, commandRequestPrefix)
		name, rid, ok := strings.Cut(rest, requestIDMarker)
		if !ok || name == "" || rid == "" || strings.Contains(name, "/") {
			return Classification{Kind: KindUnrecognized}
		}
		return Classification{Kind: KindCommand, Name: name, CorrelationID: rid}
	}

	if strings.HasPrefix(topic, notificationPrefix) {
		idx := strings.Index(topic, notificationMarker)
		if idx <= len(notificationPrefix) {
			return Classification{Kind: KindUnrecognized}
		}
		return Classification{
			Kind:        KindNotification,
			PropertyBag: topic[idx+len(notificationMarker):],
		}
	}

	return Classification{Kind: KindUnrecognized}
}

// ParseProperties decodes a URL-encoded property bag into an ordered list.
//
// Entries without "=" decode to an empty value. Empty entries are skipped.
//
// Returns:
//   - []Property: Decoded properties in topic order (nil for an empty bag)
//   - error: If an entry is not valid percent-encoding
func ParseProperties(bag string) ([]Property, error) {
	if bag == "" {
		return nil, nil
	}

	var props []Property
	for _, entry := range strings.Split(bag, "&") {
		if entry == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(entry, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, fmt.Errorf("decoding property name %q: %w", rawName, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decoding property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Value: value})
	}
	return props, nil
}
