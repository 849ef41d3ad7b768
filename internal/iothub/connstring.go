package iothub

import (
	"fmt"
	"strings"
)

// Connection string field names. Matching is case-insensitive.
const (
	fieldHostName        = "hostname"
	fieldDeviceID        = "deviceid"
	fieldModuleID        = "moduleid"
	fieldSharedAccessKey = "sharedaccesskey"
)

// ConnectionString holds the fields of a device connection string.
type ConnectionString struct {
	HostName        string
	DeviceID        string
	ModuleID        string
	SharedAccessKey string
}

// ParseConnectionString parses a device connection string of the form
//
//	HostName=<host>;DeviceId=<device>;SharedAccessKey=<base64 key>
//
// Fields are separated by ";" and keys are matched case-insensitively.
// The value is everything after the first "=", so base64 padding in the
// key is preserved. Unknown fields are ignored.
//
// Returns:
//   - ConnectionString: Parsed fields
//   - error: ErrInvalidConnectionString if a required field is missing or empty
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	if strings.TrimSpace(s) == "" {
		return cs, fmt.Errorf("%w: empty", ErrInvalidConnectionString)
	}

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return cs, fmt.Errorf("%w: field %q has no value", ErrInvalidConnectionString, part)
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case fieldHostName:
			cs.HostName = value
		case fieldDeviceID:
			cs.DeviceID = value
		case fieldModuleID:
			cs.ModuleID = value
		case fieldSharedAccessKey:
			cs.SharedAccessKey = value
		}
	}

	var missing []string
	if cs.HostName == "" {
		missing = append(missing, "HostName")
	}
	if cs.DeviceID == "" {
		missing = append(missing, "DeviceId")
	}
	if cs.SharedAccessKey == "" {
		missing = append(missing, "SharedAccessKey")
	}
	if len(missing) > 0 {
		return ConnectionString{}, fmt.Errorf("%w: missing %s", ErrInvalidConnectionString, strings.Join(missing, ", "))
	}

	return cs, nil
}

// String returns the connection string with the shared access key redacted.
func (cs ConnectionString) String() string {
	s := "HostName=" + cs.HostName + ";DeviceId=" + cs.DeviceID
	if cs.ModuleID != "" {
		s += ";ModuleId=" + cs.ModuleID
	}
	return s + ";SharedAccessKey=<redacted>"
}
