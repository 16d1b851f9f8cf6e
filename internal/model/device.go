package model

import "time"

// DeviceState is the last confirmed state of the relay.
type DeviceState int

const (
	DeviceUnknown DeviceState = iota
	DeviceOn
	DeviceOff
)

// DeviceStateFromBool maps a relay reading to a DeviceState.
func DeviceStateFromBool(on bool) DeviceState {
	if on {
		return DeviceOn
	}
	return DeviceOff
}

// IsOn reports whether the state is known to be On. Unknown reads as false.
func (s DeviceState) IsOn() bool {
	return s == DeviceOn
}

func (s DeviceState) String() string {
	switch s {
	case DeviceOn:
		return "on"
	case DeviceOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseDeviceState is the inverse of String; anything unrecognised is DeviceUnknown.
func ParseDeviceState(s string) DeviceState {
	switch s {
	case "on":
		return DeviceOn
	case "off":
		return DeviceOff
	default:
		return DeviceUnknown
	}
}

// CountSample is one person count fed into the presence window.
// Count is -1 when no fresh reading was available for the tick.
type CountSample struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// MarshalText renders the state as "on", "off" or "unknown".
func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
