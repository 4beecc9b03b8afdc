package mitemp

import (
	"fmt"
	"strings"
)

// Parameter identifies a value that can be queried from the sensor.
//
// Parameter is a closed set: [Temperature], [Humidity] and [Battery].
// The zero value is not a valid parameter.
type Parameter int

const (
	// Temperature is the ambient temperature in degrees Celsius.
	Temperature Parameter = iota + 1

	// Humidity is the relative humidity in percent (0-100).
	Humidity

	// Battery is the battery level in percent (0-100).
	// Battery is refreshed together with the firmware version, at most
	// once every 24 hours.
	Battery
)

// Parameters lists every queryable parameter in display order.
var Parameters = []Parameter{Temperature, Humidity, Battery}

// String returns the lower-case name of the parameter.
func (p Parameter) String() string {
	switch p {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Battery:
		return "battery"
	default:
		return fmt.Sprintf("parameter(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined parameters.
func (p Parameter) Valid() bool {
	return p >= Temperature && p <= Battery
}

// ParseParameter converts a parameter name (case-insensitive) to a [Parameter].
func ParseParameter(s string) (Parameter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature", "temp", "t":
		return Temperature, nil
	case "humidity", "hum", "h":
		return Humidity, nil
	case "battery", "bat":
		return Battery, nil
	default:
		return 0, fmt.Errorf("unknown parameter %q (expected temperature, humidity or battery)", s)
	}
}
