package mitemp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// maxHumidity is the upper bound of a plausible relative humidity.
	// Payloads above it are treated as corrupt.
	maxHumidity = 100.0

	payloadKeyTemperature = "T"
	payloadKeyHumidity    = "H"
)

// Reading is a decoded temperature/humidity sample.
type Reading struct {
	// Temperature is in degrees Celsius.
	Temperature float64

	// Humidity is the relative humidity in percent.
	Humidity float64

	// At is the time the sample was received from the sensor.
	At time.Time
}

// ParseReading decodes the text payload pushed by the sensor.
//
// The sensor sends 12-15 bytes of readable text, for example:
//
//	54 3d 32 35 2e 36 20 48 3d 32 33 2e 36 00 -> "T=25.6 H=23.6"
//
// NUL padding and non-printable characters are discarded. The text is split
// on spaces and each token on "=". Key "T" maps to [Temperature] and key "H"
// to [Humidity]; other tokens are ignored. A missing key leaves the
// parameter absent from the result. A recognized key whose value is not a
// number yields a [*DecodeError].
func ParseReading(data string) (map[Parameter]float64, error) {
	data = sanitizePayload(data)

	res := make(map[Parameter]float64, 2)
	for _, item := range strings.Split(data, " ") {
		key, value, _ := strings.Cut(item, "=")

		var param Parameter
		switch key {
		case payloadKeyTemperature:
			param = Temperature
		case payloadKeyHumidity:
			param = Humidity
		default:
			continue
		}

		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, &DecodeError{
				Payload: data,
				Reason:  fmt.Sprintf("%s value %q is not a number", key, value),
			}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &DecodeError{
				Payload: data,
				Reason:  fmt.Sprintf("%s value %q is not a finite number", key, value),
			}
		}
		res[param] = f
	}
	return res, nil
}

// DecodePayload decodes and validates a raw notification payload.
//
// Both temperature and humidity must be present and humidity must lie in
// [0, 100]; otherwise a [*DecodeError] is returned.
func DecodePayload(raw []byte) (Reading, error) {
	return decodeText(strings.Trim(string(raw), " \n\t"))
}

// decodeText validates an already-trimmed payload string.
func decodeText(data string) (Reading, error) {
	values, err := ParseReading(data)
	if err != nil {
		return Reading{}, err
	}

	temp, okT := values[Temperature]
	hum, okH := values[Humidity]
	switch {
	case !okT:
		return Reading{}, &DecodeError{Payload: sanitizePayload(data), Reason: "temperature missing"}
	case !okH:
		return Reading{}, &DecodeError{Payload: sanitizePayload(data), Reason: "humidity missing"}
	case !(hum >= 0 && hum <= maxHumidity):
		return Reading{}, &DecodeError{
			Payload: sanitizePayload(data),
			Reason:  fmt.Sprintf("humidity %.1f out of range", hum),
		}
	}

	return Reading{Temperature: temp, Humidity: hum}, nil
}

// sanitizePayload strips NUL padding and drops non-printable characters.
// The sensor sometimes appends spurious binary data to the text.
func sanitizePayload(data string) string {
	data = strings.Trim(data, "\x00")
	return strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, data)
}

// formatBytes renders a byte slice as upper-case hex pairs for debug logs.
func formatBytes(raw []byte) string {
	if raw == nil {
		return "<nil>"
	}
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
