package store

import "time"

// Reading is one poll of the sensor as served by the REST API and SSE.
//
// Temperature and Humidity are nil when the poll produced no valid reading.
type Reading struct {
	// Address is the sensor's MAC address.
	Address string `json:"address"`

	// Temperature is in degrees Celsius.
	Temperature *float64 `json:"temperature"`

	// Humidity is the relative humidity in percent.
	Humidity *float64 `json:"humidity"`

	// Battery is the battery level in percent.
	Battery int `json:"battery"`

	// Firmware is the sensor's firmware version.
	Firmware string `json:"firmware"`

	// ReadAt is when the sensor last pushed data. It lags CheckedAt when
	// the value came from cache.
	ReadAt *time.Time `json:"read_at"`

	// CheckedAt is when the poll completed.
	CheckedAt time.Time `json:"checked_at"`

	// LatencyMs is the poll duration in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// Error contains the error message if the poll failed.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to readings.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update records a reading and notifies all subscribers.
	Update(r Reading)

	// Latest returns the most recent reading, if any.
	Latest() (Reading, bool)

	// History returns recorded readings, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	History() []Reading

	// Subscribe returns a channel that receives readings.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Reading

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Reading)
}
