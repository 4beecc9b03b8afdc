package mitemp

import (
	"context"

	"github.com/jpalmerr/mitemp/internal/gatt"
)

// GATT attribute handles exposed by the sensor.
const (
	// HandleName holds the device name.
	HandleName uint16 = 0x0003

	// HandleSensorData is the sensor data characteristic. Subscribing to it
	// makes the sensor push "T=xx.x H=yy.y" text notifications.
	HandleSensorData uint16 = 0x0010

	// HandleBattery holds the battery level as a single unsigned byte.
	HandleBattery uint16 = 0x0018

	// HandleFirmwareVersion holds the firmware version as UTF-8 text.
	HandleFirmwareVersion uint16 = 0x0024
)

// Conn is an open BLE session with the sensor.
//
// A Conn is scoped: the caller must call Close on every exit path, which
// disconnects from the sensor and closes all subscription channels.
type Conn interface {
	// ReadHandle reads the attribute at handle. An empty result means the
	// attribute had no value.
	ReadHandle(handle uint16) ([]byte, error)

	// Subscribe enables notifications on handle. Each notification payload
	// is delivered on the returned channel, which is closed by Close.
	Subscribe(handle uint16) (<-chan []byte, error)

	// Close disconnects the session.
	Close() error
}

// Connector opens sessions to a sensor.
//
// Implementations must be safe for concurrent use. The default connector
// (selected with [WithBackend]) talks to a local Bluetooth adapter; tests
// and simulations can supply their own via [WithConnector].
type Connector interface {
	Connect(ctx context.Context, addr string) (Conn, error)
}

// Backend selects the Bluetooth stack used by the default [Connector].
type Backend string

const (
	// BackendGoBLE drives the adapter over a raw HCI socket and addresses
	// attributes by handle. Requires CAP_NET_ADMIN on Linux.
	BackendGoBLE Backend = Backend(gatt.BackendGoBLE)

	// BackendTinyGo uses BlueZ over D-Bus and resolves the sensor's fixed
	// handles to their characteristic UUIDs.
	BackendTinyGo Backend = Backend(gatt.BackendTinyGo)
)

// String returns the backend name.
func (b Backend) String() string {
	return string(b)
}

// gattConnector adapts [gatt.Connector] to the [Connector] interface.
type gattConnector struct {
	c *gatt.Connector
}

func (g gattConnector) Connect(ctx context.Context, addr string) (Conn, error) {
	s, err := g.c.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (g gattConnector) Close() error {
	return g.c.Close()
}
