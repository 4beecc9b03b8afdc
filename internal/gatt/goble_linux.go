//go:build linux

package gatt

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// valueHandles maps a notification-enabling handle (the CCCD written to
// subscribe) to the value handle notifications arrive on. Handles not
// listed follow the usual layout with the CCCD right after the value.
var valueHandles = map[uint16]uint16{
	0x0010: 0x000e, // sensor data
}

type gobleDriver struct {
	dev *linux.Device
}

func newGoBLEDriver(cfg Config) (driver, error) {
	id, err := adapterIndex(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	dev, err := linux.NewDevice(
		ble.OptDeviceID(id),
		ble.OptDialerTimeout(cfg.DialTimeout),
	)
	if err != nil {
		return nil, err
	}
	return &gobleDriver{dev: dev}, nil
}

func (d *gobleDriver) dial(ctx context.Context, addr string) (link, error) {
	client, err := d.dev.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}
	return &gobleLink{client: client}, nil
}

func (d *gobleDriver) stop() error {
	return d.dev.Stop()
}

type gobleLink struct {
	client ble.Client
}

func (l *gobleLink) read(handle uint16) ([]byte, error) {
	return l.client.ReadCharacteristic(&ble.Characteristic{ValueHandle: handle})
}

func (l *gobleLink) subscribe(handle uint16, fn func([]byte)) error {
	value, ok := valueHandles[handle]
	if !ok {
		value = handle - 1
	}
	c := &ble.Characteristic{
		ValueHandle: value,
		CCCD:        &ble.Descriptor{Handle: handle},
	}
	return l.client.Subscribe(c, false, fn)
}

func (l *gobleLink) close() error {
	return l.client.CancelConnection()
}
