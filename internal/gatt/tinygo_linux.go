//go:build linux

package gatt

import (
	"context"
	"errors"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// maxAttributeSize is the largest attribute value the sensor returns.
const maxAttributeSize = 512

// characteristicUUIDs resolves the sensor's fixed handles to the
// characteristics BlueZ exposes them as.
var characteristicUUIDs = map[uint16]bluetooth.UUID{
	0x0003: bluetooth.New16BitUUID(0x2a00), // device name
	0x0010: mustParseUUID("226caa55-6476-4566-7562-66734470666d"), // sensor data
	0x0018: bluetooth.New16BitUUID(0x2a19), // battery level
	0x0024: bluetooth.New16BitUUID(0x2a26), // firmware revision
}

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

type tinygoDriver struct {
	adapter *bluetooth.Adapter
}

func newTinyGoDriver(cfg Config) (driver, error) {
	adapter := bluetooth.NewAdapter(cfg.Adapter)
	if err := adapter.Enable(); err != nil {
		return nil, err
	}
	return &tinygoDriver{adapter: adapter}, nil
}

// dial scans until the device is seen, then connects and discovers its
// characteristics. BlueZ only connects to devices it has discovered.
func (d *tinygoDriver) dial(ctx context.Context, addr string) (link, error) {
	mac, err := bluetooth.ParseMAC(addr)
	if err != nil {
		return nil, err
	}

	address, err := d.discover(ctx, mac)
	if err != nil {
		return nil, err
	}

	dev, err := d.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}

	services, err := dev.DiscoverServices(nil)
	if err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("discover services: %w", err)
	}

	chars := make(map[bluetooth.UUID]bluetooth.DeviceCharacteristic)
	for _, svc := range services {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			_ = dev.Disconnect()
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, c := range found {
			chars[c.UUID()] = c
		}
	}

	return &tinygoLink{chars: chars, disconnect: dev.Disconnect}, nil
}

// discover scans until a device with the given MAC advertises.
func (d *tinygoDriver) discover(ctx context.Context, mac bluetooth.MAC) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	errc := make(chan error, 1)

	go func() {
		errc <- d.adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
			if res.Address.MAC != mac {
				return
			}
			select {
			case found <- res.Address:
			default:
			}
			_ = a.StopScan()
		})
	}()

	select {
	case addr := <-found:
		<-errc
		return addr, nil
	case err := <-errc:
		select {
		case addr := <-found:
			return addr, nil
		default:
		}
		if err == nil {
			err = errors.New("scan stopped before device was found")
		}
		return bluetooth.Address{}, err
	case <-ctx.Done():
		_ = d.adapter.StopScan()
		<-errc
		return bluetooth.Address{}, fmt.Errorf("device %s not found: %w", mac.String(), ctx.Err())
	}
}

func (d *tinygoDriver) stop() error {
	// the BlueZ adapter is shared system-wide and stays powered
	return nil
}

type tinygoLink struct {
	chars      map[bluetooth.UUID]bluetooth.DeviceCharacteristic
	disconnect func() error
}

func (l *tinygoLink) characteristic(handle uint16) (bluetooth.DeviceCharacteristic, error) {
	u, ok := characteristicUUIDs[handle]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("no characteristic known for handle 0x%04x", handle)
	}
	c, ok := l.chars[u]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("characteristic %s not offered by device", u.String())
	}
	return c, nil
}

func (l *tinygoLink) read(handle uint16) ([]byte, error) {
	c, err := l.characteristic(handle)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, maxAttributeSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (l *tinygoLink) subscribe(handle uint16, fn func([]byte)) error {
	c, err := l.characteristic(handle)
	if err != nil {
		return err
	}
	return c.EnableNotifications(fn)
}

func (l *tinygoLink) close() error {
	return l.disconnect()
}
