//go:build linux

package gatt

import (
	"fmt"
	"strconv"
	"strings"
)

// newDriver opens the local adapter for the given backend.
func newDriver(b Backend, cfg Config) (driver, error) {
	switch b {
	case BackendGoBLE:
		return newGoBLEDriver(cfg)
	case BackendTinyGo:
		return newTinyGoDriver(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", b)
	}
}

// adapterIndex extracts N from an adapter name of the form "hciN".
func adapterIndex(adapter string) (int, error) {
	n, ok := strings.CutPrefix(adapter, "hci")
	if !ok {
		return 0, fmt.Errorf("adapter %q: expected a name like hci0", adapter)
	}
	id, err := strconv.Atoi(n)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("adapter %q: expected a name like hci0", adapter)
	}
	return id, nil
}
