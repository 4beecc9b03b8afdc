//go:build !linux

package gatt

import (
	"fmt"
	"runtime"
)

func newDriver(b Backend, _ Config) (driver, error) {
	return nil, fmt.Errorf("backend %q is not supported on %s", b, runtime.GOOS)
}
