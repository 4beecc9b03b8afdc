// Package gatt provides the Bluetooth Low Energy transport for mitemp.
//
// This package is internal to mitemp and hides the Bluetooth stack behind a
// small session API: read an attribute by handle, subscribe to notifications
// delivered over a channel, and disconnect. Two interchangeable backends are
// available:
//
//   - [BackendGoBLE]: raw HCI socket via github.com/go-ble/ble, addressing
//     attributes directly by handle
//   - [BackendTinyGo]: BlueZ over D-Bus via tinygo.org/x/bluetooth, mapping
//     the sensor's fixed handles to characteristic UUIDs
//
// Both backends are Linux-only; on other platforms [Connector.Connect]
// returns an error.
//
// The main components are:
//
//   - [Connector]: opens sessions, owns the local adapter
//   - [Session]: one scoped connection to the sensor
//
// Users of the mitemp library should not need to interact with this
// package directly. The backend is selected through mitemp.WithBackend.
package gatt
