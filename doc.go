// Package mitemp reads Xiaomi Mi Temperature & Humidity sensors (MJ_HT_V1)
// over Bluetooth Low Energy.
//
// The sensor is slow to wake and drains its coin cell on every connection,
// so a [Poller] caches the last reading and only talks to the sensor again
// once the cache timeout has passed. Firmware version and battery level
// change rarely and are refreshed at most once every 24 hours. After a
// failed refresh the next attempt is pulled forward to five minutes later
// instead of waiting out the full cache timeout.
//
// # Quick Start
//
//	p, err := mitemp.New("4C:65:A8:D0:12:34")
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	temp, err := p.Parameter(ctx, mitemp.Temperature, true)
//
// # Configuration
//
// The poller uses the functional options pattern:
//
//	p, err := mitemp.New("4C:65:A8:D0:12:34",
//	    mitemp.WithBackend(mitemp.BackendTinyGo),
//	    mitemp.WithAdapter("hci1"),
//	    mitemp.WithCacheTimeout(5*time.Minute),
//	    mitemp.WithRetries(2),
//	)
//
// Two Bluetooth stacks are supported: [BackendGoBLE] drives the adapter
// over a raw HCI socket, [BackendTinyGo] goes through BlueZ over D-Bus.
// Any other transport can be plugged in with [WithConnector].
//
// # Monitoring
//
// A [Monitor] queries a poller on a fixed interval, keeps a short history,
// serves a live dashboard over HTTP with Server-Sent Events, and optionally
// publishes every reading to an MQTT broker:
//
//	m, err := mitemp.NewMonitor(p,
//	    mitemp.WithPollInterval(time.Minute),
//	    mitemp.WithMQTT(mitemp.MQTTOptions{
//	        Broker: "tcp://localhost:1883",
//	        Topic:  "home/livingroom/climate",
//	    }),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Architecture
//
// Internal packages (under internal/):
//
//   - internal/gatt: Bluetooth backends behind a handle-based session
//   - internal/scheduler: Periodic polling with panic recovery
//   - internal/store: In-memory history with pub/sub for live updates
//   - internal/server: HTTP server with JSON API and Server-Sent Events
//   - internal/mqtt: MQTT publisher with availability topic
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package mitemp
