package config

import (
	"log/slog"

	"github.com/jpalmerr/mitemp"
)

// PollerOptions converts the sensor section into SDK poller options.
//
// A nil logger leaves the SDK default in place.
func PollerOptions(cfg *Config, logger *slog.Logger) []mitemp.Option {
	s := cfg.Sensor
	opts := []mitemp.Option{
		mitemp.WithBackend(mitemp.Backend(s.Backend)),
		mitemp.WithAdapter(s.Adapter),
		mitemp.WithCacheTimeout(s.CacheTimeout.Duration()),
		mitemp.WithBLETimeout(s.BLETimeout.Duration()),
	}
	if s.Retries != nil {
		opts = append(opts, mitemp.WithRetries(*s.Retries))
	}
	if logger != nil {
		opts = append(opts, mitemp.WithLogger(logger))
	}
	return opts
}

// MonitorOptions converts the top-level and mqtt sections into SDK monitor options.
func MonitorOptions(cfg *Config) []mitemp.MonitorOption {
	opts := []mitemp.MonitorOption{
		mitemp.WithPollInterval(cfg.PollInterval.Duration()),
	}

	if cfg.Port != nil {
		opts = append(opts, mitemp.WithPort(*cfg.Port))
	}
	if cfg.Title != "" {
		opts = append(opts, mitemp.WithTitle(cfg.Title))
	}
	if cfg.HistorySize > 0 {
		opts = append(opts, mitemp.WithHistorySize(cfg.HistorySize))
	}

	if m := cfg.MQTT; m.Enabled() {
		opts = append(opts, mitemp.WithMQTT(mitemp.MQTTOptions{
			Broker:   m.Broker,
			Topic:    m.Topic,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			QoS:      byte(m.QoS),
			Retained: m.Retained,
		}))
	}

	return opts
}

// Build creates the poller and monitor described by cfg. Extra poller
// options are applied after the configured ones.
//
// The caller owns both and must close the poller when done.
func Build(cfg *Config, logger *slog.Logger, extra ...mitemp.Option) (*mitemp.Poller, *mitemp.Monitor, error) {
	opts := append(PollerOptions(cfg, logger), extra...)
	p, err := mitemp.New(cfg.Sensor.Address, opts...)
	if err != nil {
		return nil, nil, err
	}

	m, err := mitemp.NewMonitor(p, MonitorOptions(cfg)...)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return p, m, nil
}
