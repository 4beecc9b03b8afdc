package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/mitemp"
	"github.com/jpalmerr/mitemp/internal/simulator"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Query a sensor once and print its values",
	Long: `Connect to a sensor and print its name, firmware version, battery level
and current temperature and humidity.

Example:
  mitemp read --address 4C:65:A8:D0:12:34
  mitemp read --address 4C:65:A8:D0:12:34 --backend tinygo --param temperature
  mitemp read --address 4C:65:A8:D0:12:34 --simulate`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)

	f := readCmd.Flags()
	f.StringP("address", "a", "", "sensor MAC address (required)")
	f.String("backend", string(mitemp.BackendGoBLE), "bluetooth backend: go-ble or tinygo")
	f.String("adapter", "hci0", "bluetooth adapter")
	f.StringSlice("param", nil, "parameters to print: temperature, humidity, battery (default all)")
	f.Duration("timeout", 10*time.Second, "how long to wait for a notification")
	f.Bool("simulate", false, "use a simulated sensor instead of bluetooth")
	_ = readCmd.MarkFlagRequired("address")
}

func runRead(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	debug, _ := f.GetBool("debug")
	address, _ := f.GetString("address")
	backend, _ := f.GetString("backend")
	adapter, _ := f.GetString("adapter")
	names, _ := f.GetStringSlice("param")
	timeout, _ := f.GetDuration("timeout")
	simulate, _ := f.GetBool("simulate")

	params, err := parseParams(names)
	if err != nil {
		return err
	}

	logger := newLogger(debug)
	opts := []mitemp.Option{
		mitemp.WithBackend(mitemp.Backend(backend)),
		mitemp.WithAdapter(adapter),
		mitemp.WithBLETimeout(timeout),
		mitemp.WithLogger(logger),
	}
	if simulate {
		opts = append(opts, mitemp.WithConnector(simulator.New(simulator.Config{Logger: logger})))
	}

	p, err := mitemp.New(address, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	return printReading(cmd, p, params, logger)
}

// parseParams resolves parameter names; empty means all of them.
func parseParams(names []string) ([]mitemp.Parameter, error) {
	if len(names) == 0 {
		return mitemp.Parameters, nil
	}
	params := make([]mitemp.Parameter, 0, len(names))
	for _, n := range names {
		p, err := mitemp.ParseParameter(n)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func printReading(cmd *cobra.Command, p *mitemp.Poller, params []mitemp.Parameter, logger *slog.Logger) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Address:     %s\n", p.Address())

	// name is informational; some clones leave it empty
	if name, err := p.Name(ctx); err != nil {
		logger.Warn("could not read device name", "error", err)
	} else if name != "" {
		fmt.Fprintf(out, "Name:        %s\n", name)
	}

	fw, err := p.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Firmware:    %s\n", fw)

	for _, param := range params {
		v, err := p.Parameter(ctx, param, true)
		if err != nil {
			return fmt.Errorf("%s: %w", param, err)
		}
		label := strings.ToUpper(param.String()[:1]) + param.String()[1:] + ":"
		fmt.Fprintf(out, "%-12s %s\n", label, formatValue(param, v))
	}
	return nil
}

func formatValue(param mitemp.Parameter, v float64) string {
	switch param {
	case mitemp.Temperature:
		return fmt.Sprintf("%.1f °C", v)
	case mitemp.Humidity:
		return fmt.Sprintf("%.1f %%", v)
	case mitemp.Battery:
		return fmt.Sprintf("%d %%", int(v))
	default:
		return fmt.Sprint(v)
	}
}
