package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// rootCmd is shared; undo flag state left by earlier runs
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		c.Flags().VisitAll(resetFlag)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlag(f *pflag.Flag) {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		_ = sv.Replace(nil)
	} else {
		_ = f.Value.Set(f.DefValue)
	}
	f.Changed = false
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mitemp.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
poll_interval: 30s
port: 0
sensor:
  address: 4C:65:A8:D0:12:34
  backend: tinygo
mqtt:
  broker: tcp://localhost:1883
  topic: home/hall
`)

	output, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{
		"Config is valid!",
		"Sensor:        4C:65:A8:D0:12:34 (tinygo on hci0)",
		"Cache timeout: 10m0s",
		"Poll interval: 30s",
		"Port:          disabled",
		"MQTT:          tcp://localhost:1883 -> home/hall",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "sensor:\n  backend: go-ble\n")

	_, err := execute(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "sensor.address is required") {
		t.Errorf("error should mention 'sensor.address is required', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestRunRead_Simulated(t *testing.T) {
	output, err := execute(t, "read", "--address", "4c:65:a8:d0:12:34", "--simulate")
	if err != nil {
		t.Fatalf("read command error = %v", err)
	}

	for _, phrase := range []string{
		"Address:     4C:65:A8:D0:12:34",
		"Name:        MJ_HT_V1",
		"Firmware:    1.0.0_0106",
		"Temperature:",
		"Humidity:",
		"Battery:     100 %",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunRead_SelectedParam(t *testing.T) {
	output, err := execute(t, "read", "-a", "4C:65:A8:D0:12:34", "--simulate", "--param", "humidity")
	if err != nil {
		t.Fatalf("read command error = %v", err)
	}
	if !strings.Contains(output, "Humidity:") {
		t.Errorf("output missing humidity\nGot: %s", output)
	}
	if strings.Contains(output, "Temperature:") {
		t.Errorf("output should only contain humidity\nGot: %s", output)
	}
}

func TestRunRead_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing address", []string{"read"}, "address"},
		{"bad address", []string{"read", "-a", "kitchen", "--simulate"}, "invalid sensor address"},
		{"bad param", []string{"read", "-a", "4C:65:A8:D0:12:34", "--param", "pressure"}, "pressure"},
		{"bad backend", []string{"read", "-a", "4C:65:A8:D0:12:34", "--backend", "bluez"}, "unknown backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("read command expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "mitemp dev") {
		t.Errorf("output = %q, want prefix 'mitemp dev'", output)
	}
}

func TestParseParams(t *testing.T) {
	all, err := parseParams(nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("parseParams(nil) = %v, %v", all, err)
	}

	got, err := parseParams([]string{"bat", "temp"})
	if err != nil {
		t.Fatalf("parseParams() error = %v", err)
	}
	if len(got) != 2 || got[0].String() != "battery" || got[1].String() != "temperature" {
		t.Errorf("parseParams() = %v", got)
	}
}
