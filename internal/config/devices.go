package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
)

const (
	defaultDeviceTimeoutSec = 5
	defaultDeviceModel      = "MRX"
)

var deviceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ErrNoDevices is returned when the devices file defines no receivers.
var ErrNoDevices = errors.New("no receivers configured")

// ZoneConfig is one receiver zone.
type ZoneConfig struct {
	Number  int    `yaml:"number"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled treats an omitted enabled flag as true.
func (z ZoneConfig) IsEnabled() bool {
	return z.Enabled == nil || *z.Enabled
}

// DeviceConfig describes one receiver.
type DeviceConfig struct {
	ID               string       `yaml:"id"`
	Name             string       `yaml:"name"`
	Host             string       `yaml:"host"`
	Port             int          `yaml:"port"`
	Model            string       `yaml:"model"`
	TimeoutSec       int          `yaml:"timeout_sec"`
	Terminator       string       `yaml:"terminator"`
	MuteToggle       bool         `yaml:"mute_toggle"`
	DiscoveredInputs []string     `yaml:"discovered_inputs"`
	Zones            []ZoneConfig `yaml:"zones"`
}

// Timeout returns the connect timeout.
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// TerminatorByte returns the wire terminator: ";" by default, CR for "\r"
// or "cr".
func (d DeviceConfig) TerminatorByte() byte {
	if d.Terminator == "\r" || d.Terminator == "cr" || d.Terminator == "CR" {
		return protocol.TerminatorCR
	}
	return protocol.TerminatorSemicolon
}

// EnabledZones returns the numbers of enabled zones in configured order.
func (d DeviceConfig) EnabledZones() []int {
	zones := make([]int, 0, len(d.Zones))
	for _, zone := range d.Zones {
		if zone.IsEnabled() {
			zones = append(zones, zone.Number)
		}
	}
	return zones
}

// Zone looks up a configured zone by number.
func (d DeviceConfig) Zone(number int) (ZoneConfig, bool) {
	for _, zone := range d.Zones {
		if zone.Number == number {
			return zone, true
		}
	}
	return ZoneConfig{}, false
}

type devicesFile struct {
	Receivers []DeviceConfig `yaml:"receivers"`
}

// LoadDevices reads and validates the receivers file.
func LoadDevices(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices config: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices decodes YAML, applies defaults and validates.
func ParseDevices(data []byte) ([]DeviceConfig, error) {
	var file devicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse devices config: %w", err)
	}
	if len(file.Receivers) == 0 {
		return nil, ErrNoDevices
	}

	seen := make(map[string]bool, len(file.Receivers))
	devices := make([]DeviceConfig, 0, len(file.Receivers))
	for i, device := range file.Receivers {
		device = applyDeviceDefaults(device)
		if err := validateDevice(device); err != nil {
			return nil, fmt.Errorf("receiver %d: %w", i+1, err)
		}
		if seen[device.ID] {
			return nil, fmt.Errorf("receiver %d: duplicate id %q", i+1, device.ID)
		}
		seen[device.ID] = true
		devices = append(devices, device)
	}
	return devices, nil
}

func applyDeviceDefaults(device DeviceConfig) DeviceConfig {
	if device.Port == 0 {
		device.Port = protocol.DefaultPort
	}
	if device.TimeoutSec == 0 {
		device.TimeoutSec = defaultDeviceTimeoutSec
	}
	if device.Model == "" {
		device.Model = defaultDeviceModel
	}
	if device.Name == "" {
		device.Name = device.ID
	}
	if len(device.Zones) == 0 {
		device.Zones = []ZoneConfig{{Number: 1}}
	}
	zones := make([]ZoneConfig, len(device.Zones))
	for i, zone := range device.Zones {
		if zone.Name == "" {
			zone.Name = fmt.Sprintf("Zone %d", zone.Number)
		}
		zones[i] = zone
	}
	device.Zones = zones
	return device
}

func validateDevice(device DeviceConfig) error {
	if !deviceIDPattern.MatchString(device.ID) {
		return fmt.Errorf("invalid id %q: use lowercase letters, digits, '-' or '_'", device.ID)
	}
	if device.Host == "" {
		return fmt.Errorf("%s: host is required", device.ID)
	}
	if device.Port < 1 || device.Port > 65535 {
		return fmt.Errorf("%s: invalid port %d", device.ID, device.Port)
	}
	if device.TimeoutSec < 0 {
		return fmt.Errorf("%s: invalid timeout_sec %d", device.ID, device.TimeoutSec)
	}
	switch device.Terminator {
	case "", ";", "\r", "cr", "CR":
	default:
		return fmt.Errorf("%s: unsupported terminator %q", device.ID, device.Terminator)
	}
	numbers := make(map[int]bool, len(device.Zones))
	for _, zone := range device.Zones {
		if zone.Number < 1 {
			return fmt.Errorf("%s: invalid zone number %d", device.ID, zone.Number)
		}
		if numbers[zone.Number] {
			return fmt.Errorf("%s: duplicate zone %d", device.ID, zone.Number)
		}
		numbers[zone.Number] = true
	}
	if len(device.EnabledZones()) == 0 {
		return fmt.Errorf("%s: at least one zone must be enabled", device.ID)
	}
	return nil
}
