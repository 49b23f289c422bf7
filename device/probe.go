package device

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Probe asks the platform for hardware identity. It is best-effort:
// either call may fail or return empty depending on OS and permissions,
// and the resolver synthesizes fallbacks when it does.
type Probe interface {
	DeviceID(ctx context.Context) (string, error)
	DeviceName(ctx context.Context) (string, error)
}

var ErrProbeUnavailable = errors.New("device: platform identity unavailable")

// machineIDPaths are tried in order for a stable installation id.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
	"/sys/class/dmi/id/product_uuid",
}

// productNamePaths are tried in order for a human-readable model name.
var productNamePaths = []string{
	"/sys/devices/virtual/dmi/id/product_name",
	"/sys/class/dmi/id/product_name",
}

// HostProbe reads the host's machine identity from well-known platform
// files, falling back to the hostname for the display name.
type HostProbe struct{}

func NewHostProbe() *HostProbe {
	return &HostProbe{}
}

func (p *HostProbe) DeviceID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, path := range machineIDPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}
	return "", ErrProbeUnavailable
}

func (p *HostProbe) DeviceName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, path := range productNamePaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(string(raw)); name != "" && name != "System Product Name" {
			return name, nil
		}
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "", ErrProbeUnavailable
	}
	return hostname, nil
}
