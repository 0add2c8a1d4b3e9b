// Package fingerprint collects best-effort hardware identifiers that bind
// the device key to the physical board it was first derived on.
package fingerprint

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lensmint/device-identity/internal/platform/privacylog"
)

var ErrNoIdentifiers = errors.New("could not collect any hardware identifiers")

// Sources locates the platform files identifiers are read from.
type Sources struct {
	CPUInfoPath   string
	NetClassDir   string
	Interfaces    []string
	MachineIDPath string
}

func DefaultSources() Sources {
	return Sources{
		CPUInfoPath:   "/proc/cpuinfo",
		NetClassDir:   "/sys/class/net",
		Interfaces:    []string{"wlan0", "eth0"},
		MachineIDPath: "/etc/machine-id",
	}
}

type Collector struct {
	sources Sources
	logger  *slog.Logger
}

func NewCollector(sources Sources, logger *slog.Logger) *Collector {
	return &Collector{sources: sources, logger: privacylog.OrDiscard(logger)}
}

// Collect gathers identifiers in a fixed order: camera id, CPU serial,
// first present network MAC, machine id. Each source is optional; a source
// that fails is logged and skipped. An empty cameraID means none was given.
func (c *Collector) Collect(cameraID string) (Fingerprint, error) {
	var fp Fingerprint

	if cameraID = strings.TrimSpace(cameraID); cameraID != "" {
		fp = append(fp, Identifier{Source: SourceCamera, Value: cameraID})
		c.logger.Debug("fingerprint source found", "source", string(SourceCamera), "camera_id", cameraID)
	}

	if serial, err := c.cpuSerial(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("could not read CPU serial", "path", c.sources.CPUInfoPath, "error", err)
		}
	} else if serial != "" {
		fp = append(fp, Identifier{Source: SourceSerial, Value: serial})
		c.logger.Debug("fingerprint source found", "source", string(SourceSerial), "serial", serial)
	}

	if iface, mac := c.mac(); mac != "" {
		fp = append(fp, Identifier{Source: SourceMAC, Value: mac})
		c.logger.Debug("fingerprint source found", "source", string(SourceMAC), "interface", iface, "mac", mac)
	}

	if machineID, err := readTrimmed(c.sources.MachineIDPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("could not read machine id", "path", c.sources.MachineIDPath, "error", err)
		}
	} else if machineID != "" {
		fp = append(fp, Identifier{Source: SourceMachine, Value: machineID})
		c.logger.Debug("fingerprint source found", "source", string(SourceMachine), "machine_id", machineID)
	}

	if len(fp) == 0 {
		return nil, ErrNoIdentifiers
	}
	c.logger.Info("hardware fingerprint collected", "components", len(fp))
	return fp, nil
}

// cpuSerial returns the value of the first line mentioning "Serial".
func (c *Collector) cpuSerial() (string, error) {
	if c.sources.CPUInfoPath == "" {
		return "", nil
	}
	f, err := os.Open(c.sources.CPUInfoPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Serial") {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		return strings.TrimSpace(value), nil
	}
	return "", scanner.Err()
}

// mac walks the interface priority list and returns the first readable
// address.
func (c *Collector) mac() (iface, mac string) {
	if c.sources.NetClassDir == "" {
		return "", ""
	}
	for _, name := range c.sources.Interfaces {
		value, err := readTrimmed(filepath.Join(c.sources.NetClassDir, name, "address"))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.Debug("skipping network interface", "interface", name, "error", err)
			}
			continue
		}
		if value != "" {
			return name, value
		}
	}
	return "", ""
}

func readTrimmed(path string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
