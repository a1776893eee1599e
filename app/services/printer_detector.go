package services

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"PosPrint/app/models"
)

// DetectedPrinter is a printer candidate found on this machine
type DetectedPrinter struct {
	Name      string               `json:"name"`
	Transport models.TransportType `json:"transport"`
	Address   string               `json:"address"`
	IsDefault bool                 `json:"is_default"`
	Status    string               `json:"status"` // "online", "offline", "unknown"
}

// devicePatterns maps device file globs to the transport that reaches them
func devicePatterns() map[string]models.TransportType {
	if runtime.GOOS == "darwin" {
		return map[string]models.TransportType{
			"/dev/cu.usb*":       models.TransportUSB,
			"/dev/cu.Bluetooth*": models.TransportBluetooth,
		}
	}
	return map[string]models.TransportType{
		"/dev/usb/lp*": models.TransportUSB,
		"/dev/ttyUSB*": models.TransportUSB,
		"/dev/ttyACM*": models.TransportUSB,
		"/dev/rfcomm*": models.TransportBluetooth,
	}
}

// detectDevices lists device files matching patterns, sorted by path
func detectDevices(patterns map[string]models.TransportType) []DetectedPrinter {
	var found []DetectedPrinter
	for pattern, transport := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			found = append(found, DetectedPrinter{
				Name:      filepath.Base(path),
				Transport: transport,
				Address:   path,
				Status:    "unknown",
			})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Address < found[j].Address })
	return found
}

// DetectPrinters returns thermal printer device files and, when CUPS is
// installed, the queues it knows about
func DetectPrinters() ([]DetectedPrinter, error) {
	if runtime.GOOS == "windows" {
		return nil, fmt.Errorf("printer detection is not supported on %s", runtime.GOOS)
	}

	printers := detectDevices(devicePatterns())

	output, err := exec.Command("lpstat", "-p", "-d").CombinedOutput()
	if err == nil {
		printers = append(printers, parseCUPSOutput(string(output))...)
	}
	return printers, nil
}

// parseCUPSOutput parses lpstat -p -d output
func parseCUPSOutput(output string) []DetectedPrinter {
	var printers []DetectedPrinter
	var defaultPrinter string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "system default destination:") {
			defaultPrinter = strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
			continue
		}

		// "printer NAME is idle.  enabled since ..."
		if !strings.HasPrefix(line, "printer ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		p := DetectedPrinter{
			Name:      parts[1],
			Transport: models.TransportUSB,
			Status:    "unknown",
		}
		switch {
		case strings.Contains(line, "disabled"):
			p.Status = "offline"
		case strings.Contains(line, "idle"), strings.Contains(line, "printing"):
			p.Status = "online"
		}
		printers = append(printers, p)
	}

	for i := range printers {
		printers[i].IsDefault = printers[i].Name == defaultPrinter
	}
	return printers
}
