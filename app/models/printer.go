package models

import (
	"fmt"
	"strings"
)

// PrinterRole is the station a printer serves
type PrinterRole string

const (
	RoleKitchen PrinterRole = "kitchen"
	RoleBar     PrinterRole = "bar"
	RoleCounter PrinterRole = "counter"
)

// TransportType is how the device is reached
type TransportType string

const (
	TransportUSB       TransportType = "usb"
	TransportBluetooth TransportType = "bluetooth"
	TransportNetwork   TransportType = "network"
)

// IsDirect reports whether the station can write to the device itself
func (t TransportType) IsDirect() bool {
	return t == TransportUSB || t == TransportBluetooth
}

// PaperFormat is the roll width of a thermal printer
type PaperFormat string

const (
	Paper58mm PaperFormat = "58mm"
	Paper80mm PaperFormat = "80mm"
)

// Columns returns the character columns printable in font A
func (p PaperFormat) Columns() int {
	if p == Paper58mm {
		return 32
	}
	return 48
}

// Dots returns the printable width in dots at 203 DPI
func (p PaperFormat) Dots() int {
	if p == Paper58mm {
		return 384
	}
	return 576
}

// WidthMM returns the paper width in millimetres
func (p PaperFormat) WidthMM() float64 {
	if p == Paper58mm {
		return 58
	}
	return 80
}

// ParsePaperFormat accepts "58", "58mm", "80" or "80mm"
func ParsePaperFormat(s string) (PaperFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "58", "58mm":
		return Paper58mm, nil
	case "80", "80mm", "":
		return Paper80mm, nil
	}
	return "", fmt.Errorf("unsupported paper format: %s", s)
}

// PrinterDescriptor is a configured printer. It is read-only for the
// duration of a print attempt.
type PrinterDescriptor struct {
	Name        string        `json:"name" mapstructure:"name"`
	Role        PrinterRole   `json:"role" mapstructure:"role"`
	Transport   TransportType `json:"transport" mapstructure:"transport"`
	PaperFormat PaperFormat   `json:"paper_format" mapstructure:"paper_format"`
	Address     string        `json:"address" mapstructure:"address"` // device path (usb, bluetooth rfcomm) or host
	Port        int           `json:"port" mapstructure:"port"`       // network printers only, default 9100
	AutoCut     bool          `json:"auto_cut" mapstructure:"auto_cut"`
	CashDrawer  bool          `json:"cash_drawer" mapstructure:"cash_drawer"`
}

// Validate checks the fields a print attempt relies on
func (d PrinterDescriptor) Validate() error {
	switch d.Role {
	case RoleKitchen, RoleBar, RoleCounter:
	default:
		return fmt.Errorf("printer %q: invalid role %q", d.Name, d.Role)
	}
	switch d.Transport {
	case TransportUSB, TransportBluetooth, TransportNetwork:
	default:
		return fmt.Errorf("printer %q: invalid transport %q", d.Name, d.Transport)
	}
	if d.PaperFormat != Paper58mm && d.PaperFormat != Paper80mm {
		return fmt.Errorf("printer %q: invalid paper format %q", d.Name, d.PaperFormat)
	}
	return nil
}

// NetworkAddress returns host:port for network printers
func (d PrinterDescriptor) NetworkAddress() string {
	port := d.Port
	if port == 0 {
		port = 9100
	}
	return fmt.Sprintf("%s:%d", d.Address, port)
}
