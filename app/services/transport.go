package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"PosPrint/app/models"
)

// ErrNoConnection is returned when a printer descriptor does not resolve to
// a live device
var ErrNoConnection = errors.New("printer not connected")

// Connector opens a write channel to the device described by a descriptor
type Connector interface {
	Resolve(ctx context.Context, desc models.PrinterDescriptor) (io.WriteCloser, error)
}

// DeviceConnector reaches printers through device files (usb, bluetooth
// rfcomm, serial) or raw TCP for network printers
type DeviceConnector struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewDeviceConnector returns a connector with the default timeouts
func NewDeviceConnector() *DeviceConnector {
	return &DeviceConnector{
		DialTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Resolve opens the device. Any failure is wrapped in ErrNoConnection.
func (c *DeviceConnector) Resolve(ctx context.Context, desc models.PrinterDescriptor) (io.WriteCloser, error) {
	if desc.Address == "" {
		return nil, fmt.Errorf("%w: %s has no address", ErrNoConnection, desc.Name)
	}

	switch desc.Transport {
	case models.TransportUSB, models.TransportBluetooth:
		// device file, e.g. /dev/usb/lp0 or /dev/rfcomm0
		f, err := os.OpenFile(desc.Address, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open %s printer at %s: %v", ErrNoConnection, desc.Transport, desc.Address, err)
		}
		return f, nil

	case models.TransportNetwork:
		dialer := net.Dialer{Timeout: c.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", desc.NetworkAddress())
		if err != nil {
			return nil, fmt.Errorf("%w: failed to connect to network printer at %s: %v", ErrNoConnection, desc.NetworkAddress(), err)
		}
		if c.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: unsupported transport %q", ErrNoConnection, desc.Transport)
}

// writeJob delivers data over a resolved connection and closes it
func writeJob(ctx context.Context, connector Connector, desc models.PrinterDescriptor, data []byte) error {
	conn, err := connector.Resolve(ctx, desc)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to printer %s: %w", desc.Name, err)
	}
	if n != len(data) {
		return fmt.Errorf("failed to write to printer %s: short write %d/%d", desc.Name, n, len(data))
	}
	return nil
}
