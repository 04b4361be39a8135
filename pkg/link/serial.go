package link

import (
	"fmt"
	"strings"
	"time"

	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
)

// Serial drivers.
const (
	DriverBugst = "bugst" // go.bug.st/serial, supports port listing
	DriverTarm  = "tarm"  // github.com/tarm/serial
)

// Config holds serial link settings.
type Config struct {
	Device      string
	BaudRate    int
	Driver      string
	Timeout     time.Duration // per request
	ReadTimeout time.Duration // per read call on the port
	SettleDelay time.Duration // before identify
}

// DefaultConfig returns the firmware's settings: 115200 8N1 without flow control.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		BaudRate:    115200,
		Driver:      DriverBugst,
		Timeout:     time.Second,
		ReadTimeout: 50 * time.Millisecond,
		SettleDelay: 2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Device)
	if c.BaudRate == 0 {
		c.BaudRate = d.BaudRate
	}
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	return c
}

func openPort(cfg Config) (Port, error) {
	switch cfg.Driver {
	case DriverBugst:
		port, err := serial.Open(cfg.Device, &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, err
		}
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
		return port, nil

	case DriverTarm:
		port, err := tarm.OpenPort(&tarm.Config{
			Name:        cfg.Device,
			Baud:        cfg.BaudRate,
			Size:        8,
			Parity:      tarm.ParityNone,
			StopBits:    tarm.Stop1,
			ReadTimeout: cfg.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}
		return tarmPort{port}, nil

	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

// tarmPort adapts tarm/serial to the input reset used before each request.
type tarmPort struct {
	*tarm.Port
}

func (p tarmPort) ResetInputBuffer() error {
	return p.Flush()
}

// ListPorts returns candidate serial devices, skipping Bluetooth ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	var out []string
	for _, p := range ports {
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
