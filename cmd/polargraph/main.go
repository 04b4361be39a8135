package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/logging"
	"github.com/gwillem/polargraph/pkg/polargraph"
	"github.com/gwillem/polargraph/pkg/scan"
	"github.com/gwillem/polargraph/pkg/simulator"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"polargraph.json" description:"Configuration file"`
	Simulate bool   `long:"simulate" description:"Use a simulated plotter instead of the serial port"`
	LogFile  string `long:"log-file" description:"Also write logs to this file (rotated)"`
	Verbose  bool   `short:"v" long:"verbose" description:"Log device traffic"`

	Setup    SetupCommand    `command:"setup" description:"Find the plotter and write the configuration"`
	Identify IdentifyCommand `command:"identify" description:"Check the firmware version"`
	Position PositionCommand `command:"position" alias:"pos" description:"Print the current position"`
	Move     MoveCommand     `command:"move" description:"Move to x y (meters from home)"`
	Home     HomeCommand     `command:"home" description:"Move to the home position"`
	Center   CenterCommand   `command:"center" description:"Move to the center of the scan region"`
	Release  ReleaseCommand  `command:"release" description:"Stop and de-energize the motors"`
	Scan     ScanCommand     `command:"scan" description:"Run the scan pattern with a live view"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Polargraph - two-belt plotter control CLI"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global options.
func newLogger(console io.Writer, extra ...zap.Option) *zap.Logger {
	lo := logging.DefaultOptions()
	if opts.Verbose {
		lo.Level = zapcore.DebugLevel
	}
	lo.Console = console
	lo.File = opts.LogFile
	return logging.New(lo, extra...)
}

// loadConfig reads the configuration file. The simulator runs on defaults
// when there is none.
func loadConfig() (*polargraph.Config, error) {
	if !polargraph.ConfigExists(opts.Config) {
		if opts.Simulate {
			return polargraph.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("no configuration found at %s, run 'polargraph setup' first", opts.Config)
	}
	return polargraph.LoadConfigFrom(opts.Config)
}

// openLink opens the configured serial port, or a simulated device.
func openLink(cfg *polargraph.Config, log *zap.Logger) (*link.Link, error) {
	if opts.Simulate {
		dev := simulator.New()
		// one poll queries position and running state
		dev.Tick = time.Duration(cfg.Scan.PollInterval) / 2
		lc := cfg.Link()
		lc.Device = "simulator"
		lc.SettleDelay = 0
		return link.New(dev, lc, log), nil
	}
	if cfg.Port == "" {
		return nil, errors.New("no port configured, run 'polargraph setup' first")
	}
	return link.Open(cfg.Link(), log)
}

// connect opens and identifies the plotter.
func connect(ctx context.Context, cfg *polargraph.Config, log *zap.Logger) (*polargraph.Polargraph, error) {
	l, err := openLink(cfg, log)
	if err != nil {
		return nil, err
	}
	p, err := polargraph.Attach(ctx, l, cfg, log)
	if err != nil {
		l.Close()
		return nil, err
	}
	return p, nil
}

// newEngine connects and builds a scan engine for the configured pattern.
func newEngine(ctx context.Context, cfg *polargraph.Config, log *zap.Logger) (*scan.Engine, *polargraph.Polargraph, error) {
	pat, err := cfg.Pattern()
	if err != nil {
		return nil, nil, err
	}
	p, err := connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	e := scan.New(p, pat, scan.Config{PollInterval: time.Duration(cfg.Scan.PollInterval)}, log)
	return e, p, nil
}
