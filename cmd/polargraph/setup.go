package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/pattern"
	"github.com/gwillem/polargraph/pkg/polargraph"
)

type SetupCommand struct {
	Driver string `long:"driver" default:"bugst" choice:"bugst" choice:"tarm" description:"Serial driver"`
}

type portInfo struct {
	port       string
	identified bool
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Polargraph Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━"))
	fmt.Println()

	// probe quietly, the summary is printed below
	log := newLogger(io.Discard)
	defer log.Sync()

	cfg := polargraph.DefaultConfig()
	if polargraph.ConfigExists(opts.Config) {
		if existing, err := polargraph.LoadConfigFrom(opts.Config); err == nil {
			cfg = existing
		}
	}
	cfg.Driver = c.Driver

	// Step 1: find the plotter
	if opts.Simulate {
		fmt.Println("Using the simulated plotter.")
	} else {
		port, err := c.choosePort(cfg, log)
		if err != nil {
			return err
		}
		cfg.Port = port
	}

	// Step 2: geometry and scan region
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Geometry ━━━"))
	fmt.Println()
	if err := editConfig(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start scanning with: " + headerStyle.Render("polargraph scan"))
	return nil
}

func (c *SetupCommand) choosePort(cfg *polargraph.Config, log *zap.Logger) (string, error) {
	fmt.Println("Scanning serial ports...")
	fmt.Println()

	ports := findPlotters(cfg, log)
	if len(ports) == 0 {
		return "", errors.New("no serial ports found, make sure the plotter is connected")
	}

	var options []huh.Option[string]
	for _, p := range ports {
		label := p.port + dimStyle.Render("  (no reply)")
		if p.identified {
			label = p.port + successStyle.Render("  "+link.ProtocolVersion)
		}
		options = append(options, huh.NewOption(label, p.port))
	}

	port := ports[0].port
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the plotter on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}

// findPlotters lists serial ports with identified plotters first.
func findPlotters(cfg *polargraph.Config, log *zap.Logger) []portInfo {
	names, err := link.ListPorts()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found, other []portInfo
	for _, name := range names {
		lc := cfg.Link()
		lc.Device = name

		if probe(lc, log) {
			fmt.Printf("  Found plotter on %s\n", name)
			found = append(found, portInfo{port: name, identified: true})
		} else {
			other = append(other, portInfo{port: name})
		}
	}
	return append(found, other...)
}

func probe(lc link.Config, log *zap.Logger) bool {
	l, err := link.Open(lc, log)
	if err != nil {
		return false
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), lc.SettleDelay+2*time.Second)
	defer cancel()
	ok, err := l.Identify(ctx)
	return err == nil && ok
}

func editConfig(cfg *polargraph.Config) error {
	ell := formatFloat(cfg.Geometry.Ell)
	y0 := formatFloat(cfg.Geometry.Y0)
	speed := formatFloat(cfg.Speed)
	width := formatFloat(cfg.Scan.Region.Width)
	height := formatFloat(cfg.Scan.Region.Height)
	kind := cfg.Scan.Pattern

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Motor separation [m]").
				Value(&ell).
				Validate(positive),
			huh.NewInput().
				Title("Home height below the motors [m]").
				Value(&y0).
				Validate(positive),
			huh.NewInput().
				Title("Speed [mm/s]").
				Value(&speed).
				Validate(positive),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Scan pattern").
				Options(
					huh.NewOption("Raster (vertical lines)", pattern.KindRaster),
					huh.NewOption("Polar (arcs about the left motor)", pattern.KindPolar),
				).
				Value(&kind),
			huh.NewInput().
				Title("Region width [m]").
				Value(&width).
				Validate(positive),
			huh.NewInput().
				Title("Region height [m]").
				Value(&height).
				Validate(positive),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	// validated by the form
	cfg.Geometry.Ell, _ = strconv.ParseFloat(ell, 64)
	cfg.Geometry.Y0, _ = strconv.ParseFloat(y0, 64)
	cfg.Speed, _ = strconv.ParseFloat(speed, 64)
	cfg.Scan.Region.Width, _ = strconv.ParseFloat(width, 64)
	cfg.Scan.Region.Height, _ = strconv.ParseFloat(height, 64)
	cfg.Scan.Region.Y0 = cfg.Geometry.Y0
	cfg.Scan.Pattern = kind
	return nil
}

func positive(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.New("not a number")
	}
	if v <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
