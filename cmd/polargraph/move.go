package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/scan"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// signalContext is canceled on Ctrl-C, which interrupts a running motion.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type IdentifyCommand struct{}

func (c *IdentifyCommand) Execute(args []string) error {
	log := newLogger(os.Stderr)
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := openLink(cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ok, err := l.Identify(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unexpected firmware on %s, want %s", cfg.Link().Device, link.ProtocolVersion)
	}
	fmt.Println(successStyle.Render("Firmware " + link.ProtocolVersion))
	return nil
}

type PositionCommand struct{}

func (c *PositionCommand) Execute(args []string) error {
	log := newLogger(os.Stderr)
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	p, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := p.Indexes(ctx)
	if err != nil {
		return err
	}
	pos, err := p.Position(ctx)
	if err != nil {
		return err
	}
	running, _ := p.Running(ctx)

	fmt.Println(headerStyle.Render("Position"))
	fmt.Printf("  x: %8.4f m\n", pos.X)
	fmt.Printf("  y: %8.4f m\n", pos.Y)
	fmt.Println(dimStyle.Render(fmt.Sprintf("  steps: %d, %d  running: %t", n.N1, n.N2, running)))
	return nil
}

type MoveCommand struct {
	Args struct {
		X float64 `positional-arg-name:"x" description:"meters right of home"`
		Y float64 `positional-arg-name:"y" description:"meters below the motors"`
	} `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	target := kinematics.Position{X: c.Args.X, Y: c.Args.Y}
	return runMotion(func(ctx context.Context, e *scan.Engine) (scan.Result, error) {
		return e.MoveTo(ctx, target)
	})
}

type HomeCommand struct{}

func (c *HomeCommand) Execute(args []string) error {
	return runMotion(func(ctx context.Context, e *scan.Engine) (scan.Result, error) {
		return e.Home(ctx)
	})
}

type CenterCommand struct{}

func (c *CenterCommand) Execute(args []string) error {
	return runMotion(func(ctx context.Context, e *scan.Engine) (scan.Result, error) {
		return e.Center(ctx)
	})
}

type ReleaseCommand struct{}

func (c *ReleaseCommand) Execute(args []string) error {
	log := newLogger(os.Stderr)
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	p, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Release(ctx); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Motors released"))
	return nil
}

// runMotion connects, runs a blocking engine motion and reports where the
// payload ended up. Ctrl-C interrupts the motion; the motors are released
// either way.
func runMotion(motion func(context.Context, *scan.Engine) (scan.Result, error)) error {
	log := newLogger(os.Stderr)
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	e, p, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := motion(ctx, e)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
	}

	// the caller's context may be canceled by now
	pos, _ := p.Position(context.Background())
	fmt.Printf("%s  x=%.4f m  y=%.4f m\n", subHeaderStyle.Render(res.Outcome.String()), pos.X, pos.Y)
	return err
}
