// Package polargraph provides host-side motion control for a two-belt
// polargraph plotter.
//
// The plotter hangs a payload from two belts, each wound by a stepper motor
// mounted at the top of a board. A microcontroller running the acam3
// firmware drives the motors and speaks a line protocol over a serial port.
// This module converts between belt step indexes and board coordinates,
// moves the payload with synchronized motor speeds and sweeps it over a
// scan region.
//
// # Installation
//
//	go install github.com/gwillem/polargraph/cmd/polargraph@latest
//
// # Usage
//
// First, run setup to find the plotter and describe its geometry:
//
//	polargraph setup
//
// Then move it around or run a scan:
//
//	polargraph move 0.1 0.4
//	polargraph scan
//
// Every command accepts --simulate to run against an in-process model of
// the firmware.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/polargraph: CLI with setup, motion and scan commands
//   - pkg/link: Serial line protocol
//   - pkg/motors: Motor pair commands
//   - pkg/kinematics: Belt geometry
//   - pkg/polargraph: Plotter and configuration
//   - pkg/pattern: Raster and polar scan patterns
//   - pkg/scan: Scan engine
//   - pkg/simulator: Simulated firmware
//   - pkg/logging: Logger construction
package polargraph
