// Package simulator models the polargraph firmware in-process.
//
// A Device speaks the same line protocol as the microcontroller and can be
// used wherever a serial port is expected. Motion is advanced by one Tick of
// simulated time every time the host asks for the running state or the
// step indexes, so a host polling loop drives the simulation forward.
package simulator

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Device is a simulated two-motor controller.
type Device struct {
	// Version is returned in reply to Q.
	Version string
	// Tick is the simulated time that passes per status query.
	Tick time.Duration
	// ReadTimeout bounds how long Read waits for a reply.
	ReadTimeout time.Duration

	mu       sync.Mutex
	in       []byte
	out      []byte
	notify   chan struct{}
	closed   bool
	commands []string
	mute     map[string]bool
	garble   map[string]bool

	n1, n2     int
	t1, t2     int
	v1, v2     float64
	a1, a2     float64
	energized  bool
	rem1, rem2 float64
}

// New returns a device at home with 400 steps/s on both motors.
func New() *Device {
	return &Device{
		Version:     "acam3",
		Tick:        50 * time.Millisecond,
		ReadTimeout: 20 * time.Millisecond,
		notify:      make(chan struct{}, 1),
		mute:        make(map[string]bool),
		garble:      make(map[string]bool),
		v1:          400,
		v2:          400,
	}
}

// Mute makes the device ignore commands with the given tag.
func (d *Device) Mute(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mute[tag] = true
}

// Garble makes the device answer commands with the given tag with garbage.
func (d *Device) Garble(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.garble[tag] = true
}

// Heal clears all injected faults.
func (d *Device) Heal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mute = make(map[string]bool)
	d.garble = make(map[string]bool)
}

// Commands returns every command received so far.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Indexes returns the current step indexes.
func (d *Device) Indexes() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n1, d.n2
}

// SetIndexes places the motors without moving them.
func (d *Device) SetIndexes(n1, n2 int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n1, d.n2 = n1, n2
	d.t1, d.t2 = n1, n2
}

// Energized reports whether the motor windings are powered.
func (d *Device) Energized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.energized
}

// Write accepts command bytes. Complete lines are executed immediately.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}

	d.in = append(d.in, p...)
	for {
		i := bytes.IndexByte(d.in, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(d.in[:i]), "\r")
		d.in = d.in[i+1:]
		d.execute(line)
	}

	if len(d.out) > 0 {
		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Read returns pending reply bytes, waiting up to ReadTimeout.
// It returns (0, nil) when nothing arrived.
func (d *Device) Read(p []byte) (int, error) {
	if n, err, ok := d.drain(p); ok {
		return n, err
	}

	timer := time.NewTimer(d.ReadTimeout)
	defer timer.Stop()
	select {
	case <-d.notify:
	case <-timer.C:
	}

	n, err, _ := d.drain(p)
	return n, err
}

func (d *Device) drain(p []byte) (int, error, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.EOF, true
	}
	if len(d.out) == 0 {
		return 0, nil, false
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil, true
}

// ResetInputBuffer drops unread replies.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = d.out[:0]
	return nil
}

// Close closes the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) reply(format string, args ...any) {
	d.out = append(d.out, fmt.Sprintf(format, args...)+"\n"...)
}

func (d *Device) execute(line string) {
	d.commands = append(d.commands, line)

	fields := strings.Split(line, ":")
	tag := fields[0]
	if d.mute[tag] {
		return
	}
	if d.garble[tag] {
		d.reply("%s", "?#!")
		return
	}

	switch {
	case tag == "Q":
		d.reply("%s", d.Version)

	case tag == "G" && len(fields) == 3:
		t1, err1 := strconv.Atoi(fields[1])
		t2, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return
		}
		d.t1, d.t2 = t1, t2
		d.energized = true
		d.reply("G")

	case tag == "S":
		d.t1, d.t2 = d.n1, d.n2
		d.reply("S")

	case tag == "X":
		d.t1, d.t2 = d.n1, d.n2
		d.energized = false
		d.reply("X")

	case tag == "R":
		d.advance()
		if d.running() {
			d.reply("R:1")
		} else {
			d.reply("R:0")
		}

	case tag == "P" && len(fields) == 1:
		d.advance()
		d.reply("P:%d:%d", d.n1, d.n2)

	case tag == "P" && len(fields) == 3:
		n1, err1 := strconv.Atoi(fields[1])
		n2, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return
		}
		d.n1, d.n2 = n1, n2
		d.t1, d.t2 = n1, n2
		d.reply("P")

	case tag == "V" && len(fields) == 1:
		d.reply("V:%s:%s", formatFloat(d.v1), formatFloat(d.v2))

	case tag == "V" && len(fields) == 3:
		v1, err1 := strconv.ParseFloat(fields[1], 64)
		v2, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			return
		}
		d.v1, d.v2 = v1, v2
		d.reply("V")

	case tag == "A" && len(fields) == 3:
		a1, err1 := strconv.ParseFloat(fields[1], 64)
		a2, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			return
		}
		d.a1, d.a2 = a1, a2
		d.reply("A")
	}
}

func (d *Device) running() bool {
	return d.n1 != d.t1 || d.n2 != d.t2
}

// advance moves both motors by one tick at constant speed.
func (d *Device) advance() {
	dt := d.Tick.Seconds()
	d.n1, d.rem1 = step(d.n1, d.t1, d.v1*dt+d.rem1)
	d.n2, d.rem2 = step(d.n2, d.t2, d.v2*dt+d.rem2)
}

func step(n, target int, budget float64) (int, float64) {
	if n == target {
		return n, 0
	}
	whole := math.Floor(budget)
	dist := target - n
	if math.Abs(float64(dist)) <= whole {
		return target, 0
	}
	if dist > 0 {
		return n + int(whole), budget - whole
	}
	return n - int(whole), budget - whole
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
