// Package relay switches the resistive load bank of a GPIO relay board.
package relay

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultPins are the BCM pins of a common four channel relay HAT.
var DefaultPins = []int{6, 13, 19, 26}

// Driver switches relays addressed by a zero based index.
type Driver interface {
	Set(index int, on bool) error
	AllOff() error
	Len() int
}

// GPIOBoard drives one output pin per relay. A high level energises the
// relay.
type GPIOBoard struct {
	pins []gpio.PinOut
}

// OpenGPIO initialises the host and resolves the BCM pin numbers.
func OpenGPIO(bcm []int) (*GPIOBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	pins := make([]gpio.PinOut, 0, len(bcm))
	for _, n := range bcm {
		p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
		if p == nil {
			return nil, fmt.Errorf("relay: unknown pin GPIO%d", n)
		}
		pins = append(pins, p)
	}
	return NewGPIOBoard(pins...)
}

// NewGPIOBoard drives all pins low before returning.
func NewGPIOBoard(pins ...gpio.PinOut) (*GPIOBoard, error) {
	b := &GPIOBoard{pins: pins}
	if err := b.AllOff(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *GPIOBoard) Len() int { return len(b.pins) }

func (b *GPIOBoard) Set(index int, on bool) error {
	if index < 0 || index >= len(b.pins) {
		return fmt.Errorf("relay: index %d out of range [0,%d)", index, len(b.pins))
	}
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := b.pins[index].Out(l); err != nil {
		return fmt.Errorf("relay %d: %w", index, err)
	}
	return nil
}

// AllOff attempts every relay even if one fails.
func (b *GPIOBoard) AllOff() error {
	var errs []error
	for i := range b.pins {
		if err := b.Set(i, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bank is an in-memory relay board used when no hardware is attached.
type Bank struct {
	mu    sync.Mutex
	state []bool
}

func NewBank(n int) *Bank {
	return &Bank{state: make([]bool, n)}
}

func (b *Bank) Len() int { return len(b.state) }

func (b *Bank) Set(index int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.state) {
		return fmt.Errorf("relay: index %d out of range [0,%d)", index, len(b.state))
	}
	b.state[index] = on
	return nil
}

func (b *Bank) AllOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.state {
		b.state[i] = false
	}
	return nil
}

// State returns a copy of the relay states.
func (b *Bank) State() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.state...)
}
