package sensor

import (
	"math/rand"
	"sync"
)

// FakeSensor simulates a battery discharging through a fixed load. Every
// voltage read drops the voltage by the configured step.
type FakeSensor struct {
	mu      sync.Mutex
	voltage float64
	step    float64
	current float64
	noise   bool
}

func NewFakeSensor(startVoltage, step, current float64) *FakeSensor {
	return &FakeSensor{voltage: startVoltage, step: step, current: current, noise: true}
}

func (f *FakeSensor) ReadVoltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.voltage
	f.voltage -= f.step
	if f.noise {
		v += (rand.Float64() - 0.5) * 0.002
	}
	return v, nil
}

func (f *FakeSensor) ReadCurrent() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.current
	if f.noise {
		a += (rand.Float64() - 0.5) * 0.01
	}
	return a, nil
}

func (f *FakeSensor) Close() error { return nil }
