package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	DefaultINA260Address = 0x40

	regCurrent    = 0x01
	regBusVoltage = 0x02
	regMfgID      = 0xFE

	// "TI" in ASCII.
	ina260MfgID = 0x5449

	// 1.25mV and 1.25mA per bit.
	voltageLSB = 1250 * physic.MicroVolt
	currentLSB = 1250 * physic.MicroAmpere
)

type INA260Sensor struct {
	dev *i2c.Dev
	bus i2c.BusCloser
}

// OpenINA260 initialises the host, opens the named I2C bus and probes the
// INA260 at addr.
func OpenINA260(busName string, addr uint16) (*INA260Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	s, err := NewINA260(bus, addr)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.bus = bus
	return s, nil
}

// NewINA260 returns a sensor on an already opened bus. The bus is not closed
// by Close.
func NewINA260(bus i2c.Bus, addr uint16) (*INA260Sensor, error) {
	s := &INA260Sensor{dev: &i2c.Dev{Addr: addr, Bus: bus}}
	id, err := s.readRegister(regMfgID)
	if err != nil {
		return nil, fmt.Errorf("%w at 0x%02X: %v", ErrDeviceNotFound, addr, err)
	}
	if id != ina260MfgID {
		return nil, fmt.Errorf("%w at 0x%02X: manufacturer id 0x%04X", ErrDeviceNotFound, addr, id)
	}
	return s, nil
}

// ReadVoltage returns the bus voltage in volts.
func (s *INA260Sensor) ReadVoltage() (float64, error) {
	raw, err := s.readRegister(regBusVoltage)
	if err != nil {
		return 0, &ReadError{Quantity: "voltage", Err: err}
	}
	v := physic.ElectricPotential(raw) * voltageLSB
	return float64(v) / float64(physic.Volt), nil
}

// ReadCurrent returns the current in amps. The register is two's complement
// so a reversed load reads negative.
func (s *INA260Sensor) ReadCurrent() (float64, error) {
	raw, err := s.readRegister(regCurrent)
	if err != nil {
		return 0, &ReadError{Quantity: "current", Err: err}
	}
	a := physic.ElectricCurrent(int16(raw)) * currentLSB
	return float64(a) / float64(physic.Ampere), nil
}

func (s *INA260Sensor) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *INA260Sensor) String() string {
	return fmt.Sprintf("INA260{%s}", s.dev)
}

func (s *INA260Sensor) readRegister(reg byte) (uint16, error) {
	var buf [2]byte
	if err := s.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}
