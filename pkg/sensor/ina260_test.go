package sensor

import (
	"errors"
	"math"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

const addr uint16 = DefaultINA260Address

func probeOps() []i2ctest.IO {
	return []i2ctest.IO{{Addr: addr, W: []byte{regMfgID}, R: []byte{0x54, 0x49}}}
}

func TestNewINA260WrongManufacturer(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{{Addr: addr, W: []byte{regMfgID}, R: []byte{0x12, 0x34}}}, DontPanic: true}
	defer pb.Close()
	if _, err := NewINA260(pb, addr); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestNewINA260NoDevice(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	defer pb.Close()
	if _, err := NewINA260(pb, addr); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestINA260Read(t *testing.T) {
	ops := append(probeOps(),
		// 0x0C80 = 3200 * 1.25mV = 4.0V
		i2ctest.IO{Addr: addr, W: []byte{regBusVoltage}, R: []byte{0x0C, 0x80}},
		// 0x0280 = 640 * 1.25mA = 0.8A
		i2ctest.IO{Addr: addr, W: []byte{regCurrent}, R: []byte{0x02, 0x80}},
		// 0xFD80 = -640 -> -0.8A
		i2ctest.IO{Addr: addr, W: []byte{regCurrent}, R: []byte{0xFD, 0x80}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()

	s, err := NewINA260(pb, addr)
	if err != nil {
		t.Fatalf("NewINA260: %v", err)
	}
	v, err := s.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if math.Abs(v-4.0) > 1e-9 {
		t.Fatalf("voltage: got %f want 4.0", v)
	}
	a, err := s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if math.Abs(a-0.8) > 1e-9 {
		t.Fatalf("current: got %f want 0.8", a)
	}
	a, err = s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if math.Abs(a+0.8) > 1e-9 {
		t.Fatalf("negative current: got %f want -0.8", a)
	}
}

func TestINA260ReadError(t *testing.T) {
	pb := &i2ctest.Playback{Ops: probeOps(), DontPanic: true}
	defer pb.Close()

	s, err := NewINA260(pb, addr)
	if err != nil {
		t.Fatalf("NewINA260: %v", err)
	}
	_, err = s.ReadVoltage()
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ReadError, got %v", err)
	}
	if re.Quantity != "voltage" {
		t.Fatalf("quantity: got %q", re.Quantity)
	}
}

func TestFakeSensorDischarges(t *testing.T) {
	f := NewFakeSensor(4.2, 0.1, 0.8)
	f.noise = false
	first, _ := f.ReadVoltage()
	second, _ := f.ReadVoltage()
	if math.Abs(first-4.2) > 1e-9 || math.Abs(second-4.1) > 1e-9 {
		t.Fatalf("unexpected voltages %f %f", first, second)
	}
	if a, _ := f.ReadCurrent(); a != 0.8 {
		t.Fatalf("current: got %f", a)
	}
}
