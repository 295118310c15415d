package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// ZoneRegisters names the two register addresses a field controller
// exposes for one zone: the measured temperature and its active
// setpoint, each a big-endian uint16 in tenths of a degree F.
type ZoneRegisters struct {
	TemperatureAddr byte
	SetpointAddr    byte
}

// DefaultRegisterMap assigns two addresses per canonical zone, mirroring
// the teacher's one-address-per-sensor scheme.
func DefaultRegisterMap() map[zone.Zone]ZoneRegisters {
	return map[zone.Zone]ZoneRegisters{
		zone.Preheat: {TemperatureAddr: 0x10, SetpointAddr: 0x11},
		zone.Main:    {TemperatureAddr: 0x12, SetpointAddr: 0x13},
		zone.Rib:     {TemperatureAddr: 0x14, SetpointAddr: 0x15},
	}
}

// SerialModbusSource is a sample.Source backed by a serial-attached field
// controller: it issues the same address/echo/response byte exchange as
// the teacher's ECU.QuerySensor, just against two 16-bit registers per
// zone instead of one 8-bit sensor byte. A query failure or echo
// mismatch yields an invalid Sample rather than an error, since the
// worker's staleness ceiling already treats a missing read as absent
// data (spec.md §4.4 step 1).
type SerialModbusSource struct {
	conn      *SerialConn
	registers map[zone.Zone]ZoneRegisters

	busMu sync.Mutex // held for an entire query's send+receive cycle
}

// NewSerialModbusSource builds a Source over an already-constructed
// SerialConn. The caller must Open conn before the first GetLatest call.
func NewSerialModbusSource(conn *SerialConn, registers map[zone.Zone]ZoneRegisters) *SerialModbusSource {
	if registers == nil {
		registers = DefaultRegisterMap()
	}
	return &SerialModbusSource{conn: conn, registers: registers}
}

// GetLatest queries both registers for z and returns the combined
// sample. The returned error is non-nil only for a programming error
// (an unconfigured zone); transport-level failures are reported through
// Sample.Valid so a flaky line doesn't abort the worker's tick.
func (s *SerialModbusSource) GetLatest(z zone.Zone) (sample.Sample, error) {
	regs, ok := s.registers[z]
	if !ok {
		return sample.Sample{}, fmt.Errorf("no register map for zone %s", z)
	}

	now := time.Now()
	out := sample.Sample{Zone: z, T: now, Wall: now}

	temp, err := s.queryRegister(regs.TemperatureAddr)
	if err != nil {
		slog.Warn("modbus temperature query failed", "zone", z, "addr", fmt.Sprintf("0x%02X", regs.TemperatureAddr), "error", err)
		return out, nil
	}
	setpoint, err := s.queryRegister(regs.SetpointAddr)
	if err != nil {
		slog.Warn("modbus setpoint query failed", "zone", z, "addr", fmt.Sprintf("0x%02X", regs.SetpointAddr), "error", err)
		return out, nil
	}

	out.TemperatureF = float64(temp) / 10.0
	out.SetpointF = float64(setpoint) / 10.0
	out.Valid = true
	return out, nil
}

// queryRegister sends addr and reads back a 3-byte reply: the echoed
// address followed by a big-endian uint16 register value, exactly the
// shape of the teacher's QuerySensor but widened from one data byte to
// two.
func (s *SerialModbusSource) queryRegister(addr byte) (uint16, error) {
	s.busMu.Lock()
	defer s.busMu.Unlock()

	if _, err := s.conn.Send([]byte{addr}); err != nil {
		return 0, fmt.Errorf("failed to send register address 0x%02X: %w", addr, err)
	}

	buf := make([]byte, 3)
	totalRead := 0
	deadline := time.Now().Add(500 * time.Millisecond)

	for totalRead < 3 && time.Now().Before(deadline) {
		n, err := s.conn.Receive(buf[totalRead:])
		if err != nil {
			s.conn.Flush()
			return 0, fmt.Errorf("failed to read response for 0x%02X: %w", addr, err)
		}
		totalRead += n
	}

	if totalRead < 3 {
		s.conn.Flush()
		return 0, fmt.Errorf("timeout reading response for 0x%02X: got %d bytes", addr, totalRead)
	}

	if buf[0] != addr {
		s.conn.Flush()
		return 0, fmt.Errorf("echo mismatch for 0x%02X: got 0x%02X", addr, buf[0])
	}

	return uint16(buf[1])<<8 | uint16(buf[2]), nil
}
