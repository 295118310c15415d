package transport

import (
	"testing"

	"github.com/kbuckham/zonewatch/internal/zone"
)

func TestSerialModbusSource_UnopenedPortYieldsInvalidSample(t *testing.T) {
	conn := NewSerialConn("/dev/null", 9600)
	src := NewSerialModbusSource(conn, nil)

	s, err := src.GetLatest(zone.Preheat)
	if err != nil {
		t.Fatalf("GetLatest should not surface a transport error, got %v", err)
	}
	if s.Valid {
		t.Fatalf("sample from an unopened port should be invalid")
	}
}

func TestSerialModbusSource_RejectsUnconfiguredZone(t *testing.T) {
	conn := NewSerialConn("/dev/null", 9600)
	src := NewSerialModbusSource(conn, map[zone.Zone]ZoneRegisters{
		zone.Preheat: {TemperatureAddr: 0x10, SetpointAddr: 0x11},
	})

	if _, err := src.GetLatest(zone.Main); err == nil {
		t.Fatalf("expected an error for a zone with no register mapping")
	}
}

func TestDefaultRegisterMapCoversCanonicalZones(t *testing.T) {
	regs := DefaultRegisterMap()
	for _, z := range zone.CanonicalOrder {
		r, ok := regs[z]
		if !ok {
			t.Fatalf("default register map missing zone %s", z)
		}
		if r.TemperatureAddr == r.SetpointAddr {
			t.Fatalf("zone %s temperature and setpoint addresses must differ", z)
		}
	}
}
