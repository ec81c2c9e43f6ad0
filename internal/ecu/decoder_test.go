package ecu

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFenix3Decode(t *testing.T) {
	raw := NewRawFrame(35)
	raw[2], raw[3] = 0x21, 0x07
	raw[4] = uint8(InThrottle0 | InParked)
	raw[5] = uint8(OutPumpEnable | OutLambdaLoop)
	raw[6] = 250
	binary.LittleEndian.PutUint16(raw[7:9], 3000)
	raw[9] = 255
	raw[10] = uint8(FaultLambda)
	binary.LittleEndian.PutUint16(raw[12:14], 1500)
	raw[14] = 24
	raw[21] = 208
	raw[22] = 96
	raw[23] = 192
	raw[24] = 75
	raw[28] = ^uint8(253)
	raw[34] = 90

	f, ok := Fenix3{}.Decode(raw)
	if !ok {
		t.Fatal("not accepted")
	}
	if f.Known != FieldAll {
		t.Errorf("unknown fields: %v", FieldAll&^f.Known)
	}

	tests := []struct {
		name      string
		got, want float64
	}{
		{"map", float64(f.MAP), 1000},
		{"rpm", float64(f.RPM), 5000},
		{"throttle", float64(f.Throttle), 100},
		{"injection", float64(f.InjectionUS), 3000},
		{"advance", float64(f.Advance), 24},
		{"water", f.WaterTemp, 90},
		{"air", f.AirTemp, 20},
		{"battery", f.Battery, 14},
		{"lambda", f.Lambda, 450},
		{"atmos", float64(f.AtmosPressure), 1012},
		{"speed", float64(f.Speed), 90},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if f.InFlags != InThrottle0|InParked {
		t.Errorf("InFlags = %v", f.InFlags.Names())
	}
	if f.OutFlags&OutLambdaLoop == 0 {
		t.Errorf("OutFlags = %v", f.OutFlags.Names())
	}
	if f.Fault1 != FaultLambda {
		t.Errorf("Fault1 = %v", f.Fault1.Names())
	}
}

func TestFenix1RemapsInputs(t *testing.T) {
	raw := NewRawFrame(30)
	raw[4] = 0x02 | 0x20
	binary.LittleEndian.PutUint16(raw[10:12], 6000)

	f, ok := Fenix1{}.Decode(raw)
	if !ok {
		t.Fatal("not accepted")
	}
	if f.InFlags != InParked|InACCompressor {
		t.Errorf("InFlags = %v", f.InFlags.Names())
	}
	if f.RPM != 2500 {
		t.Errorf("RPM = %d, want 2500", f.RPM)
	}
	for _, fld := range []Field{FieldOutFlags, FieldLambda, FieldAFRCorrection, FieldFault3, FieldFault4} {
		if f.Has(fld) {
			t.Errorf("%v reported as known", fld)
		}
	}
}

func TestFenix52BRemapsFlags(t *testing.T) {
	raw := NewRawFrame(52)
	raw[5] = 0x80
	raw[6] = 0x40

	f, ok := Fenix52B{}.Decode(raw)
	if !ok {
		t.Fatal("not accepted")
	}
	if f.OutFlags != OutLambdaLoop {
		t.Errorf("OutFlags = %v", f.OutFlags.Names())
	}
	if f.InFlags != InThrottle1 {
		t.Errorf("InFlags = %v", f.InFlags.Names())
	}
	if f.Has(FieldInjection) || f.Has(FieldFault0) {
		t.Errorf("Known = %v", f.Known)
	}
}

func TestDecodersAccepted(t *testing.T) {
	tests := []struct {
		dec     Decoder
		accepts func(n int) bool
	}{
		{Fenix3{}, func(n int) bool { return n > 34 }},
		{Fenix1{}, func(n int) bool { return n > 29 }},
		{Fenix52B{}, func(n int) bool { return n == 52 }},
	}
	for _, tt := range tests {
		t.Run(tt.dec.Name(), func(t *testing.T) {
			for n := 0; n <= MaxFrameSize; n++ {
				raw := make([]byte, n)
				for i := range raw {
					raw[i] = 0xFF
				}
				f, ok := tt.dec.Decode(raw)
				if ok != tt.accepts(n) {
					t.Errorf("len %d: accepted = %v", n, ok)
				}
				if n <= 2 && f.Known != 0 {
					t.Errorf("len %d: Known = %v", n, f.Known)
				}
			}
		})
	}
}

func TestShortFrameKeepsMissingFieldsUnknown(t *testing.T) {
	raw := NewRawFrame(8)
	raw[6] = 10
	raw[7] = 0x34

	f, ok := Fenix3{}.Decode(raw)
	if ok {
		t.Error("short frame accepted")
	}
	if !f.Has(FieldMAP) || f.MAP != 40 {
		t.Errorf("MAP = %d (known %v)", f.MAP, f.Has(FieldMAP))
	}
	// RPM needs bytes 7 and 8.
	if f.Has(FieldRPM) || f.RPM != 0 {
		t.Errorf("RPM = %d (known %v)", f.RPM, f.Has(FieldRPM))
	}
}

func TestPeriodToRPM(t *testing.T) {
	tests := []struct {
		period uint16
		want   int
	}{
		{0, 0},
		{1, rpmConstant},
		{3000, 5000},
		{math.MaxUint16, 228},
	}
	for _, tt := range tests {
		if got := periodToRPM(tt.period); got != tt.want {
			t.Errorf("periodToRPM(%d) = %d, want %d", tt.period, got, tt.want)
		}
	}
}

func TestRemapBit(t *testing.T) {
	tests := []struct {
		in, src, dst, want uint8
	}{
		{0x80, 0x80, 0x40, 0x40},
		{0x7F, 0x80, 0x40, 0},
		{0xFF, 0x02, 0x10, 0x10},
		{0x00, 0x02, 0x10, 0},
	}
	for _, tt := range tests {
		if got := remapBit(tt.in, tt.src, tt.dst); got != tt.want {
			t.Errorf("remapBit(%#x, %#x, %#x) = %#x, want %#x", tt.in, tt.src, tt.dst, got, tt.want)
		}
	}
}

func TestInverseMappings(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := uint8(i)
		if got := celsiusToRaw(rawToCelsius(b)); got != b {
			t.Errorf("celsius round trip %d -> %d", b, got)
		}
		if got := voltsToRaw(rawToVolts(b)); got != b {
			t.Errorf("volts round trip %d -> %d", b, got)
		}
	}
	for p := 0; p <= 100; p++ {
		if got := rawToPercent(percentToRaw(float64(p))); got != p {
			t.Errorf("percent round trip %d -> %d", p, got)
		}
	}
	for rpm := 300; rpm <= 8000; rpm += 50 {
		got := periodToRPM(rpmToPeriod(rpm))
		if d := got - rpm; d < 0 || d > 5 {
			t.Errorf("rpm round trip %d -> %d", rpm, got)
		}
	}
	if rpmToPeriod(0) != 0 || rpmToPeriod(100) != math.MaxUint16 {
		t.Error("rpmToPeriod bounds")
	}
}

func TestFlagNames(t *testing.T) {
	got := (InThrottle0 | InACRequest).Names()
	if len(got) != 2 {
		t.Errorf("Names = %v", got)
	}
	if s := (FieldMAP | FieldRPM).String(); s != "map|rpm" {
		t.Errorf("Field.String = %q", s)
	}
}
