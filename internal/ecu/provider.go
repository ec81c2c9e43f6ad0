package ecu

import "io"

// Provider is the interface that all XR25 byte sources must implement.
// The serial K-line adapter is the real implementation; the demo
// generator and the capture replay implement the same interface so the
// rest of the dashboard does not care where bytes come from.
type Provider interface {
	// Name returns the human-readable name of this provider.
	Name() string
	// Connect opens the underlying device or file.
	Connect() error
	// Close cleanly shuts down the connection.
	Close() error
	// IsConnected returns whether the provider has an active connection.
	IsConnected() bool

	// Reader returns the raw XR25 byte stream. It is only valid after a
	// successful Connect. Reads may return (0, nil) when the device
	// read timeout expires; the Synchronizer treats that as "no data yet".
	Reader() io.Reader
}

// Frame holds one decoded XR25 diagnostic frame.
// Field names follow the XR25 diagnostic page.
// Only fields present in Known were produced by the decoder; the rest
// keep their zero value and must be shown as unknown.
type Frame struct {
	ProgramVersion uint8 `json:"programVersion"`
	CalibVersion   uint8 `json:"calibVersion"`

	InFlags  InFlags  `json:"inFlags"`
	OutFlags OutFlags `json:"outFlags"`

	// Core engine
	MAP         int `json:"map"`         // mbar
	RPM         int `json:"rpm"`         // rev/min
	Throttle    int `json:"throttle"`    // 0-100%
	InjectionUS int `json:"injectionUs"` // µs
	Advance     int `json:"advance"`     // deg

	// Knock
	EnginePinging uint8 `json:"enginePinging"`
	PingingDelay  uint8 `json:"pingingDelay"`

	// Temperatures (°C)
	WaterTemp float64 `json:"waterTemp"`
	AirTemp   float64 `json:"airTemp"`

	// Electrical
	Battery float64 `json:"battery"` // V
	Lambda  float64 `json:"lambda"`  // mV

	// Idle
	IdleRegulation int `json:"idleRegulation"` // %
	IdlePeriod     int `json:"idlePeriod"`

	AtmosPressure int   `json:"atmosPressure"` // mbar
	AFRCorrection uint8 `json:"afrCorrection"`
	Speed         int   `json:"speed"` // km/h

	// Faults
	Fault0        Fault0Flags `json:"fault0"`
	Fault1        Fault1Flags `json:"fault1"`
	Fault2        Fault2Flags `json:"fault2"`
	Fault3        Fault3Flags `json:"fault3"`
	Fault4        Fault4Flags `json:"fault4"`
	FaultFugitive Fault0Flags `json:"faultFugitive"`

	Known Field `json:"-"`
}

// Has reports whether the decoder produced every field in fld.
func (f Frame) Has(fld Field) bool {
	return f.Known&fld == fld
}

// FaultNames lists the active faults of every known fault byte.
// Intermittent faults are prefixed with "fugitive:".
func (f Frame) FaultNames() []string {
	var out []string
	if f.Has(FieldFault0) {
		out = append(out, f.Fault0.Names()...)
	}
	if f.Has(FieldFault1) {
		out = append(out, f.Fault1.Names()...)
	}
	if f.Has(FieldFault2) {
		out = append(out, f.Fault2.Names()...)
	}
	if f.Has(FieldFault3) {
		out = append(out, f.Fault3.Names()...)
	}
	if f.Has(FieldFault4) {
		out = append(out, f.Fault4.Names()...)
	}
	if f.Has(FieldFaultFugitive) {
		for _, n := range f.FaultFugitive.Names() {
			out = append(out, "fugitive:"+n)
		}
	}
	return out
}
