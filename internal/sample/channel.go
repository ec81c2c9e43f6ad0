package sample

import (
	"fmt"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

// Selector extracts one channel value from a frame and says whether it
// lies in the alert region.
type Selector func(f ecu.Frame) (value float64, alert bool)

// Channel is one plotted quantity with its own history.
type Channel struct {
	Name string  `json:"name"`
	Unit string  `json:"unit"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`

	// Field must be known in a frame for it to yield a value. Zero means
	// the selector is always applied.
	Field  ecu.Field `json:"-"`
	Select Selector  `json:"-"`

	hist *History
}

// NewChannel attaches a history of the given capacity to c.
func NewChannel(c Channel, capacity int) (*Channel, error) {
	if c.Select == nil {
		return nil, fmt.Errorf("sample: channel %q has no selector", c.Name)
	}
	h, err := NewHistory(capacity)
	if err != nil {
		return nil, fmt.Errorf("sample: channel %q: %w", c.Name, err)
	}
	c.hist = h
	return &c, nil
}

// Sample appends the channel value of f. A frame lacking the channel's
// field records NoValue so the plot shows a gap instead of a zero.
func (c *Channel) Sample(f ecu.Frame, at time.Time) {
	if c.Field != 0 && !f.Has(c.Field) {
		c.hist.Push(NoValue.Value, false, at)
		return
	}
	v, alert := c.Select(f)
	c.hist.Push(v, alert, at)
}

// History returns the samples recorded for c.
func (c *Channel) History() *History { return c.hist }

// Channels fans each frame out to every channel's history.
type Channels []*Channel

// Publish implements ecu.Sink.
func (cs Channels) Publish(f ecu.Frame, at time.Time) {
	for _, c := range cs {
		c.Sample(f, at)
	}
}

// Lookup returns the channel called name, or nil.
func (cs Channels) Lookup(name string) *Channel {
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Thresholds set the alert regions of the default channels.
type Thresholds struct {
	RPMWarn       float64 `yaml:"rpm_warn" json:"rpmWarn"`
	WaterTempWarn float64 `yaml:"water_temp_warn" json:"waterTempWarn"` // °C
	BatteryMax    float64 `yaml:"battery_max" json:"batteryMax"`         // V
}

// DefaultThresholds match the stock dashboard.
func DefaultThresholds() Thresholds {
	return Thresholds{RPMWarn: 5500, WaterTempWarn: 105, BatteryMax: 15}
}

// DefaultChannels builds the stock plot set.
func DefaultChannels(th Thresholds, capacity int) (Channels, error) {
	defs := []Channel{
		{
			Name: "RPM", Unit: "rpm", Min: 0, Max: 6000, Step: 1500, Field: ecu.FieldRPM,
			Select: func(f ecu.Frame) (float64, bool) {
				return float64(f.RPM), th.RPMWarn > 0 && float64(f.RPM) > th.RPMWarn
			},
		},
		{
			Name: "MAP", Unit: "mbar", Min: 0, Max: 1020, Step: 255, Field: ecu.FieldMAP,
			Select: func(f ecu.Frame) (float64, bool) { return float64(f.MAP), false },
		},
		{
			Name: "Throttle", Unit: "%", Min: 0, Max: 100, Step: 20, Field: ecu.FieldThrottle,
			Select: func(f ecu.Frame) (float64, bool) {
				return float64(f.Throttle), f.InFlags&ecu.InThrottle0 != 0
			},
		},
		{
			Name: "Lambda", Unit: "mV", Min: 0, Max: 1020, Step: 255, Field: ecu.FieldLambda,
			Select: func(f ecu.Frame) (float64, bool) {
				return f.Lambda, f.OutFlags&ecu.OutLambdaLoop == 0
			},
		},
		{
			Name: "Battery", Unit: "V", Min: 8, Max: 16, Step: 2, Field: ecu.FieldBattery,
			Select: func(f ecu.Frame) (float64, bool) {
				return f.Battery, th.BatteryMax > 0 && f.Battery > th.BatteryMax
			},
		},
		{
			Name: "Water", Unit: "°C", Min: 0, Max: 120, Step: 30, Field: ecu.FieldWaterTemp,
			Select: func(f ecu.Frame) (float64, bool) {
				return f.WaterTemp, th.WaterTempWarn > 0 && f.WaterTemp > th.WaterTempWarn
			},
		},
	}

	out := make(Channels, 0, len(defs))
	for _, d := range defs {
		c, err := NewChannel(d, capacity)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
