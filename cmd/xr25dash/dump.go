package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/xr25-dash/internal/capture"
	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

func dump(w io.Writer, opts *options, path string) error {
	name := opts.decoder
	if name == "" {
		name = loadSettings(opts).ECU.Decoder
	}
	dec, err := ecu.NewRegistry().Lookup(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	msgs := make(chan capture.Message, 100)

	var g errgroup.Group
	g.Go(func() error { return processMsgs(w, dec, msgs) })
	g.Go(func() error { return capture.ReadIn(msgs, f) })

	return g.Wait()
}

// processMsgs prints one line per recorded frame. It keeps draining msgs
// after a write error so the reader never blocks.
func processMsgs(w io.Writer, dec ecu.Decoder, msgs <-chan capture.Message) error {
	var werr error
	for msg := range msgs {
		if werr != nil {
			continue
		}
		frame, ok := dec.Decode(msg.Data)
		status := "ok"
		if !ok {
			status = "rejected"
		}
		_, werr = fmt.Fprintf(w, "%s [%3d] %-8s %s\n",
			msg.Timestamp.Format("15:04:05.000"), len(msg.Data), status, render(frame))
	}
	return werr
}

func render(f ecu.Frame) string {
	var parts []string
	add := func(fld ecu.Field, key, val string) {
		if f.Has(fld) {
			parts = append(parts, key+"="+val)
		}
	}
	add(ecu.FieldRPM, "rpm", strconv.Itoa(f.RPM))
	add(ecu.FieldMAP, "map", strconv.Itoa(f.MAP))
	add(ecu.FieldThrottle, "tps", strconv.Itoa(f.Throttle))
	add(ecu.FieldAdvance, "adv", strconv.Itoa(f.Advance))
	add(ecu.FieldInjection, "inj", strconv.Itoa(f.InjectionUS))
	add(ecu.FieldWaterTemp, "water", strconv.FormatFloat(f.WaterTemp, 'f', 1, 64))
	add(ecu.FieldAirTemp, "air", strconv.FormatFloat(f.AirTemp, 'f', 1, 64))
	add(ecu.FieldBattery, "batt", strconv.FormatFloat(f.Battery, 'f', 2, 64))
	add(ecu.FieldLambda, "lambda", strconv.FormatFloat(f.Lambda, 'f', 0, 64))
	add(ecu.FieldSpeed, "speed", strconv.Itoa(f.Speed))
	if faults := f.FaultNames(); len(faults) > 0 {
		parts = append(parts, "faults="+strings.Join(faults, ","))
	}
	return strings.Join(parts, " ")
}
