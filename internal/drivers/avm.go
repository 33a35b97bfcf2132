package drivers

import (
	"fmt"
	"strconv"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// AVMDriver is the registry name of the Anthem AVM preamplifier driver.
const AVMDriver = "anthem-avm"

func init() {
	mustRegister(AVMDriver, Descriptor{
		Build:    NewAVM,
		Defaults: Defaults{Terminator: "\n"},
	})
}

// avmInputNames maps the AVM's input selector digits onto source names.
var avmInputNames = map[string]string{
	"0": "CD",
	"3": "TAPE",
	"5": "DVD",
	"6": "TV",
	"7": "SAT",
	"8": "VCR",
	"9": "AUX",
}

// avmInputCodes is the outbound inverse of avmInputNames.
var avmInputCodes = func() map[string]string {
	m := make(map[string]string, len(avmInputNames))
	for code, name := range avmInputNames {
		m[name] = code
	}
	return m
}()

// avmVolumeSteps maps volume deciles onto the AVM's decibel scale.
// Index i is the dB setting for volume i*10.
var avmVolumeSteps = []int{-50, -35, -25, -21, -18, -12, -8, -4, 0, 5, 10}

// NewAVM builds an adapter for the Anthem AVM series preamplifier.
//
// The AVM volunteers a status record for every front-panel or serial
// change, so the driver runs asynchronously. Properties:
//
//	powerState  bool
//	input       symbol (CD, TAPE, DVD, TV, SAT, VCR, AUX)
//	volume      int 0..100, mapped onto the dB scale in avmVolumeSteps
//	muted       bool
func NewAVM(name string, logger adapter.Logger) (*adapter.Adapter, error) {
	a := adapter.New(name, logger)

	inbound := []struct {
		pattern    string
		properties []string
	}{
		{`P1P([01])`, []string{"powerState"}},
		{`P1S([0-9])`, []string{"input"}},
		{`P1VM([+-][0-9]{1,2}(?:\.[0-9]{1,2})?)`, []string{"volume"}},
		{`P1M([01])`, []string{"muted"}},
		// Response to the full status query P1? carries input, volume and
		// mute in one record. Decoder fields D and E are ignored.
		{`P1S([0-9])V([+-][0-9]{2}\.[0-9])M([01])D[0-9]E[0-9]`, []string{"input", "volume", "muted"}},
	}
	for _, r := range inbound {
		if err := a.RegisterInbound(r.pattern, r.properties, avmConvert); err != nil {
			return nil, fmt.Errorf("avm: registering inbound %q: %w", r.pattern, err)
		}
	}

	outbound := []struct {
		property string
		format   string
		convert  adapter.FormatFunc
	}{
		{"powerState", "P1P%s", avmFormatToggle},
		{"input", "P1S%s", avmFormatInput},
		{"volume", "P1VM%d", avmFormatVolume},
		{"muted", "P1M%s", avmFormatToggle},
	}
	for _, r := range outbound {
		if err := a.RegisterOutbound(r.property, r.format, r.convert); err != nil {
			return nil, fmt.Errorf("avm: registering outbound %s: %w", r.property, err)
		}
	}

	// The AVM answers the full status query only while on; off, it only
	// answers the power query.
	a.SetQueryStatus(func(state *property.Document) []string {
		if v, ok := state.Get("powerState"); ok && v.Truth() {
			return []string{"P1?"}
		}
		return []string{"P1P?"}
	})

	return a, nil
}

// avmConvert decodes one captured field by property name. The combined
// status rule funnels all three of its captures through here.
func avmConvert(propertyName, capture string) (property.Value, error) {
	switch propertyName {
	case "powerState", "muted":
		switch capture {
		case "1":
			return property.Bool(true), nil
		case "0":
			return property.Bool(false), nil
		}
		return property.Unknown, fmt.Errorf("%q is not a valid %s flag", capture, propertyName)

	case "input":
		name, ok := avmInputNames[capture]
		if !ok {
			return property.Unknown, fmt.Errorf("%q is not a known input selector", capture)
		}
		return property.Symbol(name), nil

	case "volume":
		db, err := strconv.ParseFloat(capture, 64)
		if err != nil {
			return property.Unknown, fmt.Errorf("%q is not a decibel level", capture)
		}
		return property.Int(int64(avmVolumeFromDecibels(db))), nil
	}
	return property.Unknown, fmt.Errorf("no decoder for property %s", propertyName)
}

// avmVolumeFromDecibels maps a reported dB level onto the 0..100 volume
// scale: the first step at or above the level wins.
func avmVolumeFromDecibels(db float64) int {
	for i, step := range avmVolumeSteps {
		if db <= float64(step) {
			return i * 10
		}
	}
	return 100
}

// avmFormatToggle renders a bool as the AVM's 1/0 flag.
func avmFormatToggle(v property.Value) (any, error) {
	if v.Kind() != property.KindBool {
		return nil, fmt.Errorf("%s is not on or off", v)
	}
	if v.Truth() {
		return "1", nil
	}
	return "0", nil
}

// avmFormatInput renders an input name as the AVM's selector digit.
func avmFormatInput(v property.Value) (any, error) {
	code, ok := avmInputCodes[v.Text()]
	if !ok {
		return nil, fmt.Errorf("%s is not a selectable input", v)
	}
	return code, nil
}

// avmFormatVolume renders a 0..100 volume as a dB setting, clamping out
// of range values to the ends of the scale.
func avmFormatVolume(v property.Value) (any, error) {
	if v.Kind() != property.KindInt {
		return nil, fmt.Errorf("%s is not a volume level", v)
	}
	idx := int(v.Int64() / 10)
	if idx < 0 {
		idx = 0
	}
	if idx > len(avmVolumeSteps)-1 {
		idx = len(avmVolumeSteps) - 1
	}
	return avmVolumeSteps[idx], nil
}
