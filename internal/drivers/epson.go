package drivers

import (
	"fmt"
	"time"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// EpsonDriver is the registry name of the Epson projector driver.
const EpsonDriver = "epson-projector"

func init() {
	mustRegister(EpsonDriver, Descriptor{
		Build: NewEpson,
		Defaults: Defaults{
			Synchronous: true,
			// Responses end in "\r:" (the ESC/VP21 prompt); commands
			// end in a bare "\r".
			Terminator:      "\r:",
			WriteTerminator: "\r",
		},
	})
}

// epsonNotReadyProbe is how often readiness is reprobed while the lamp
// warms or cools. Transitions take up to 30 seconds.
const epsonNotReadyProbe = 2 * time.Second

// epsonPowerStates maps the PWR= status codes onto state symbols.
var epsonPowerStates = map[string]string{
	"00": "OFF",
	"01": "ON",
	"02": "WARMING",
	"03": "COOLING",
	"04": "STANDBY",
	"05": "ABNORMAL",
}

// epsonSourceNames maps the SOURCE= codes onto input symbols.
var epsonSourceNames = map[string]string{
	"30": "HDMI1",
	"A0": "HDMI2",
	"41": "VIDEO",
	"42": "S-VIDEO",
}

var epsonSourceCodes = func() map[string]string {
	m := make(map[string]string, len(epsonSourceNames))
	for code, name := range epsonSourceNames {
		m[name] = code
	}
	return m
}()

// NewEpson builds an adapter for Epson home cinema projectors speaking
// ESC/VP21 over serial.
//
// The projector never volunteers state, so the driver runs synchronously:
// every command is followed by one bounded read for its response.
// Properties:
//
//	projPowerState  symbol (OFF, ON, WARMING, COOLING, STANDBY, ABNORMAL)
//	projInput       symbol (HDMI1, HDMI2, VIDEO, S-VIDEO)
//
// Commands are refused while the lamp warms or cools; the readiness probe
// defers writes until the projector settles.
func NewEpson(name string, logger adapter.Logger) (*adapter.Adapter, error) {
	a := adapter.New(name, logger)

	if err := a.RegisterInbound(`PWR=([0-9]{2})`, []string{"projPowerState"}, epsonConvert); err != nil {
		return nil, fmt.Errorf("epson: registering power rule: %w", err)
	}
	if err := a.RegisterInbound(`SOURCE=([a-zA-Z0-9]{2})`, []string{"projInput"}, epsonConvert); err != nil {
		return nil, fmt.Errorf("epson: registering source rule: %w", err)
	}

	if err := a.RegisterOutbound("projPowerState", "PWR %s", epsonFormatPower); err != nil {
		return nil, fmt.Errorf("epson: registering power command: %w", err)
	}
	if err := a.RegisterOutbound("projInput", "SOURCE %s", epsonFormatSource); err != nil {
		return nil, fmt.Errorf("epson: registering source command: %w", err)
	}

	// Only a powered projector answers the source query.
	a.SetQueryStatus(func(state *property.Document) []string {
		if v, ok := state.Get("projPowerState"); ok && v.Text() == "ON" {
			return []string{"PWR?", "SOURCE?"}
		}
		return []string{"PWR?"}
	})

	// Accepting commands requires a settled lamp. Unknown counts as ready
	// so the initial power command can reach a freshly connected device.
	a.SetReady(func(state *property.Document) adapter.Readiness {
		v, ok := state.Get("projPowerState")
		if !ok || v.IsUnknown() {
			return adapter.ReadyNow
		}
		switch v.Text() {
		case "ON", "OFF":
			return adapter.ReadyNow
		}
		return adapter.NotReadyFor(epsonNotReadyProbe)
	})

	return a, nil
}

// epsonConvert decodes one status code by property name.
func epsonConvert(propertyName, capture string) (property.Value, error) {
	switch propertyName {
	case "projPowerState":
		state, ok := epsonPowerStates[capture]
		if !ok {
			return property.Unknown, fmt.Errorf("%q is not a known power status", capture)
		}
		return property.Symbol(state), nil

	case "projInput":
		name, ok := epsonSourceNames[capture]
		if !ok {
			return property.Unknown, fmt.Errorf("%q is not a known source code", capture)
		}
		return property.Symbol(name), nil
	}
	return property.Unknown, fmt.Errorf("no decoder for property %s", propertyName)
}

// epsonFormatPower accepts only the commandable power states. WARMING and
// the other transitional states are reports, not commands.
func epsonFormatPower(v property.Value) (any, error) {
	switch v.Text() {
	case "ON", "OFF":
		return v.Text(), nil
	}
	return nil, fmt.Errorf("%s is not a commandable power state", v)
}

// epsonFormatSource renders an input symbol as its ESC/VP21 source code.
func epsonFormatSource(v property.Value) (any, error) {
	code, ok := epsonSourceCodes[v.Text()]
	if !ok {
		return nil, fmt.Errorf("%s is not a selectable source", v)
	}
	return code, nil
}
