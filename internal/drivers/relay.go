package drivers

import (
	"fmt"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// RelayDriver is the registry name of the single-channel relay driver.
const RelayDriver = "relay"

func init() {
	mustRegister(RelayDriver, Descriptor{
		Build:    NewRelay,
		Defaults: Defaults{Terminator: "\n"},
	})
}

// NewRelay builds an adapter for a single-channel relay board, the kind
// that drives a projection screen or curtain motor. One property:
//
//	relayOn  bool
//
// The board reports RELAYON or RELAYOFF after every switch and in answer
// to RELAY?, and takes the same two strings as commands.
func NewRelay(name string, logger adapter.Logger) (*adapter.Adapter, error) {
	a := adapter.New(name, logger)

	if err := a.RegisterInbound(`RELAY(ON|OFF)`, []string{"relayOn"}, relayConvert); err != nil {
		return nil, fmt.Errorf("relay: registering inbound rule: %w", err)
	}

	// Fixed-command rule: the convert picks the whole command string.
	if err := a.RegisterOutbound("relayOn", "", relayFormat); err != nil {
		return nil, fmt.Errorf("relay: registering outbound rule: %w", err)
	}

	a.SetQueryStatus(func(*property.Document) []string {
		return []string{"RELAY?"}
	})

	return a, nil
}

func relayConvert(_, capture string) (property.Value, error) {
	return property.Bool(capture == "ON"), nil
}

func relayFormat(v property.Value) (any, error) {
	if v.Kind() != property.KindBool {
		return nil, fmt.Errorf("%s is not on or off", v)
	}
	if v.Truth() {
		return "RELAYON", nil
	}
	return "RELAYOFF", nil
}
