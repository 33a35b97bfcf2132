package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/mqtt"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// Logger is the interface for structured logging within the shadow package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Transport is the slice of the MQTT client the shadow client needs.
// *mqtt.Client satisfies it; tests substitute a loopback.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Config identifies the thing and QoS the client operates with.
type Config struct {
	// TopicPrefix is the shadow topic namespace. Empty selects the
	// default prefix.
	TopicPrefix string

	// Thing is the thing name in shadow topics.
	Thing string

	// QoS is the quality of service for shadow publishes and
	// subscriptions.
	QoS byte
}

// Stats is a snapshot of client counters.
type Stats struct {
	ReportsSent    uint64
	DeltasReceived uint64
	ValuesSkipped  uint64
}

// Client is the bridge side of the shadow protocol. It implements the
// aggregator's remote client contract.
type Client struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	logger    Logger
	sink      diag.Sink

	mu      sync.Mutex
	handler func(desired *property.Document)
	started bool

	reportsSent    atomic.Uint64
	deltasReceived atomic.Uint64
	valuesSkipped  atomic.Uint64
}

// New creates a shadow client over the given transport. A nil logger or
// sink disables that output.
func New(transport Transport, cfg Config, logger Logger, sink diag.Sink) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Client{
		transport: transport,
		topics:    mqtt.NewTopics(cfg.TopicPrefix, cfg.Thing),
		qos:       cfg.QoS,
		logger:    logger,
		sink:      sink,
	}
}

// OnDelta installs the handler invoked for each incoming delta document.
// Must be called before Start.
func (c *Client) OnDelta(handler func(desired *property.Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start subscribes to the delta topics and requests the full desired
// document so changes made while the bridge was offline are applied.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.handler == nil {
		c.mu.Unlock()
		return ErrNoHandler
	}
	c.started = true
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("shadow: start cancelled: %w", err)
	}

	if err := c.transport.Subscribe(c.topics.ShadowDelta(), c.qos, c.handleDelta); err != nil {
		return fmt.Errorf("shadow: subscribing to delta topic: %w", err)
	}
	if err := c.transport.Subscribe(c.topics.ShadowGetAccepted(), c.qos, c.handleGetAccepted); err != nil {
		return fmt.Errorf("shadow: subscribing to get accepted topic: %w", err)
	}

	// Request the current document. Failure is not fatal: deltas still
	// arrive for changes made from now on.
	if err := c.transport.Publish(c.topics.ShadowGet(), []byte("{}"), c.qos, false); err != nil {
		c.logger.Warn("shadow get request failed", "error", err)
	}

	c.logger.Info("shadow client started",
		"delta_topic", c.topics.ShadowDelta(),
		"update_topic", c.topics.ShadowUpdate(),
	)
	return nil
}

// Stop unsubscribes from the delta topics. It does not close the
// transport; the caller owns the MQTT connection.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	if err := c.transport.Unsubscribe(c.topics.ShadowDelta()); err != nil {
		c.logger.Warn("delta unsubscribe failed", "error", err)
	}
	if err := c.transport.Unsubscribe(c.topics.ShadowGetAccepted()); err != nil {
		c.logger.Warn("get accepted unsubscribe failed", "error", err)
	}
}

// reportPayload is the shadow update wire format.
type reportPayload struct {
	State reportState `json:"state"`
}

type reportState struct {
	Reported map[string]any `json:"reported"`
}

// ReportState publishes a reported-state fragment to the update topic.
func (c *Client) ReportState(doc *property.Document) error {
	payload, err := json.Marshal(reportPayload{
		State: reportState{Reported: doc.Interface()},
	})
	if err != nil {
		return fmt.Errorf("shadow: encoding report: %w", err)
	}

	if err := c.transport.Publish(c.topics.ShadowUpdate(), payload, c.qos, false); err != nil {
		return fmt.Errorf("shadow: publishing report: %w", err)
	}

	c.reportsSent.Add(1)
	c.logger.Debug("reported state", "properties", doc.Len())
	return nil
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		ReportsSent:    c.reportsSent.Load(),
		DeltasReceived: c.deltasReceived.Load(),
		ValuesSkipped:  c.valuesSkipped.Load(),
	}
}

// deltaPayload is the shadow delta wire format: a flat state section of
// properties that diverge from reported.
type deltaPayload struct {
	State map[string]any `json:"state"`
}

// handleDelta parses a delta message and delivers the desired document.
func (c *Client) handleDelta(topic string, payload []byte) error {
	var msg deltaPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("shadow: decoding delta on %s: %w", topic, err)
	}
	c.deliver(msg.State)
	return nil
}

// getAcceptedPayload is the full document returned after a get request.
// Only the desired section matters to the bridge.
type getAcceptedPayload struct {
	State struct {
		Desired map[string]any `json:"desired"`
	} `json:"state"`
}

// handleGetAccepted treats the full desired section as one large delta.
// Redundant values are harmless: adapters suppress no-op changes.
func (c *Client) handleGetAccepted(topic string, payload []byte) error {
	var msg getAcceptedPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("shadow: decoding get response on %s: %w", topic, err)
	}
	c.deliver(msg.State.Desired)
	return nil
}

// deliver converts a raw state section per key and hands the resulting
// document to the delta handler. Inexpressible values are skipped and
// recorded; the rest of the section still applies.
func (c *Client) deliver(raw map[string]any) {
	if len(raw) == 0 {
		return
	}

	desired := property.NewDocument()
	for _, name := range sortedKeys(raw) {
		v, err := property.FromInterface(raw[name])
		if err != nil {
			c.valuesSkipped.Add(1)
			c.sink.Record(diag.New(diag.KindInvalidValue, "", name,
				fmt.Sprintf("delta value rejected: %v", err)))
			continue
		}
		desired.Set(name, v)
	}
	if desired.Len() == 0 {
		return
	}

	c.deltasReceived.Add(1)

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(desired)
	}
}

// sortedKeys gives deltas a stable property order. JSON object order is
// not preserved by encoding/json maps.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
