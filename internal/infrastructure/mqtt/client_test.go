package mqtt

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/calder-iot/shadowbridge/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests require a running Mosquitto at 127.0.0.1:1883 and
// skip themselves otherwise.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "shadowbridge-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no local broker is listening.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker at 127.0.0.1:1883")
	}
	conn.Close()
}

func TestConnect(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestClose(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestHealthCheck(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishValidation(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Publish("test/topic", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.Publish("test/topic", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeTracking(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := NewTopics("", "test-thing").ShadowDelta()
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false, want true")
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe(), want false")
	}
}

func TestSubscribeValidation(t *testing.T) {
	requireBroker(t)
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.Subscribe("", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("t", 3, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	requireBroker(t)
	cfg := testConfig()
	cfg.Broker.ClientID = "shadowbridge-test-pub"
	pubClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	cfg.Broker.ClientID = "shadowbridge-test-sub"
	subClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	topic := NewTopics("", "roundtrip").ShadowUpdate()
	expectedPayload := `{"state":{"reported":{"power":true}}}`
	received := make(chan string, 1)

	err = subClient.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.PublishString(topic, expectedPayload, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != expectedPayload {
			t.Errorf("received payload = %q, want %q", payload, expectedPayload)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name:     "shadow update",
			builder:  NewTopics("", "cinema").ShadowUpdate,
			expected: "shadowbridge/things/cinema/shadow/update",
		},
		{
			name:     "shadow delta",
			builder:  NewTopics("", "cinema").ShadowDelta,
			expected: "shadowbridge/things/cinema/shadow/delta",
		},
		{
			name:     "shadow get",
			builder:  NewTopics("", "cinema").ShadowGet,
			expected: "shadowbridge/things/cinema/shadow/get",
		},
		{
			name:     "shadow get accepted",
			builder:  NewTopics("", "cinema").ShadowGetAccepted,
			expected: "shadowbridge/things/cinema/shadow/get/accepted",
		},
		{
			name:     "custom prefix",
			builder:  NewTopics("$aws/things", "cinema").ShadowUpdate,
			expected: "$aws/things/cinema/shadow/update",
		},
		{
			name:     "system status",
			builder:  SystemStatus,
			expected: "shadowbridge/system/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("topic = %q, want %q", got, tt.expected)
			}
		})
	}
}
