// Package mqtt provides MQTT client connectivity for Shadowbridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the transport to the remote state service: reported-state
// fragments go out on the shadow update topic, desired-state deltas come
// back on the shadow delta topic. The broker decouples the bridge from the
// service implementation.
//
//	Shadowbridge ↔ MQTT Broker ↔ Remote State Service
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.Thing.TopicPrefix, cfg.Thing.Name)
//	err = client.Subscribe(topics.ShadowDelta(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("delta: %s", payload)
//	        return nil
//	    })
//
//	client.Publish(topics.ShadowUpdate(),
//	    []byte(`{"state":{"reported":{"power":true}}}`), 1, false)
package mqtt
