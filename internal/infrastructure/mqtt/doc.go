// Package mqtt provides MQTT client connectivity for Gray Logic Power.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Logic Power publishes transition and phase diagnostics onto the
// site MQTT bus so dashboards and sibling services can observe system
// sleep/wake progress without polling the HTTP API.
//
//	Gray Logic Power → MQTT Broker → Dashboards / Sibling services
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all phase progress events
//	err = client.Subscribe(mqtt.Topics{}.AllPhaseEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish transition start
//	topic := mqtt.Topics{}.TransitionBegin()
//	client.Publish(topic, []byte(`{"event":"suspend"}`), 1, false)
package mqtt
