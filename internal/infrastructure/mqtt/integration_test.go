//go:build integration

package mqtt

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-power/internal/infrastructure/config"
)

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()

	client, err := Connect(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestIntegration_SubscriptionTracking verifies the bookkeeping that
// drives re-subscription after a reconnect.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectIntegration(t, "graypower-int-sub-track")

	topics := []string{
		"graypower/int/test/topic1",
		"graypower/int/test/topic2",
		"graypower/int/test/topic3",
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
		if !client.HasSubscription(topic) {
			t.Errorf("HasSubscription(%s) = false, want true", topic)
		}
	}
	if got := client.SubscriptionCount(); got != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
	if got := client.SubscriptionCount(); got != len(topics)-1 {
		t.Errorf("SubscriptionCount() after unsubscribe = %d, want %d", got, len(topics)-1)
	}
}

// TestIntegration_MessageRoundtrip verifies pub/sub end to end between
// two clients.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := connectIntegration(t, "graypower-int-pub")
	sub := connectIntegration(t, "graypower-int-sub")

	const topic = "graypower/int/roundtrip"
	const expected = "test-message-12345"

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Give the broker a moment to settle the subscription.
	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishString(topic, expected, 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

// TestIntegration_SetLogger verifies logger attach and detach.
func TestIntegration_SetLogger(t *testing.T) {
	client := connectIntegration(t, "graypower-int-logger")

	client.SetLogger(&captureLogger{})
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *captureLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
