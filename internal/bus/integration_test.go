package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMessageSerialization(t *testing.T) {
	payload := map[string]interface{}{
		"amount":   1000.50,
		"currency": "USD",
		"sender":   "BANK001",
		"receiver": "BANK002",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	var roundTripped map[string]interface{}
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if roundTripped["amount"].(float64) != 1000.50 {
		t.Error("amount mismatch after round-trip")
	}
	if roundTripped["currency"].(string) != "USD" {
		t.Error("currency mismatch after round-trip")
	}
}

// TestDLQEntryFormat exercises the same map shape Producer.PublishToDLQ
// serializes, since that method needs a live NATS connection to call
// directly.
func TestDLQEntryFormat(t *testing.T) {
	dlqEntry := map[string]interface{}{
		"original_message": map[string]interface{}{"id": "MSG-001", "amount": 1000.00},
		"failure_reason":   "timeout",
		"retry_count":      3,
		"failed_at":        time.Now().Format(time.RFC3339),
		"reprocessable":    isReprocessable("timeout"),
	}

	data, err := json.Marshal(dlqEntry)
	if err != nil {
		t.Fatalf("failed to marshal DLQ entry: %v", err)
	}

	var roundTripped map[string]interface{}
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("failed to unmarshal DLQ entry: %v", err)
	}

	if roundTripped["failure_reason"].(string) != "timeout" {
		t.Error("failure reason mismatch")
	}
	if roundTripped["retry_count"].(float64) != 3 {
		t.Error("retry count mismatch")
	}
	if roundTripped["reprocessable"].(bool) != true {
		t.Error("reprocessable flag should be true for timeout")
	}
}

func TestIsReprocessableTransientErrors(t *testing.T) {
	for _, err := range []string{
		"connection timeout",
		"database unavailable",
		"rate_limit exceeded",
		"temporary failure",
		"timeout error",
	} {
		t.Run(err, func(t *testing.T) {
			if !isReprocessable(err) {
				t.Errorf("error %q should be reprocessable", err)
			}
		})
	}
}

func TestIsReprocessablePermanentErrors(t *testing.T) {
	for _, err := range []string{
		"invalid data format",
		"schema validation failed",
		"duplicate key violation",
		"business rule violation",
		"insufficient funds",
	} {
		t.Run(err, func(t *testing.T) {
			if isReprocessable(err) {
				t.Errorf("error %q should not be reprocessable", err)
			}
		})
	}
}

func TestContainsFunction(t *testing.T) {
	tests := []struct {
		s, substr string
		expected  bool
	}{
		{"connection timeout", "timeout", true},
		{"connection timeout", "connection", true},
		{"hello world", "world", true},
		{"hello world", "goodbye", false},
		{"", "test", false},
	}

	for _, tt := range tests {
		t.Run(tt.s+"_"+tt.substr, func(t *testing.T) {
			if result := contains(tt.s, tt.substr); result != tt.expected {
				t.Errorf("contains(%q, %q) = %v, want %v", tt.s, tt.substr, result, tt.expected)
			}
		})
	}
}

func TestMessageStructure(t *testing.T) {
	msg := &Message{
		ID:             "MSG-001",
		Type:           "payment",
		CorridorID:     "USD-EUR",
		BankID:         "BANK001",
		IdempotencyKey: "key-123",
		Timestamp:      time.Now(),
		Headers:        map[string]string{"X-Custom": "value"},
	}
	msg.Payload, _ = json.Marshal(map[string]interface{}{"amount": 1000.50, "currency": "USD"})

	if msg.ID == "" || msg.Type == "" || msg.CorridorID == "" || msg.BankID == "" || msg.IdempotencyKey == "" {
		t.Error("expected all identifying fields to be set")
	}
	if len(msg.Payload) == 0 {
		t.Error("payload should not be empty")
	}
	if len(msg.Headers) == 0 {
		t.Error("headers should not be empty")
	}
}

// TestMessageHandlerCancellation exercises the same ctx.Done() pattern
// Consumer.processMessage's 25s handler timeout relies on.
func TestMessageHandlerCancellation(t *testing.T) {
	handler := MessageHandler(func(ctx context.Context, msg *Message) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler(ctx, &Message{ID: "MSG-001"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want context.Canceled", err)
	}
}

func TestMaxRetriesToDLQThreshold(t *testing.T) {
	const maxRetries = 5

	tests := []struct {
		deliveryCount uint64
		shouldDLQ     bool
	}{
		{1, false}, {4, false}, {5, true}, {6, true},
	}

	for _, tt := range tests {
		shouldDLQ := tt.deliveryCount >= uint64(maxRetries)
		if shouldDLQ != tt.shouldDLQ {
			t.Errorf("delivery %d: shouldDLQ = %v, want %v", tt.deliveryCount, shouldDLQ, tt.shouldDLQ)
		}
	}
}

func BenchmarkIsReprocessable(b *testing.B) {
	errs := []string{"timeout", "connection error", "unavailable", "invalid data", "rate_limit"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = isReprocessable(errs[i%len(errs)])
	}
}
