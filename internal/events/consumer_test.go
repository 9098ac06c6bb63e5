package events

import (
	"context"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Storefront/internal/recent"
)

func newTestConsumer(t *testing.T) (*Consumer, *recent.MemKV) {
	t.Helper()

	kv := recent.NewMemKV()
	return &Consumer{kv: kv, log: zap.NewNop()}, kv
}

func historyFor(t *testing.T, kv *recent.MemKV, visitorID string) []recent.Product {
	t.Helper()

	cache := recent.NewCache(kv, recentKeyPrefix+visitorID, zap.NewNop())
	return cache.List(context.Background())
}

func TestProcessMessage_RecordsView(t *testing.T) {
	c, kv := newTestConsumer(t)

	msg := kafkago.Message{Value: []byte(`{
		"visitor_id": "v_1",
		"product": {"handle":"mug","title":"Mug","price":"¥1,000","url":"/products/mug"}
	}`)}

	require.NoError(t, c.processMessage(context.Background(), msg))

	got := historyFor(t, kv, "v_1")
	require.Len(t, got, 1)
	assert.Equal(t, "mug", got[0].Handle)
}

func TestProcessMessage_KeepsVisitorsSeparate(t *testing.T) {
	c, kv := newTestConsumer(t)

	for _, raw := range []string{
		`{"visitor_id":"v_1","product":{"handle":"mug","title":"Mug","price":"¥1,000","url":"/u"}}`,
		`{"visitor_id":"v_2","product":{"handle":"plate","title":"Plate","price":"¥2,000","url":"/u"}}`,
	} {
		require.NoError(t, c.processMessage(context.Background(), kafkago.Message{Value: []byte(raw)}))
	}

	require.Len(t, historyFor(t, kv, "v_1"), 1)
	require.Len(t, historyFor(t, kv, "v_2"), 1)
	assert.Equal(t, "plate", historyFor(t, kv, "v_2")[0].Handle)
}

func TestProcessMessage_DropsGarbageWithoutDLQ(t *testing.T) {
	c, kv := newTestConsumer(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{broken`},
		{"missing visitor", `{"product":{"handle":"mug"}}`},
		{"missing handle", `{"visitor_id":"v_1","product":{"title":"Mug"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// nil error means the offset gets committed: garbage is
			// never retried.
			require.NoError(t, c.processMessage(context.Background(), kafkago.Message{Value: []byte(tt.raw)}))
		})
	}

	assert.Empty(t, historyFor(t, kv, "v_1"))
}
