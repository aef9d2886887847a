package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBusWithSize(4)
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		mb.PublishInbound(InboundMessage{Channel: "line", SenderID: "U1", ChatID: "U1", Kind: KindText, Content: "hi"})
	}

	mb.PublishInbound(InboundMessage{Channel: "line", SenderID: "U1", ChatID: "U1", Kind: KindText, Content: "overflow"})
	assert.Equal(t, uint64(1), mb.DroppedInbound())
}

func TestMessageBus_PublishOutboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBusWithSize(4)
	defer mb.Close()

	for i := 0; i < cap(mb.outbound); i++ {
		mb.PublishOutbound(OutboundMessage{Channel: "line", ChatID: "U1", Content: "msg"})
	}

	mb.PublishOutbound(OutboundMessage{Channel: "line", ChatID: "U1", Content: "overflow"})
	assert.Equal(t, uint64(1), mb.DroppedOutbound())
}

func TestNewMessageBusWithSize_NonPositiveFallsBackToDefault(t *testing.T) {
	mb := NewMessageBusWithSize(0)
	defer mb.Close()
	assert.Equal(t, defaultBufferSize, cap(mb.inbound))
	assert.Equal(t, defaultBufferSize, cap(mb.outbound))

	sized := NewMessageBusWithSize(7)
	defer sized.Close()
	assert.Equal(t, 7, cap(sized.inbound))
}

func TestMessageBus_RoundTripKeepsReplyFields(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{
		Channel:    "line",
		SenderID:   "U1",
		Kind:       KindLocation,
		Latitude:   25.03,
		Longitude:  121.56,
		ReplyToken: "rt-1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, KindLocation, msg.Kind)
	assert.Equal(t, "rt-1", msg.ReplyToken)
	assert.InDelta(t, 25.03, msg.Latitude, 1e-9)
}

func TestMessageBus_ConsumeRespectsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	_, ok := mb.ConsumeInbound(context.Background())
	assert.False(t, ok)
	_, ok = mb.SubscribeOutbound(context.Background())
	assert.False(t, ok)

	mb.PublishInbound(InboundMessage{Content: "after close"})
	assert.Equal(t, uint64(0), mb.DroppedInbound())
}
