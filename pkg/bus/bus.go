// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus decouples channel webhooks from the dispatcher. Publishing
// never blocks longer than publishTimeout; overflow is counted and dropped.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	closed   bool
	dropped  droppedCounters
	mu       sync.RWMutex
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

const publishTimeout = 100 * time.Millisecond

const defaultBufferSize = 100

func NewMessageBus() *MessageBus {
	return NewMessageBusWithSize(defaultBufferSize)
}

// NewMessageBusWithSize buffers size messages in each direction. A size of
// zero or less falls back to the default.
func NewMessageBusWithSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- msg:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
		case <-timer.C:
			mb.dropped.inbound.Add(1)
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.outbound <- msg:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.outbound <- msg:
		case <-timer.C:
			mb.dropped.outbound.Add(1)
		}
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		if !ok {
			return OutboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.inbound.Load()
}

func (mb *MessageBus) DroppedOutbound() uint64 {
	return mb.dropped.outbound.Load()
}
