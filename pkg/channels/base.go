package channels

import (
	"context"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// UserPusher is implemented by channels that can start a conversation with a
// user id outside any reply context.
type UserPusher interface {
	PushToUser(ctx context.Context, userID, text string) error
}

type BaseChannel struct {
	config    interface{}
	bus       *bus.MessageBus
	running   bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, config interface{}, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		config:    config,
		bus:       bus,
		name:      name,
		allowList: allowList,
		running:   false,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate != "" && candidate == senderID {
			return true
		}
	}
	return false
}

// HandleMessage stamps the channel name on msg and publishes it when the
// sender passes the allow list.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if !c.IsAllowed(msg.SenderID) {
		return false
	}
	msg.Channel = c.name
	if msg.ChatID == "" {
		msg.ChatID = msg.SenderID
	}
	if msg.Kind == "" {
		msg.Kind = bus.KindText
	}
	c.bus.PublishInbound(msg)
	return true
}

func (c *BaseChannel) setRunning(running bool) {
	c.running = running
}
