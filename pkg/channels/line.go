// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/utils"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// lineAPI is the subset of the Messaging API the channel calls.
type lineAPI interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
	GetProfile(userID string) (*messaging_api.UserProfileResponse, error)
}

// LineChannel receives events through the webhook. Replies use the Reply API;
// scheduled messages use the Push API.
type LineChannel struct {
	*BaseChannel
	config config.LineConfig
	api    lineAPI
}

func NewLineChannel(cfg config.LineConfig, bus *bus.MessageBus) (*LineChannel, error) {
	if strings.TrimSpace(cfg.ChannelSecret) == "" || strings.TrimSpace(cfg.ChannelAccessToken) == "" {
		return nil, fmt.Errorf("channels.line.channel_secret and channel_access_token are required")
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("create LINE messaging client: %w", err)
	}
	return newLineChannel(cfg, bus, api), nil
}

func newLineChannel(cfg config.LineConfig, bus *bus.MessageBus, api lineAPI) *LineChannel {
	return &LineChannel{
		BaseChannel: NewBaseChannel("line", cfg, bus, cfg.AllowFrom),
		config:      cfg,
		api:         api,
	}
}

func (c *LineChannel) Start(ctx context.Context) error {
	logger.InfoC("line", "LINE channel ready for webhook events")
	c.setRunning(true)
	return nil
}

func (c *LineChannel) Stop(ctx context.Context) error {
	logger.InfoC("line", "Stopping LINE channel")
	c.setRunning(false)
	return nil
}

// WebhookHandler verifies the signature and publishes text and location
// events. It answers 400 when the request cannot be verified or parsed.
func (c *LineChannel) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cb, err := webhook.ParseRequest(c.config.ChannelSecret, r)
		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) {
				logger.ErrorC("line", "Webhook signature verification failed")
			} else {
				logger.ErrorCF("line", "Failed to parse webhook", map[string]interface{}{"error": err.Error()})
			}
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		for _, event := range cb.Events {
			c.handleEvent(event)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (c *LineChannel) handleEvent(event webhook.EventInterface) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		return
	}
	source, ok := e.Source.(webhook.UserSource)
	if !ok || source.UserId == "" {
		return
	}

	msg := bus.InboundMessage{
		SenderID:   source.UserId,
		ChatID:     source.UserId,
		ReplyToken: e.ReplyToken,
	}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		msg.Kind = bus.KindText
		msg.Content = m.Text
	case webhook.LocationMessageContent:
		msg.Kind = bus.KindLocation
		msg.Latitude = m.Latitude
		msg.Longitude = m.Longitude
	default:
		return
	}

	if !c.IsAllowed(msg.SenderID) {
		logger.DebugCF("line", "Message rejected by allowlist", map[string]interface{}{"user_id": msg.SenderID})
		return
	}

	profile, err := c.api.GetProfile(source.UserId)
	if err != nil {
		logger.ErrorCF("line", "Failed to fetch user profile", map[string]interface{}{
			"user_id": source.UserId,
			"error":   err.Error(),
		})
		return
	}
	msg.DisplayName = profile.DisplayName

	logger.DebugCF("line", "Received message", map[string]interface{}{
		"user_id":      msg.SenderID,
		"display_name": msg.DisplayName,
		"kind":         msg.Kind,
		"preview":      utils.Truncate(msg.Content, 50),
	})
	c.HandleMessage(msg)
}

// Send answers with the Reply API when the message carries a reply token and
// pushes otherwise. A failed reply is not retried as a push.
func (c *LineChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	messages := buildLineMessages(msg)
	if len(messages) == 0 {
		return nil
	}

	if msg.ReplyToken != "" {
		_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
			ReplyToken: msg.ReplyToken,
			Messages:   messages,
		})
		if err != nil {
			logger.WarnCF("line", "Reply failed, reply token may have expired", map[string]interface{}{
				"user_id": msg.ChatID,
				"error":   err.Error(),
			})
			return fmt.Errorf("line reply: %w", err)
		}
		logger.InfoCF("line", "Reply sent", map[string]interface{}{"user_id": msg.ChatID})
		return nil
	}

	if msg.ChatID == "" {
		return fmt.Errorf("line push requires a user id")
	}
	if _, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       msg.ChatID,
		Messages: messages,
	}, ""); err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

func (c *LineChannel) PushToUser(ctx context.Context, userID, text string) error {
	return c.Send(ctx, bus.OutboundMessage{Channel: c.Name(), ChatID: userID, Content: text})
}

func buildLineMessages(msg bus.OutboundMessage) []messaging_api.MessageInterface {
	var out []messaging_api.MessageInterface
	for _, img := range msg.Images {
		out = append(out, messaging_api.ImageMessage{
			OriginalContentUrl: img,
			PreviewImageUrl:    img,
		})
	}
	if msg.Content != "" {
		text := messaging_api.TextMessage{Text: msg.Content}
		if len(msg.QuickReplies) > 0 {
			items := make([]messaging_api.QuickReplyItem, 0, len(msg.QuickReplies))
			for _, q := range msg.QuickReplies {
				items = append(items, messaging_api.QuickReplyItem{
					Action: &messaging_api.MessageAction{Label: q.Label, Text: q.Text},
				})
			}
			text.QuickReply = &messaging_api.QuickReply{Items: items}
		}
		out = append(out, text)
	}
	return out
}
