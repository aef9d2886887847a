package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/utils"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second
	discordMessageLimit   = 1900
)

// DiscordChannel serves the same dispatcher over Discord. Quick replies have
// no Discord equivalent and are rendered as a hint line.
type DiscordChannel struct {
	*BaseChannel
	session  *discordgo.Session
	config   config.DiscordConfig
	typing   map[string]*typingSession
	typingMu sync.Mutex
}

type typingSession struct {
	pending int
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	base := NewBaseChannel("discord", cfg, bus, cfg.AllowFrom)

	return &DiscordChannel{
		BaseChannel: base,
		session:     session,
		config:      cfg,
		typing:      make(map[string]*typingSession),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}
	defer c.endTyping(channelID)

	content := renderDiscordContent(msg)
	if content == "" {
		return nil
	}

	for _, chunk := range splitMessage(content, discordMessageLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// PushToUser opens (or reuses) the DM channel with userID and sends text.
func (c *DiscordChannel) PushToUser(ctx context.Context, userID, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	dm, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open discord DM with %s: %w", userID, err)
	}
	return c.sendChunk(ctx, dm.ID, text)
}

// renderDiscordContent puts image links ahead of the text and the quick
// reply options after it.
func renderDiscordContent(msg bus.OutboundMessage) string {
	var parts []string
	parts = append(parts, msg.Images...)
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	if len(msg.QuickReplies) > 0 {
		options := make([]string, 0, len(msg.QuickReplies))
		for _, q := range msg.QuickReplies {
			options = append(options, q.Text)
		}
		parts = append(parts, "👉 "+strings.Join(options, " / "))
	}
	return strings.Join(parts, "\n")
}

// splitMessage cuts content into chunks of at most limit runes, preferring to
// break after a newline.
func splitMessage(content string, limit int) []string {
	var chunks []string
	runes := []rune(content)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if channelID == "" || c.session == nil {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.ErrorCF("discord", "Failed to send typing indicator", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *DiscordChannel) beginTyping(channelID string) {
	if channelID == "" || !c.IsRunning() {
		return
	}

	c.typingMu.Lock()
	if sess, ok := c.typing[channelID]; ok {
		sess.pending++
		c.typingMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.typing[channelID] = &typingSession{
		pending: 1,
		cancel:  cancel,
	}
	c.typingMu.Unlock()

	c.sendTyping(channelID)

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsRunning() {
					return
				}
				c.sendTyping(channelID)
			}
		}
	}()
}

func (c *DiscordChannel) endTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	sess.pending--
	if sess.pending > 0 {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	for channelID, sess := range c.typing {
		sess.cancel()
		delete(c.typing, channelID)
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	displayName := m.Author.GlobalName
	if displayName == "" {
		displayName = m.Author.Username
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"display_name": displayName,
		"sender_id":    m.Author.ID,
		"preview":      utils.Truncate(content, 50),
	})

	c.beginTyping(m.ChannelID)
	c.HandleMessage(bus.InboundMessage{
		SenderID:    m.Author.ID,
		ChatID:      m.ChannelID,
		DisplayName: displayName,
		Kind:        bus.KindText,
		Content:     content,
		Metadata: map[string]string{
			"message_id": m.ID,
			"guild_id":   m.GuildID,
			"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
		},
	})
}
