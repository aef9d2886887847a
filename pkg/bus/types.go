package bus

const (
	KindText     = "text"
	KindLocation = "location"
)

// InboundMessage is a user event normalized by a channel.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	DisplayName string            `json:"display_name"`
	Kind        string            `json:"kind"`
	Content     string            `json:"content"`
	Latitude    float64           `json:"latitude,omitempty"`
	Longitude   float64           `json:"longitude,omitempty"`
	ReplyToken  string            `json:"reply_token,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type QuickReply struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// OutboundMessage is a reply or push. Images are sent before the text.
type OutboundMessage struct {
	Channel      string       `json:"channel"`
	ChatID       string       `json:"chat_id"`
	Content      string       `json:"content"`
	ReplyToken   string       `json:"reply_token,omitempty"`
	Images       []string     `json:"images,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}
