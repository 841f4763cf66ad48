package domain

import "time"

// Contact identifies the sender of an inbound message on the messaging
// platform. ID is the platform-stable key (e.g., a JID) and doubles as the
// conversation identity for rate limiting and reply correlation.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// InboundMessage is one message event received from the platform sidecar.
type InboundMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	From       Contact   `json:"from"`
	FromMe     bool      `json:"from_me"`
	IsGroup    bool      `json:"is_group"`
	IsReadOnly bool      `json:"is_read_only"`
	DeviceType string    `json:"device_type"`
	HasMedia   bool      `json:"has_media"`
	MediaType  string    `json:"media_type"`
	MediaPath  string    `json:"media_path"`
	Links      []string  `json:"links"`
}

// Chat is one conversation as reported by the platform.
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"is_group"`
	UnreadCount int    `json:"unread_count"`
}

// Message is a single history entry within a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"from_me"`
}

// Outbound is the content of a reply sent back to a conversation. Either
// Text or MediaPath may be empty, not both.
type Outbound struct {
	Text      string `json:"text"`
	MediaPath string `json:"media_path"`
}

// ReplyOptions carries platform-specific send options for a reply.
type ReplyOptions struct {
	SendMediaAsSticker bool   `json:"send_media_as_sticker"`
	StickerAuthor      string `json:"sticker_author"`
	StickerName        string `json:"sticker_name"`
}
