package deadrat

import (
	"context"
	"errors"
	"strings"
)

// errDetached is returned by reply helpers on a message that was not
// produced by a running bot.
var errDetached = errors.New("deadrat: message is not attached to a bot")

// Author identifies the sender of a message.
type Author struct {
	ID       string
	Username string
}

// Message is a single received message after parsing. All fields are
// set at construction and never mutated afterwards.
//
// Command is the lowercased first whitespace-delimited token of Text
// (empty for an empty message); Args holds the remaining tokens.
// ReplyTo is the message this one replies to, parsed with the same
// rules, or nil.
type Message struct {
	ID        string
	Text      string
	Timestamp float64
	Author    Author
	Command   string
	Args      []string
	ReplyTo   *Message
	Raw       Update

	bot *Bot
}

// newMessage parses a wire payload into a Message, recursing into the
// embedded reply payload when present.
func newMessage(u Update, b *Bot) *Message {
	text := strings.TrimSpace(u.Text)
	command, args := splitCommand(text)

	msg := &Message{
		ID:        u.ID,
		Text:      text,
		Timestamp: u.Timestamp,
		Author:    Author{ID: u.AuthorID, Username: u.Username},
		Command:   command,
		Args:      args,
		Raw:       u,
		bot:       b,
	}
	if u.ReplyTo != nil {
		msg.ReplyTo = newMessage(*u.ReplyTo, b)
	}
	return msg
}

// splitCommand splits trimmed text into a lowercased command token and
// its whitespace-separated arguments. Empty text yields an empty
// command and no arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// Reply sends a text message in reply to this one. A failure means no
// message was sent; there is no retry.
func (m *Message) Reply(ctx context.Context, text string) (*SentMessage, error) {
	return m.replyWith(ctx, text, "")
}

// ReplyImage replies with an already hosted image, optionally captioned.
func (m *Message) ReplyImage(ctx context.Context, text, imageURL string) (*SentMessage, error) {
	return m.replyWith(ctx, text, imageURL)
}

// ReplyWithFile uploads a local file and replies with it.
func (m *Message) ReplyWithFile(ctx context.Context, filePath, text string) (*SentMessage, error) {
	if m.bot == nil {
		return nil, errDetached
	}
	hostedURL, err := m.bot.api.UploadFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return m.replyWith(ctx, text, hostedURL)
}

func (m *Message) replyWith(ctx context.Context, text, imageURL string) (*SentMessage, error) {
	if m.bot == nil {
		return nil, errDetached
	}
	return m.bot.api.SendMessage(ctx, text, imageURL, m.ID)
}

// SentMessage is the handle for a message this process sent. Text
// tracks the last known content across edits.
type SentMessage struct {
	ID        string
	Timestamp float64
	Text      string

	client *Client
}

// Edit replaces the message text. Returns true and updates Text on
// success.
func (s *SentMessage) Edit(ctx context.Context, newText string) bool {
	if s.client == nil {
		return false
	}
	if s.client.EditMessage(ctx, s.ID, newText) {
		s.Text = newText
		return true
	}
	return false
}

// Delete removes the message from the chat.
func (s *SentMessage) Delete(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	return s.client.DeleteMessage(ctx, s.ID)
}
