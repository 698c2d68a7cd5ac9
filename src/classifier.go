package main

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EventKind is the category of an inbound update
type EventKind int

const (
	EventEmpty EventKind = iota
	EventOrdinary
	EventAdminReply
	EventSelfEcho
)

func (k EventKind) String() string {
	switch k {
	case EventOrdinary:
		return "ordinary"
	case EventAdminReply:
		return "admin_reply"
	case EventSelfEcho:
		return "self_echo"
	default:
		return "empty"
	}
}

// InboundEvent is a classified update with its routing metadata
type InboundEvent struct {
	Kind       EventKind
	ChatID     int64
	MessageID  int
	SenderID   int64
	SenderName string
	// Text is the message text or the media caption
	Text        string
	PhotoFileID string
	// Content is what gets persisted
	Content string

	TargetChatID      int64
	OriginalMessageID int
}

// FileResolver turns a platform file id into a fetchable URL
type FileResolver interface {
	FileURL(fileID string) (string, error)
}

// classifyUpdate categorizes one update for a bot whose operator writes from
// personalChatID. Photos keep their file id until resolvePhoto runs.
func classifyUpdate(update tgbotapi.Update, personalChatID int64) InboundEvent {
	m := update.Message
	if m == nil || m.Chat == nil || shouldMessageBeIgnored(m) {
		return InboundEvent{Kind: EventEmpty}
	}

	ev := InboundEvent{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		SenderID:  m.Chat.ID,
		Text:      m.Text,
	}

	if m.From != nil {
		ev.SenderID = m.From.ID
	}
	ev.SenderName = senderName(m)

	if ev.Text == "" {
		ev.Text = m.Caption
	}

	switch kind := getMessageType(m); kind {
	case "photo":
		ev.PhotoFileID = m.Photo[len(m.Photo)-1].FileID
		ev.Content = mediaContent(ev.PhotoFileID, m.Caption)
	case "text":
		ev.Content = m.Text
	default:
		ev.Content = "[" + kind + "]"
		if m.Caption != "" {
			ev.Content += "\n" + m.Caption
		}
	}

	if ev.SenderID != personalChatID {
		ev.Kind = EventOrdinary
		return ev
	}

	ev.Kind = EventSelfEcho

	if m.ReplyToMessage == nil {
		return ev
	}

	quoted := m.ReplyToMessage.Text
	if quoted == "" {
		quoted = m.ReplyToMessage.Caption
	}

	chatID, msgID, ok := parseCorrelationToken(quoted)
	if !ok {
		logger.Infof("classifyUpdate: %v in reply %d from chat %d", ErrInvalidCorrelationToken, m.MessageID, m.Chat.ID)
		return ev
	}

	ev.Kind = EventAdminReply
	ev.TargetChatID = chatID
	ev.OriginalMessageID = msgID

	return ev
}

// resolvePhoto swaps the file id in a photo's content for its download URL.
// The file id stays when the lookup fails.
func resolvePhoto(ev *InboundEvent, files FileResolver) {
	if ev.PhotoFileID == "" {
		return
	}

	url, err := files.FileURL(ev.PhotoFileID)
	if err != nil {
		logger.Warningf("resolvePhoto %s: %v", ev.PhotoFileID, err)
		return
	}

	_, caption, _ := splitMediaContent(ev.Content)
	ev.Content = mediaContent(url, caption)
}

func senderName(m *tgbotapi.Message) string {
	if m.From == nil {
		return m.Chat.Title
	}

	name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	if name == "" {
		name = m.From.UserName
	}

	if name == "" {
		name = strconv.FormatInt(m.From.ID, 10)
	}

	return name
}

func getMessageType(data *tgbotapi.Message) string {
	switch {
	case len(data.Photo) > 0:
		return "photo"
	case data.Text != "":
		return "text"
	case data.Sticker != nil:
		return "sticker"
	case data.Animation != nil:
		return "animation"
	case data.Audio != nil:
		return "audio"
	case data.Contact != nil:
		return "contact"
	case data.Document != nil:
		return "document"
	case data.Location != nil:
		return "location"
	case data.Video != nil:
		return "video"
	case data.VideoNote != nil:
		return "video_note"
	case data.Voice != nil:
		return "voice"
	default:
		return "undefined"
	}
}

// shouldMessageBeIgnored returns true if message should not be processed at all
func shouldMessageBeIgnored(m *tgbotapi.Message) bool {
	if len(m.NewChatMembers) > 0 ||
		m.LeftChatMember != nil ||
		m.NewChatTitle != "" ||
		len(m.NewChatPhoto) > 0 ||
		m.DeleteChatPhoto ||
		m.GroupChatCreated {
		return true
	}

	return false
}
