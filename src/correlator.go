package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxCharsCount is the Telegram limit for message text
	MaxCharsCount = 4096
	// MaxCaptionCount is the Telegram limit for media captions
	MaxCaptionCount = 1024
)

// The token format is persisted inside forwarded messages and must stay byte-stable.
var correlationRx = regexp.MustCompile(`\[CHATID:(-?\d+):MSGID:(\d+)\]`)

func correlationToken(chatID int64, messageID int) string {
	return fmt.Sprintf("[CHATID:%d:MSGID:%d]", chatID, messageID)
}

// parseCorrelationToken extracts the conversation and message id from the text
// of a forwarded message. ok is false when no well-formed token is present.
func parseCorrelationToken(text string) (chatID int64, messageID int, ok bool) {
	m := correlationRx.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}

	chatID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	messageID, err = strconv.Atoi(m[2])
	if err != nil || messageID <= 0 {
		return 0, 0, false
	}

	return chatID, messageID, true
}

// forwardText builds the message sent to the operator's personal chat. The
// token precedes the body so truncation never cuts it.
func forwardText(l localizer, senderName string, chatID int64, messageID int, body string, limit int) string {
	header := strings.Join([]string{
		l.message("forward_new_message"),
		l.template("forward_from", map[string]interface{}{"Name": senderName}),
		correlationToken(chatID, messageID),
	}, "\n")

	if body == "" {
		return header
	}

	return header + "\n\n" + truncate(body, limit-utf8.RuneCountInString(header)-2)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	r := []rune(s)
	if limit > 1 {
		return string(r[:limit-1]) + "…"
	}

	return string(r[:limit])
}
