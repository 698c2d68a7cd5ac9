package main

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassifier_empty(t *testing.T) {
	ev := classifyUpdate(tgbotapi.Update{UpdateID: 1}, testPersonalChatID)
	assert.Equal(t, EventEmpty, ev.Kind)

	u := textUpdate(555, 1, "")
	u.Message.NewChatMembers = []tgbotapi.User{{ID: 1}}
	assert.Equal(t, EventEmpty, classifyUpdate(u, testPersonalChatID).Kind)
}

func TestClassifier_ordinaryText(t *testing.T) {
	ev := classifyUpdate(textUpdate(555, 42, "Hello"), testPersonalChatID)

	assert.Equal(t, EventOrdinary, ev.Kind)
	assert.Equal(t, int64(555), ev.ChatID)
	assert.Equal(t, 42, ev.MessageID)
	assert.Equal(t, "Alice", ev.SenderName)
	assert.Equal(t, "Hello", ev.Content)
}

func TestClassifier_photoKeepsFileID(t *testing.T) {
	ev := classifyUpdate(photoUpdate(555, 43, "big", "look"), testPersonalChatID)

	assert.Equal(t, EventOrdinary, ev.Kind)
	assert.Equal(t, "big", ev.PhotoFileID)
	assert.Equal(t, "look", ev.Text)
	assert.Equal(t, "[media] big\nlook", ev.Content)
}

func TestClassifier_resolvePhoto(t *testing.T) {
	ev := classifyUpdate(photoUpdate(555, 43, "big", "look"), testPersonalChatID)
	client := newFakeClient()

	resolvePhoto(&ev, client)

	assert.Equal(t, "[media] https://api.telegram.org/file/bot"+testToken+"/photos/big.jpg\nlook", ev.Content)
	assert.Equal(t, 1, client.fileLookups)
}

func TestClassifier_resolvePhotoFailureKeepsFileID(t *testing.T) {
	ev := classifyUpdate(photoUpdate(555, 43, "big", ""), testPersonalChatID)
	client := newFakeClient()
	client.fileErr = errors.New("Bad Request: file is too big")

	resolvePhoto(&ev, client)

	assert.Equal(t, "[media] big", ev.Content)
}

func TestClassifier_resolvePhotoSkipsText(t *testing.T) {
	ev := classifyUpdate(textUpdate(555, 42, "Hello"), testPersonalChatID)
	client := newFakeClient()

	resolvePhoto(&ev, client)

	assert.Equal(t, "Hello", ev.Content)
	assert.Zero(t, client.fileLookups)
}

func TestClassifier_otherAttachment(t *testing.T) {
	u := textUpdate(555, 44, "")
	u.Message.Sticker = &tgbotapi.Sticker{FileID: "s"}

	ev := classifyUpdate(u, testPersonalChatID)

	assert.Equal(t, EventOrdinary, ev.Kind)
	assert.Equal(t, "[sticker]", ev.Content)
}

func TestClassifier_adminReply(t *testing.T) {
	quoted := "📨 新消息\n来自: Alice\n[CHATID:555:MSGID:42]\n\nHello"

	ev := classifyUpdate(replyUpdate(100, "Hi Alice", quoted), testPersonalChatID)

	assert.Equal(t, EventAdminReply, ev.Kind)
	assert.Equal(t, int64(555), ev.TargetChatID)
	assert.Equal(t, 42, ev.OriginalMessageID)
	assert.Equal(t, "Hi Alice", ev.Text)
}

func TestClassifier_adminReplyToCaption(t *testing.T) {
	u := replyUpdate(100, "nice", "")
	u.Message.ReplyToMessage.Caption = "📨 New message\nFrom: Bob\n[CHATID:-100:MSGID:7]"

	ev := classifyUpdate(u, testPersonalChatID)

	assert.Equal(t, EventAdminReply, ev.Kind)
	assert.Equal(t, int64(-100), ev.TargetChatID)
	assert.Equal(t, 7, ev.OriginalMessageID)
}

func TestClassifier_selfEcho(t *testing.T) {
	ev := classifyUpdate(textUpdate(testPersonalChatID, 5, "note to self"), testPersonalChatID)
	assert.Equal(t, EventSelfEcho, ev.Kind)

	ev = classifyUpdate(replyUpdate(6, "edited", "[CHATID:555]"), testPersonalChatID)
	assert.Equal(t, EventSelfEcho, ev.Kind)
}

func TestClassifier_replyFromEndUserIsOrdinary(t *testing.T) {
	u := textUpdate(555, 50, "answer")
	u.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 49, Text: "[CHATID:1:MSGID:2]"}

	ev := classifyUpdate(u, testPersonalChatID)

	assert.Equal(t, EventOrdinary, ev.Kind)
	assert.Zero(t, ev.TargetChatID)
}

func TestClassifier_senderName(t *testing.T) {
	m := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Title: "group"}}
	assert.Equal(t, "group", senderName(m))

	m.From = &tgbotapi.User{ID: 9, UserName: "nick"}
	assert.Equal(t, "nick", senderName(m))

	m.From = &tgbotapi.User{ID: 9, FirstName: "Ann", LastName: "Lee"}
	assert.Equal(t, "Ann Lee", senderName(m))

	m.From = &tgbotapi.User{ID: 9}
	assert.Equal(t, "9", senderName(m))
}
