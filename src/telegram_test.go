package main

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/h2non/gock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGockClient() *telegramClient {
	return newTelegramClient(testToken, &http.Client{}, false)
}

func TestTelegram_sendText(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/sendMessage").
		Reply(200).
		BodyString(`{"ok":true,"result":{"message_id":77,"date":1,"chat":{"id":555,"type":"private"},"text":"hi"}}`)

	res, err := newGockClient().Send(555, Payload{Text: "hi", ReplyToMessageID: 42})

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 77, res.MessageID)
	assert.True(t, gock.IsDone())
}

func TestTelegram_sendPhotoByFileID(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/sendPhoto").
		Reply(200).
		BodyString(`{"ok":true,"result":{"message_id":78,"date":1,"chat":{"id":555,"type":"private"},"photo":[{"file_id":"small","width":90,"height":90},{"file_id":"large","width":800,"height":800}]}}`)

	res, err := newGockClient().Send(555, Payload{PhotoFileID: "large", Caption: "look"})

	require.NoError(t, err)
	assert.Equal(t, 78, res.MessageID)
	assert.Equal(t, "large", res.PhotoFileID)
	assert.True(t, gock.IsDone())
}

func TestTelegram_sendFailureCarriesDescription(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/sendMessage").
		Reply(403).
		BodyString(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)

	res, err := newGockClient().Send(555, Payload{Text: "hi"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlatformSendFailed))
	assert.False(t, res.OK)
	assert.Equal(t, "Forbidden: bot was blocked by the user", res.Description)

	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, 403, sendErr.Code)

	status, _ := errorStatus(err)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestTelegram_sendEmpty(t *testing.T) {
	_, err := newGockClient().Send(555, Payload{})
	assert.Equal(t, ErrEmptyMessage, err)
}

func TestTelegram_identify(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/getMe").
		Reply(200).
		BodyString(`{"ok":true,"result":{"id":123,"is_bot":true,"first_name":"Relay","username":"relay_bot"}}`)

	name, err := newGockClient().Identify()

	require.NoError(t, err)
	assert.Equal(t, "relay_bot", name)
}

func TestTelegram_identifyRejectedToken(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/getMe").
		Reply(401).
		BodyString(`{"ok":false,"error_code":401,"description":"Unauthorized"}`)

	_, err := newGockClient().Identify()

	assert.True(t, errors.Is(err, ErrIncorrectToken))
}

func TestTelegram_setWebhookRetriesTransportErrors(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/setWebhook").
		ReplyError(errors.New("connection reset by peer"))

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/setWebhook").
		Reply(200).
		BodyString(`{"ok":true,"result":true,"description":"Webhook was set"}`)

	err := newGockClient().SetWebhook(testConfig.webhookURL(testToken))

	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestTelegram_setWebhookRejectionIsPermanent(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/setWebhook").
		Times(1).
		Reply(400).
		BodyString(`{"ok":false,"error_code":400,"description":"Bad Request: bad webhook: HTTPS url must be provided for webhook"}`)

	err := newGockClient().SetWebhook(testConfig.webhookURL(testToken))

	require.Error(t, err)
	_, rejected := err.(*tgbotapi.Error)
	assert.True(t, rejected)
	assert.True(t, gock.IsDone())
}

func TestTelegram_deleteWebhook(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/deleteWebhook").
		Reply(200).
		BodyString(`{"ok":true,"result":true}`)

	require.NoError(t, newGockClient().DeleteWebhook())
	assert.True(t, gock.IsDone())
}

func TestTelegram_download(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Get("/file/bot" + testToken + "/photos/file_1.jpg").
		Reply(200).
		Body(bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xE0}))

	gock.New("https://api.telegram.org").
		Get("/file/bot" + testToken + "/photos/missing.jpg").
		Reply(404)

	client := newGockClient()

	rc, err := client.Download("photos/file_1.jpg")
	require.NoError(t, err)
	data, err := ioutil.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data)

	_, err = client.Download("photos/missing.jpg")
	assert.Error(t, err)
}

func TestTelegram_fileURL(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.telegram.org").
		Post("/bot" + testToken + "/getFile").
		Reply(200).
		BodyString(`{"ok":true,"result":{"file_id":"big","file_path":"photos/file_7.jpg"}}`)

	url, err := newGockClient().FileURL("big")

	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/file/bot"+testToken+"/photos/file_7.jpg", url)

	p, ok := telegramFilePath(url)
	require.True(t, ok)
	assert.Equal(t, "photos/file_7.jpg", p)
}
