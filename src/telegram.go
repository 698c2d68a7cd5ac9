package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Payload is one outbound message. Exactly one of Text, PhotoFileID or
// PhotoBytes is expected; Caption only applies to photos.
type Payload struct {
	Text             string
	PhotoFileID      string
	PhotoBytes       []byte
	PhotoName        string
	Caption          string
	ReplyToMessageID int
}

func (p Payload) empty() bool {
	return p.Text == "" && p.PhotoFileID == "" && len(p.PhotoBytes) == 0
}

// SendResult is the normalized answer of the platform send API
type SendResult struct {
	OK          bool   `json:"ok"`
	MessageID   int    `json:"messageId,omitempty"`
	PhotoFileID string `json:"photoFileId,omitempty"`
	Description string `json:"description,omitempty"`
}

// BotClient is the outbound side of one bot credential
type BotClient interface {
	Send(chatID int64, p Payload) (SendResult, error)
	FileURL(fileID string) (string, error)
	Download(filePath string) (io.ReadCloser, error)
	Identify() (string, error)
	SetWebhook(url string) error
	DeleteWebhook() error
}

// ClientFactory builds the client for a bot token
type ClientFactory func(token string) BotClient

type telegramClient struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
}

// newTelegramClient builds the client without the getMe round trip that
// tgbotapi.NewBotAPI performs.
func newTelegramClient(token string, httpClient *http.Client, debug bool) *telegramClient {
	api := &tgbotapi.BotAPI{
		Token:  token,
		Client: httpClient,
		Buffer: 100,
		Debug:  debug,
	}
	api.SetAPIEndpoint(tgbotapi.APIEndpoint)

	return &telegramClient{api: api, httpClient: httpClient}
}

func telegramClientFactory(config *RelayConfig) ClientFactory {
	httpClient := &http.Client{Timeout: config.telegramTimeout()}

	return func(token string) BotClient {
		return newTelegramClient(token, httpClient, config.Debug)
	}
}

func (t *telegramClient) Send(chatID int64, p Payload) (SendResult, error) {
	var c tgbotapi.Chattable

	switch {
	case len(p.PhotoBytes) > 0:
		name := p.PhotoName
		if name == "" {
			name = "photo.jpg"
		}
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: p.PhotoBytes})
		msg.Caption = truncate(p.Caption, MaxCaptionCount)
		msg.ReplyToMessageID = p.ReplyToMessageID
		c = msg
	case p.PhotoFileID != "":
		msg := tgbotapi.NewPhoto(chatID, photoFile(p.PhotoFileID))
		msg.Caption = truncate(p.Caption, MaxCaptionCount)
		msg.ReplyToMessageID = p.ReplyToMessageID
		c = msg
	case p.Text != "":
		msg := tgbotapi.NewMessage(chatID, truncate(p.Text, MaxCharsCount))
		msg.ReplyToMessageID = p.ReplyToMessageID
		c = msg
	default:
		return SendResult{Description: ErrEmptyMessage.Error()}, ErrEmptyMessage
	}

	sent, err := t.api.Send(c)
	if err != nil {
		sendErr := platformError(err)
		return SendResult{Description: sendErr.Description}, sendErr
	}

	res := SendResult{OK: true, MessageID: sent.MessageID}
	if n := len(sent.Photo); n > 0 {
		res.PhotoFileID = sent.Photo[n-1].FileID
	}

	return res, nil
}

func photoFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}

	return tgbotapi.FileID(ref)
}

func platformError(err error) *SendError {
	if tgErr, ok := err.(*tgbotapi.Error); ok {
		return &SendError{Code: tgErr.Code, Description: tgErr.Message}
	}

	return &SendError{Description: err.Error()}
}

func (t *telegramClient) FileURL(fileID string) (string, error) {
	return t.api.GetFileDirectURL(fileID)
}

// Download streams a file by its Telegram file path
func (t *telegramClient) Download(filePath string) (io.ReadCloser, error) {
	file := tgbotapi.File{FilePath: filePath}

	resp, err := t.httpClient.Get(file.Link(t.api.Token))
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, errors.Errorf("download %s: status %d", filePath, resp.StatusCode)
	}

	return resp.Body, nil
}

func (t *telegramClient) Identify() (string, error) {
	me, err := t.api.GetMe()
	if err != nil {
		return "", errors.Wrap(ErrIncorrectToken, err.Error())
	}

	return me.UserName, nil
}

func (t *telegramClient) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return errors.Wrap(err, "webhook url")
	}

	return retryIdempotent(func() error {
		resp, err := t.api.Request(wh)
		if err != nil {
			return err
		}
		if !resp.Ok {
			return errors.New(resp.Description)
		}
		return nil
	})
}

func (t *telegramClient) DeleteWebhook() error {
	return retryIdempotent(func() error {
		_, err := t.api.Request(tgbotapi.DeleteWebhookConfig{})
		return err
	})
}

// retryIdempotent retries webhook (de)registration, which is safe to repeat.
// Platform rejections are permanent.
func retryIdempotent(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if _, ok := err.(*tgbotapi.Error); ok {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
