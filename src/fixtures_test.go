package main

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testToken          = "123123:Qwerty"
	testPersonalChatID = int64(777)
	testOwner          = "owner-1"
)

var (
	testConfig *RelayConfig
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func init() {
	os.Chdir("../")
	testConfig = LoadConfig("config_test.yml")
	setValidation()
	gin.SetMode(gin.TestMode)
}

func newTestOrm(t *testing.T) *Orm {
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)

	orm := newOrm(db)
	require.NoError(t, orm.autoMigrate())
	t.Cleanup(orm.Close)

	return orm
}

func createTestBot(t *testing.T, orm *Orm, mutate func(b *Bot)) *Bot {
	b := &Bot{
		Token:                  testToken,
		Name:                   "relay_bot",
		PersonalChatID:         testPersonalChatID,
		OwnerID:                testOwner,
		Lang:                   "zh",
		Active:                 true,
		WebChannelEnabled:      true,
		PersonalChannelEnabled: true,
		TrialLimit:             20,
	}

	if mutate != nil {
		mutate(b)
	}

	require.NoError(t, orm.createBot(b))

	return b
}

func reloadBot(t *testing.T, orm *Orm, id int) *Bot {
	b, err := orm.getBotByID(id)
	require.NoError(t, err)

	return b
}

type sentMessage struct {
	ChatID  int64
	Payload Payload
}

// fakeClient records outbound traffic instead of calling the Bot API
type fakeClient struct {
	mu          sync.Mutex
	sent        []sentMessage
	failChat    map[int64]*SendError
	nextID      int
	name        string
	identifyErr error
	webhooks    []string
	webhookErr  error
	deleted     int
	deleteErr   error
	files       map[string][]byte
	fileErr     error
	fileLookups int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failChat: map[int64]*SendError{},
		nextID:   1000,
		name:     "relay_bot",
		files:    map[string][]byte{},
	}
}

func (f *fakeClient) factory() ClientFactory {
	return func(string) BotClient { return f }
}

func (f *fakeClient) Send(chatID int64, p Payload) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failChat[chatID]; ok {
		return SendResult{Description: err.Description}, err
	}

	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Payload: p})

	res := SendResult{OK: true, MessageID: f.nextID}
	if len(p.PhotoBytes) > 0 {
		res.PhotoFileID = "uploaded-file-id"
	}

	return res, nil
}

func (f *fakeClient) sentTo(chatID int64) []Payload {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Payload
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Payload)
		}
	}

	return out
}

func (f *fakeClient) FileURL(fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fileLookups++
	if f.fileErr != nil {
		return "", f.fileErr
	}

	return "https://api.telegram.org/file/bot" + testToken + "/photos/" + fileID + ".jpg", nil
}

func (f *fakeClient) Download(filePath string) (io.ReadCloser, error) {
	data, ok := f.files[filePath]
	if !ok {
		return nil, errors.Errorf("download %s: status 404", filePath)
	}

	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeClient) Identify() (string, error) {
	return f.name, f.identifyErr
}

func (f *fakeClient) SetWebhook(url string) error {
	f.webhooks = append(f.webhooks, url)
	return f.webhookErr
}

func (f *fakeClient) DeleteWebhook() error {
	f.deleted++
	return f.deleteErr
}

func newTestRelay(t *testing.T) (*Relay, *Orm, *fakeClient) {
	orm := newTestOrm(t)
	client := newFakeClient()

	r := newRelay(testConfig, orm, client.factory(), nil, newFeed())
	r.now = func() time.Time { return testNow }

	return r, orm, client
}

func textUpdate(chatID int64, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: messageID,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			From:      &tgbotapi.User{ID: chatID, FirstName: "Alice"},
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	}
}

func photoUpdate(chatID int64, messageID int, fileID, caption string) tgbotapi.Update {
	u := textUpdate(chatID, messageID, "")
	u.Message.Photo = []tgbotapi.PhotoSize{
		{FileID: fileID + "-small", Width: 90, Height: 90},
		{FileID: fileID, Width: 800, Height: 800},
	}
	u.Message.Caption = caption

	return u
}

func replyUpdate(messageID int, text, quoted string) tgbotapi.Update {
	u := textUpdate(testPersonalChatID, messageID, text)
	u.Message.From.FirstName = "Operator"
	u.Message.ReplyToMessage = &tgbotapi.Message{
		MessageID: messageID - 1,
		Chat:      &tgbotapi.Chat{ID: testPersonalChatID},
		Text:      quoted,
	}

	return u
}

func signedToken(t *testing.T, subject, role string) string {
	claims := AccountClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Identity.JWTSecret))
	require.NoError(t, err)

	return token
}
