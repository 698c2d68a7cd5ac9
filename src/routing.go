package main

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// maxProxiedFile is the largest file the Bot API lets bots download
const maxProxiedFile = 20 << 20

// env holds the dependencies of the HTTP handlers
type env struct {
	config  *RelayConfig
	orm     *Orm
	relay   *Relay
	ledger  *TrialLedger
	clients ClientFactory
	feed    *Feed
	now     func() time.Time
}

func newEnv(config *RelayConfig, orm *Orm, clients ClientFactory, archive MediaArchive) *env {
	feed := newFeed()
	relay := newRelay(config, orm, clients, archive, feed)

	return &env{
		config:  config,
		orm:     orm,
		relay:   relay,
		ledger:  relay.ledger,
		clients: clients,
		feed:    feed,
		now:     time.Now,
	}
}

// rejection renders a classified error. ok is false for errors that belong to
// the ErrorHandler chain.
func rejection(c *gin.Context, err error) (status int, body gin.H, ok bool) {
	status, key := errorStatus(err)
	if status == 0 {
		return 0, nil, false
	}

	msg := err.Error()
	if key != "" {
		msg = requestLocalizer(c).message(key)
	}

	return status, gin.H{"ok": false, "error": msg}, true
}

func abortWithRejection(c *gin.Context, err error) {
	status, body, ok := rejection(c, err)
	if !ok {
		c.Error(err)
		return
	}

	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, key string, err error) {
	logger.Warningf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": requestLocalizer(c).message(key)})
}

func (e *env) telegramWebhookHandler(c *gin.Context) {
	b, err := e.orm.getBotByToken(c.Param("token"))
	if err != nil {
		abortWithRejection(c, err)
		return
	}
	c.Set("bot", b)

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "incorrect_payload", err)
		return
	}

	if e.config.Debug {
		logger.Debugf(
			"telegramWebhookHandler request:\nUpdateID: %v,\nMessage: %+v,\nEditedMessage: %+v",
			update.UpdateID, update.Message, update.EditedMessage,
		)
	}

	out, err := e.relay.HandleUpdate(b, update)
	if err != nil {
		status, body, ok := rejection(c, err)
		if !ok {
			c.Error(err)
			return
		}

		logger.Infof("telegramWebhookHandler bot %d update %d rejected: %v", b.ID, update.UpdateID, err)

		body["trialExceeded"] = errors.Is(err, ErrTrialLimitReached)
		if status == http.StatusForbidden && e.config.Webhook.AckRejections {
			status = http.StatusOK
		}

		c.AbortWithStatusJSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "kind": out.Kind.String(), "persisted": out.Persisted})
}

func (e *env) sendMessageHandler(c *gin.Context) {
	var req ConsoleSend
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "incorrect_payload", err)
		return
	}

	b, err := e.ownedBot(currentAccount(c), req.ActivationID)
	if err != nil {
		abortWithRejection(c, err)
		return
	}
	c.Set("bot", b)

	msg, res, err := e.relay.SendFromConsole(b, req)
	if err != nil {
		status, body, ok := rejection(c, err)
		if !ok {
			c.Error(err)
			return
		}

		switch {
		case errors.Is(err, ErrTrialLimitReached):
			body["trialExceeded"] = true
		case errors.Is(err, ErrWebChannelDisabled):
			body["webDisabled"] = true
		}

		c.AbortWithStatusJSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"result": gin.H{
			"messageId": res.MessageID,
			"message":   e.proxiedMessage(*msg),
			"trialUsed": b.TrialUsed,
		},
	})
}

func (e *env) botActionHandler(c *gin.Context) {
	body, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(err)
		return
	}

	cmd, err := decodeCommand(body)
	if err != nil {
		key := "incorrect_payload"
		if errors.Is(err, errUnknownAction) {
			key = errUnknownAction.Error()
		}
		badRequest(c, key, err)
		return
	}

	acc := currentAccount(c)
	if cmd.adminOnly() && !acc.isAdmin(e.config.Identity.AdminRole) {
		abortWithRejection(c, ErrForbidden)
		return
	}

	data, err := cmd.run(e, acc)
	if err != nil {
		abortWithRejection(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func (e *env) messagesHandler(monitoring bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			badRequest(c, "incorrect_payload", err)
			return
		}

		b, err := e.ownedBot(currentAccount(c), id)
		if err != nil {
			abortWithRejection(c, err)
			return
		}
		c.Set("bot", b)

		chatID, _ := strconv.ParseInt(c.Query("chatId"), 10, 64)
		limit, _ := strconv.Atoi(c.Query("limit"))

		messages, err := e.orm.getMessages(MessageFilter{
			BotID:      b.ID,
			ChatID:     chatID,
			Monitoring: monitoring,
			Limit:      limit,
		})
		if err != nil {
			c.Error(err)
			return
		}

		for i := range messages {
			messages[i] = e.proxiedMessage(messages[i])
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "data": messages})
	}
}

func (e *env) markReadHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, "incorrect_payload", err)
		return
	}

	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		badRequest(c, "incorrect_payload", err)
		return
	}

	b, err := e.ownedBot(currentAccount(c), id)
	if err != nil {
		abortWithRejection(c, err)
		return
	}

	n, err := e.orm.markChatRead(b.ID, chatID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": gin.H{"updated": n}})
}

// feedHandler streams row changes visible to the caller as server-sent events
func (e *env) feedHandler(c *gin.Context) {
	acc := currentAccount(c)
	admin := acc.isAdmin(e.config.Identity.AdminRole)

	events, cancel := e.feed.Subscribe(func(ev FeedEvent) bool {
		if admin {
			return true
		}

		if ev.OwnerID != acc.Subject {
			return false
		}

		return ev.Message == nil || !ev.Message.WebDisabled
	})
	defer cancel()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}

			if ev.Message != nil {
				m := e.proxiedMessage(*ev.Message)
				ev.Message = &m
			}

			c.SSEvent(ev.Type, ev)
			return true
		case t := <-ping.C:
			c.SSEvent("ping", t.Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// mediaProxyHandler streams a Telegram file of a bot without exposing its token
func (e *env) mediaProxyHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	filePath := c.Param("path")
	if len(filePath) > 0 && filePath[0] == '/' {
		filePath = filePath[1:]
	}

	if !validFilePath(filePath) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	if err := e.verifyMediaLink(id, filePath, c.Query("sig")); err != nil {
		logger.Warningf("mediaProxyHandler bot %d %s: %v", id, filePath, err)
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	b, err := e.orm.getBotByID(id)
	if err != nil {
		if errors.Is(err, ErrBotNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Error(err)
		return
	}

	rc, err := e.clients(b.Token).Download(filePath)
	if err != nil {
		logger.Warningf("mediaProxyHandler bot %d %s: %v", b.ID, filePath, err)
		c.AbortWithStatus(http.StatusBadGateway)
		return
	}
	defer rc.Close()

	raw, err := ioutil.ReadAll(io.LimitReader(rc, maxProxiedFile))
	if err != nil {
		logger.Warningf("mediaProxyHandler bot %d %s: %v", b.ID, filePath, err)
		c.AbortWithStatus(http.StatusBadGateway)
		return
	}

	contentType := "application/octet-stream"
	if img, err := normalizeImage(raw); err == nil {
		raw = img
	}
	if kind, err := filetype.Match(raw); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, int64(len(raw)), contentType, bytes.NewReader(raw), nil)
}

// proxiedMessage rewrites stored Telegram file links to signed media proxy links
func (e *env) proxiedMessage(m Message) Message {
	ref, caption, ok := splitMediaContent(m.Content)
	if !ok {
		return m
	}

	p, ok := telegramFilePath(ref)
	if !ok {
		return m
	}

	sig, err := e.signMediaLink(m.BotID, p)
	if err != nil {
		logger.Errorf("proxiedMessage bot %d %s: %v", m.BotID, p, err)
		m.Content = mediaContent(redactedMedia, caption)
		return m
	}

	m.Content = mediaContent("/media/"+strconv.Itoa(m.BotID)+"/"+p+"?sig="+sig, caption)

	return m
}
