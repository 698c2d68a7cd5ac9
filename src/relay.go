package main

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Relay routes messages between end users and the operator of each bot and
// enforces expiry, trial and channel gates. Every call is scoped to one bot.
type Relay struct {
	registry     Registry
	ledger       *TrialLedger
	clients      ClientFactory
	archive      MediaArchive
	feed         *Feed
	startCommand string
	now          func() time.Time
}

// Outcome describes what the relay did with an inbound update
type Outcome struct {
	Kind      EventKind `json:"kind"`
	Persisted bool      `json:"persisted"`
	Message   *Message  `json:"message,omitempty"`
	TrialUsed int       `json:"trialUsed"`
	Blocked   bool      `json:"blocked"`
	Forwarded bool      `json:"forwarded"`
	Greeted   bool      `json:"greeted"`
	Replied   bool      `json:"replied"`
}

func newRelay(config *RelayConfig, orm *Orm, clients ClientFactory, archive MediaArchive, feed *Feed) *Relay {
	return &Relay{
		registry:     orm,
		ledger:       newTrialLedger(orm),
		clients:      clients,
		archive:      archive,
		feed:         feed,
		startCommand: config.Webhook.StartCommand,
		now:          time.Now,
	}
}

// checkLifecycle applies the expiry, manual-deactivation and owner account
// gates. Crossing the expiry flips the bot inactive.
func (r *Relay) checkLifecycle(b *Bot) error {
	if b.Expired(r.now()) {
		if b.Active {
			if err := r.registry.deactivateBot(b.ID); err != nil {
				logger.Errorf("checkLifecycle deactivate bot %d: %v", b.ID, err)
			} else {
				b.Active = false
				r.feed.publishBot(b)
			}
		}

		return ErrBotExpired
	}

	if !b.Active {
		return ErrBotInactive
	}

	if b.OwnerID == "" {
		return nil
	}

	acc, err := r.registry.getAccount(b.OwnerID)
	if err != nil {
		return err
	}

	if acc.Disabled {
		return ErrAccountDisabled
	}

	return nil
}

// HandleUpdate classifies and routes one webhook update for b
func (r *Relay) HandleUpdate(b *Bot, update tgbotapi.Update) (Outcome, error) {
	client := r.clients(b.Token)
	ev := classifyUpdate(update, b.PersonalChatID)
	inboundEventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case EventOrdinary:
		return r.routeInbound(b, client, ev)
	case EventAdminReply:
		return r.routeAdminReply(b, client, ev)
	}

	return Outcome{Kind: ev.Kind, TrialUsed: b.TrialUsed, Blocked: b.TrialExhausted()}, nil
}

func (r *Relay) routeInbound(b *Bot, client BotClient, ev InboundEvent) (Outcome, error) {
	out := Outcome{Kind: ev.Kind, TrialUsed: b.TrialUsed, Blocked: b.TrialExhausted()}

	if err := r.checkLifecycle(b); err != nil {
		gatingRejectionsTotal.WithLabelValues(pathInbound, err.Error()).Inc()
		return out, err
	}

	if b.TrialExhausted() {
		gatingRejectionsTotal.WithLabelValues(pathInbound, ErrTrialLimitReached.Error()).Inc()
		return out, ErrTrialLimitReached
	}

	resolvePhoto(&ev, client)

	msg := &Message{
		BotID:             b.ID,
		ChatID:            ev.ChatID,
		SenderName:        ev.SenderName,
		Content:           ev.Content,
		Direction:         DirectionIncoming,
		WebDisabled:       !b.WebChannelEnabled,
		PlatformMessageID: ev.MessageID,
	}

	used, err := r.registry.recordInbound(msg, !b.Authorized)
	if errors.Is(err, ErrTrialLimitReached) {
		// another delivery took the last unit between load and insert
		b.TrialUsed = b.TrialLimit
		out.TrialUsed, out.Blocked = b.TrialUsed, true
		gatingRejectionsTotal.WithLabelValues(pathInbound, err.Error()).Inc()
		return out, err
	}
	if err != nil {
		return out, err
	}

	out.Persisted = true
	out.Message = msg
	r.feed.publishMessage(b, msg)

	if !b.Authorized {
		b.TrialUsed = used
		trialConsumedTotal.Inc()
		r.recordTrial(b)
	}
	out.TrialUsed, out.Blocked = b.TrialUsed, b.TrialExhausted()

	if !b.PersonalChannelEnabled {
		logger.Debugf("routeInbound bot %d: personal channel disabled, message %d kept for monitoring", b.ID, msg.ID)
		return out, nil
	}

	if ev.Text == r.startCommand && b.Greeting != "" {
		if _, err := client.Send(ev.ChatID, Payload{Text: b.Greeting}); err != nil {
			dispatchFailuresTotal.WithLabelValues(pathGreet).Inc()
			logger.Errorf("routeInbound bot %d greeting chat %d: %v", b.ID, ev.ChatID, err)
		} else {
			out.Greeted = true
		}
	}

	out.Forwarded = r.forward(b, client, ev)

	return out, nil
}

// forward relays an end-user message to the operator, embedding the
// correlation token. Failures are logged only.
func (r *Relay) forward(b *Bot, client BotClient, ev InboundEvent) bool {
	l := botLocalizer(b)

	var p Payload
	if ev.PhotoFileID != "" {
		p.PhotoFileID = ev.PhotoFileID
		p.Caption = forwardText(l, ev.SenderName, ev.ChatID, ev.MessageID, ev.Text, MaxCaptionCount)
	} else {
		body := ev.Text
		if body == "" {
			body = ev.Content
		}
		p.Text = forwardText(l, ev.SenderName, ev.ChatID, ev.MessageID, body, MaxCharsCount)
	}

	if _, err := client.Send(b.PersonalChatID, p); err != nil {
		dispatchFailuresTotal.WithLabelValues(pathForward).Inc()
		logger.Errorf("forward bot %d chat %d message %d: %v", b.ID, ev.ChatID, ev.MessageID, err)
		return false
	}

	return true
}

func (r *Relay) routeAdminReply(b *Bot, client BotClient, ev InboundEvent) (Outcome, error) {
	out := Outcome{Kind: ev.Kind, TrialUsed: b.TrialUsed, Blocked: b.TrialExhausted()}

	if err := r.checkLifecycle(b); err != nil {
		gatingRejectionsTotal.WithLabelValues(pathReply, err.Error()).Inc()
		return out, err
	}

	if !b.PersonalChannelEnabled {
		gatingRejectionsTotal.WithLabelValues(pathReply, ErrAppChannelDisabled.Error()).Inc()
		logger.Infof("routeAdminReply bot %d: personal channel disabled, reply dropped", b.ID)
		return out, nil
	}

	p := Payload{Text: ev.Text, ReplyToMessageID: ev.OriginalMessageID}
	if ev.PhotoFileID != "" {
		p = Payload{PhotoFileID: ev.PhotoFileID, Caption: ev.Text, ReplyToMessageID: ev.OriginalMessageID}
	}

	if p.empty() {
		logger.Infof("routeAdminReply bot %d: unsupported reply content %q", b.ID, ev.Content)
		return out, nil
	}

	res, err := client.Send(ev.TargetChatID, p)
	if err != nil {
		dispatchFailuresTotal.WithLabelValues(pathReply).Inc()
		logger.Errorf("routeAdminReply bot %d to chat %d: %v", b.ID, ev.TargetChatID, err)

		notice := botLocalizer(b).template("reply_failed", map[string]interface{}{"Description": res.Description})
		if _, err := client.Send(b.PersonalChatID, Payload{Text: notice, ReplyToMessageID: ev.MessageID}); err != nil {
			logger.Errorf("routeAdminReply bot %d failure notice: %v", b.ID, err)
		}

		return out, nil
	}

	msg := &Message{
		BotID:             b.ID,
		ChatID:            ev.TargetChatID,
		SenderName:        ev.SenderName,
		Content:           ev.Content,
		Direction:         DirectionOutgoing,
		IsAdminReply:      true,
		Read:              true,
		PlatformMessageID: res.MessageID,
	}

	if err := r.registry.createMessage(msg); err != nil {
		return out, err
	}

	out.Replied = true
	out.Persisted = true
	out.Message = msg
	r.feed.publishMessage(b, msg)

	return out, nil
}

func (r *Relay) recordTrial(b *Bot) {
	if _, err := r.ledger.RecordUsage(b.Token, b.TrialUsed, b.TrialLimit); err != nil {
		logger.Errorf("trial ledger bot %d: %v", b.ID, err)
	}
}

// ConsoleSend is a message typed by the operator in the web console
type ConsoleSend struct {
	ActivationID int    `json:"activationId" binding:"required"`
	ChatID       int64  `json:"chatId" binding:"required"`
	Message      string `json:"message"`
	PhotoFileID  string `json:"photoFileId"`
	PhotoBase64  string `json:"photoBase64"`
}

// SendFromConsole dispatches an operator message typed in the web console.
// Trial usage is charged only after the platform accepted the message.
func (r *Relay) SendFromConsole(b *Bot, req ConsoleSend) (*Message, SendResult, error) {
	reject := func(err error) (*Message, SendResult, error) {
		gatingRejectionsTotal.WithLabelValues(pathConsole, errors.Cause(err).Error()).Inc()
		return nil, SendResult{}, err
	}

	if err := r.checkLifecycle(b); err != nil {
		return reject(err)
	}

	if !b.WebChannelEnabled {
		return reject(ErrWebChannelDisabled)
	}

	if b.TrialExhausted() {
		return reject(ErrTrialLimitReached)
	}

	p, ref, err := r.consolePayload(b, req)
	if err != nil {
		return nil, SendResult{}, err
	}

	res, err := r.clients(b.Token).Send(req.ChatID, p)
	if err != nil {
		dispatchFailuresTotal.WithLabelValues(pathConsole).Inc()
		return nil, res, err
	}

	content := req.Message
	if p.Text == "" {
		if ref == "" {
			ref = res.PhotoFileID
		}
		content = mediaContent(ref, req.Message)
	}

	msg := &Message{
		BotID:             b.ID,
		ChatID:            req.ChatID,
		SenderName:        b.Name,
		Content:           content,
		Direction:         DirectionOutgoing,
		Read:              true,
		PlatformMessageID: res.MessageID,
	}

	if err := r.registry.createMessage(msg); err != nil {
		return nil, res, err
	}
	r.feed.publishMessage(b, msg)

	if !b.Authorized {
		used, charged, err := r.registry.incrementTrial(b.ID)
		switch {
		case err != nil:
			logger.Errorf("SendFromConsole bot %d increment trial: %v", b.ID, err)
		case !charged:
			logger.Warningf("SendFromConsole bot %d: trial limit reached concurrently", b.ID)
		default:
			b.TrialUsed = used
			trialConsumedTotal.Inc()
			r.recordTrial(b)
		}
	}

	return msg, res, nil
}

// consolePayload builds the outbound payload; ref is the media reference to
// persist when already known.
func (r *Relay) consolePayload(b *Bot, req ConsoleSend) (Payload, string, error) {
	switch {
	case req.PhotoBase64 != "":
		raw, err := decodeBase64Photo(req.PhotoBase64)
		if err != nil {
			return Payload{}, "", errors.Wrap(ErrEmptyMessage, err.Error())
		}

		name := fmt.Sprintf("%d-%s.%s", b.ID, GenerateToken()[:16], imageExtension(raw))

		var ref string
		if r.archive != nil {
			if ref, err = r.archive.Upload(name, raw); err != nil {
				logger.Errorf("consolePayload bot %d archive: %v", b.ID, err)
			}
		}

		return Payload{PhotoBytes: raw, PhotoName: name, Caption: req.Message}, ref, nil
	case req.PhotoFileID != "":
		return Payload{PhotoFileID: req.PhotoFileID, Caption: req.Message}, req.PhotoFileID, nil
	case req.Message != "":
		return Payload{Text: req.Message}, "", nil
	}

	return Payload{}, "", ErrEmptyMessage
}
