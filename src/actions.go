package main

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

const (
	portWeb      = "web"
	portPersonal = "personal"
)

var errUnknownAction = errors.New("unknown_action")

// command is one management action with its own validated input
type command interface {
	adminOnly() bool
	run(e *env, acc *AccountClaims) (interface{}, error)
}

var commands = map[string]func() command{
	"create":               func() command { return &createCommand{} },
	"authorize":            func() command { return &authorizeCommand{} },
	"toggle":               func() command { return &toggleCommand{} },
	"delete":               func() command { return &deleteCommand{} },
	"extend":               func() command { return &extendCommand{} },
	"list":                 func() command { return &listCommand{} },
	"generate-codes":       func() command { return &generateCodesCommand{} },
	"bind-existing":        func() command { return &bindExistingCommand{} },
	"admin-authorize":      func() command { return &adminAuthorizeCommand{} },
	"toggle-port":          func() command { return &togglePortCommand{} },
	"toggle-user-disabled": func() command { return &toggleUserDisabledCommand{} },
	"issue":                func() command { return &issueCommand{} },
	"set-greeting":         func() command { return &setGreetingCommand{} },
}

// decodeCommand resolves the action of a management request and decodes the
// body into that action's input.
func decodeCommand(body []byte) (command, error) {
	var envelope struct {
		Action string `json:"action"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, "decode action")
	}

	newCmd, ok := commands[envelope.Action]
	if !ok {
		return nil, errors.Wrap(errUnknownAction, envelope.Action)
	}

	cmd := newCmd()
	if err := json.Unmarshal(body, cmd); err != nil {
		return nil, errors.Wrapf(err, "decode %s", envelope.Action)
	}

	if err := binding.Validator.ValidateStruct(cmd); err != nil {
		return nil, errors.Wrapf(err, "validate %s", envelope.Action)
	}

	return cmd, nil
}

type createCommand struct {
	Token          string `json:"token" binding:"required,telegramtoken"`
	PersonalChatID int64  `json:"personalChatId" binding:"required"`
	Greeting       string `json:"greeting" binding:"max=4096"`
	Lang           string `json:"lang" binding:"omitempty,len=2"`
}

func (createCommand) adminOnly() bool { return false }

func (cmd *createCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	return e.registerBot(&Bot{
		Token:                  cmd.Token,
		PersonalChatID:         cmd.PersonalChatID,
		OwnerID:                acc.Subject,
		Lang:                   cmd.Lang,
		Greeting:               cmd.Greeting,
		TrialLimit:             e.config.Trial.DefaultLimit,
		Active:                 true,
		WebChannelEnabled:      true,
		PersonalChannelEnabled: true,
	})
}

type issueCommand struct {
	Token          string `json:"token" binding:"required,telegramtoken"`
	PersonalChatID int64  `json:"personalChatId" binding:"required"`
	OwnerID        string `json:"ownerId"`
	Authorized     bool   `json:"authorized"`
	ValidDays      int    `json:"validDays" binding:"min=0"`
	TrialLimit     int    `json:"trialLimit" binding:"min=0"`
	Lang           string `json:"lang" binding:"omitempty,len=2"`
}

func (issueCommand) adminOnly() bool { return true }

func (cmd *issueCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b := &Bot{
		Token:                  cmd.Token,
		PersonalChatID:         cmd.PersonalChatID,
		OwnerID:                cmd.OwnerID,
		Lang:                   cmd.Lang,
		Authorized:             cmd.Authorized,
		TrialLimit:             cmd.TrialLimit,
		Active:                 true,
		WebChannelEnabled:      true,
		PersonalChannelEnabled: true,
	}

	if b.TrialLimit == 0 {
		b.TrialLimit = e.config.Trial.DefaultLimit
	}

	if cmd.ValidDays > 0 {
		exp := e.now().AddDate(0, 0, cmd.ValidDays)
		b.ExpireAt = &exp
	}

	return e.registerBot(b)
}

// registerBot validates the token against the platform, subscribes the
// webhook and stores the bot. A token seen before inherits its trial usage.
func (e *env) registerBot(b *Bot) (*Bot, error) {
	existing, err := e.orm.findBotByToken(b.Token)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return nil, ErrBotAlreadyExists
	}

	client := e.clients(b.Token)

	name, err := client.Identify()
	if err != nil {
		logger.Error(b.Token, err.Error())
		return nil, ErrIncorrectToken
	}
	b.Name = name

	if b.Lang == "" {
		b.Lang = defaultLang
	}

	rec, err := e.ledger.Lookup(b.Token)
	if err != nil {
		return nil, err
	}

	if rec != nil && !b.Authorized {
		b.TrialUsed = rec.MessagesUsed
	}

	if err := client.SetWebhook(e.config.webhookURL(b.Token)); err != nil {
		logger.Error(b.Token, err.Error())
		return nil, ErrWebhookFailed
	}

	if err := e.orm.createBot(b); err != nil {
		if err := client.DeleteWebhook(); err != nil {
			logger.Errorf("registerBot rollback webhook %d: %v", b.ID, err)
		}
		return nil, err
	}

	if b.Authorized {
		if err := e.ledger.MarkAuthorized(b.Token); err != nil {
			logger.Errorf("registerBot ledger: %v", err)
		}
	}

	e.feed.publishBot(b)

	return b, nil
}

type botRef struct {
	ID int `json:"id" binding:"required"`
}

type authorizeCommand struct {
	botRef
	Code string `json:"code" binding:"required"`
}

func (authorizeCommand) adminOnly() bool { return false }

func (cmd *authorizeCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	if b.Authorized {
		return b, nil
	}

	if err := e.orm.redeemActivationCode(cmd.Code, b.ID, e.now()); err != nil {
		return nil, err
	}

	if err := e.ledger.MarkAuthorized(b.Token); err != nil {
		logger.Errorf("authorize ledger bot %d: %v", b.ID, err)
	}

	return e.reloadBot(b)
}

type toggleCommand struct {
	botRef
}

func (toggleCommand) adminOnly() bool { return false }

func (cmd *toggleCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	return e.updateBot(b, map[string]interface{}{"active": !b.Active})
}

type togglePortCommand struct {
	botRef
	Port string `json:"port" binding:"required,botport"`
}

func (togglePortCommand) adminOnly() bool { return false }

func (cmd *togglePortCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	if cmd.Port == portWeb {
		return e.updateBot(b, map[string]interface{}{"web_channel_enabled": !b.WebChannelEnabled})
	}

	return e.updateBot(b, map[string]interface{}{"personal_channel_enabled": !b.PersonalChannelEnabled})
}

type setGreetingCommand struct {
	botRef
	Greeting string `json:"greeting" binding:"max=4096"`
}

func (setGreetingCommand) adminOnly() bool { return false }

func (cmd *setGreetingCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	return e.updateBot(b, map[string]interface{}{"greeting": cmd.Greeting})
}

type deleteCommand struct {
	botRef
}

func (deleteCommand) adminOnly() bool { return false }

func (cmd *deleteCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	if err := e.clients(b.Token).DeleteWebhook(); err != nil {
		// a revoked token can no longer hold a subscription
		if _, rejected := err.(*tgbotapi.Error); !rejected {
			logger.Error(b.ID, err.Error())
			return nil, ErrWebhookFailed
		}
		logger.Warningf("delete bot %d: webhook removal rejected: %v", b.ID, err)
	}

	if err := e.orm.deleteBot(b.ID); err != nil {
		return nil, err
	}

	e.feed.Publish(FeedEvent{Type: FeedBotDeleted, OwnerID: b.OwnerID, BotID: b.ID})

	return gin.H{"id": b.ID}, nil
}

type extendCommand struct {
	botRef
	Days int `json:"days" binding:"required,min=1"`
}

func (extendCommand) adminOnly() bool { return true }

func (cmd *extendCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.ownedBot(acc, cmd.ID)
	if err != nil {
		return nil, err
	}

	from := e.now()
	if b.ExpireAt != nil && b.ExpireAt.After(from) {
		from = *b.ExpireAt
	}
	exp := from.AddDate(0, 0, cmd.Days)

	return e.updateBot(b, map[string]interface{}{"expire_at": exp, "active": true})
}

type listCommand struct {
	OwnerID string `json:"ownerId"`
}

func (listCommand) adminOnly() bool { return false }

func (cmd *listCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	if !acc.isAdmin(e.config.Identity.AdminRole) {
		return e.orm.getBotsByOwner(acc.Subject)
	}

	if cmd.OwnerID != "" {
		return e.orm.getBotsByOwner(cmd.OwnerID)
	}

	return e.orm.getBots()
}

type generateCodesCommand struct {
	Count     int `json:"count" binding:"required,min=1,max=100"`
	ValidDays int `json:"validDays" binding:"min=0"`
}

func (generateCodesCommand) adminOnly() bool { return true }

func (cmd *generateCodesCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	codes := make([]ActivationCode, cmd.Count)

	for i := range codes {
		codes[i] = ActivationCode{Code: GenerateToken()[:24], CreatedBy: acc.Subject}
		if cmd.ValidDays > 0 {
			exp := e.now().AddDate(0, 0, cmd.ValidDays)
			codes[i].ExpireAt = &exp
		}
	}

	if err := e.orm.createActivationCodes(codes); err != nil {
		return nil, err
	}

	return codes, nil
}

type bindExistingCommand struct {
	Token          string `json:"token" binding:"required,telegramtoken"`
	PersonalChatID int64  `json:"personalChatId"`
}

func (bindExistingCommand) adminOnly() bool { return false }

func (cmd *bindExistingCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.orm.getBotByToken(cmd.Token)
	if err != nil {
		return nil, err
	}

	if b.OwnerID != "" && b.OwnerID != acc.Subject {
		return nil, ErrForbidden
	}

	fields := map[string]interface{}{"owner_id": acc.Subject}
	if cmd.PersonalChatID != 0 {
		fields["personal_chat_id"] = cmd.PersonalChatID
	}

	return e.updateBot(b, fields)
}

type adminAuthorizeCommand struct {
	botRef
	Authorized *bool `json:"authorized"`
}

func (adminAuthorizeCommand) adminOnly() bool { return true }

func (cmd *adminAuthorizeCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	b, err := e.orm.getBotByID(cmd.ID)
	if err != nil {
		return nil, err
	}

	authorized := cmd.Authorized == nil || *cmd.Authorized
	if authorized {
		if err := e.ledger.MarkAuthorized(b.Token); err != nil {
			logger.Errorf("admin-authorize ledger bot %d: %v", b.ID, err)
		}
	}

	return e.updateBot(b, map[string]interface{}{"authorized": authorized})
}

type toggleUserDisabledCommand struct {
	UserID string `json:"userId" binding:"required"`
}

func (toggleUserDisabledCommand) adminOnly() bool { return true }

func (cmd *toggleUserDisabledCommand) run(e *env, acc *AccountClaims) (interface{}, error) {
	current, err := e.orm.getAccount(cmd.UserID)
	if err != nil {
		return nil, err
	}

	return e.orm.setAccountDisabled(cmd.UserID, !current.Disabled)
}

// ownedBot loads a bot the caller may manage
func (e *env) ownedBot(acc *AccountClaims, id int) (*Bot, error) {
	b, err := e.orm.getBotByID(id)
	if err != nil {
		return nil, err
	}

	if b.OwnerID != acc.Subject && !acc.isAdmin(e.config.Identity.AdminRole) {
		return nil, ErrForbidden
	}

	return b, nil
}

func (e *env) updateBot(b *Bot, fields map[string]interface{}) (*Bot, error) {
	if err := e.orm.updateBot(b, fields); err != nil {
		return nil, err
	}

	e.feed.publishBot(b)

	return b, nil
}

func (e *env) reloadBot(b *Bot) (*Bot, error) {
	b, err := e.orm.getBotByID(b.ID)
	if err != nil {
		return nil, err
	}

	e.feed.publishBot(b)

	return b, nil
}
