package main

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// Registry is the storage the relay needs for routing decisions
type Registry interface {
	getBotByToken(token string) (*Bot, error)
	deactivateBot(id int) error
	recordInbound(m *Message, chargeTrial bool) (int, error)
	createMessage(m *Message) error
	incrementTrial(botID int) (int, bool, error)
	getAccount(id string) (*Account, error)
}

func notFoundOr(err error, msg string) error {
	if gorm.IsRecordNotFoundError(err) {
		return ErrBotNotFound
	}

	return storageError(err, msg)
}

func (orm *Orm) getBotByToken(token string) (*Bot, error) {
	var b Bot
	if err := orm.DB.First(&b, "token = ?", token).Error; err != nil {
		return nil, notFoundOr(err, "get bot by token")
	}

	return &b, nil
}

func (orm *Orm) getBotByID(id int) (*Bot, error) {
	var b Bot
	if err := orm.DB.First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "get bot by id")
	}

	return &b, nil
}

// findBotByToken is getBotByToken without the not-found error
func (orm *Orm) findBotByToken(token string) (*Bot, error) {
	b, err := orm.getBotByToken(token)
	if errors.Is(err, ErrBotNotFound) {
		return nil, nil
	}

	return b, err
}

func (orm *Orm) getBotsByOwner(ownerID string) (Bots, error) {
	var b Bots
	err := orm.DB.Where("owner_id = ?", ownerID).Order("id").Find(&b).Error

	return b, storageError(err, "get bots by owner")
}

func (orm *Orm) getBots() (Bots, error) {
	var b Bots
	err := orm.DB.Order("id").Find(&b).Error

	return b, storageError(err, "get bots")
}

func (orm *Orm) createBot(b *Bot) error {
	return storageError(orm.DB.Create(b).Error, "create bot")
}

// updateBot applies column updates and reloads b
func (orm *Orm) updateBot(b *Bot, fields map[string]interface{}) error {
	if err := orm.DB.Model(b).Updates(fields).Error; err != nil {
		return storageError(err, "update bot")
	}

	return storageError(orm.DB.First(b, "id = ?", b.ID).Error, "reload bot")
}

func (orm *Orm) deactivateBot(id int) error {
	err := orm.DB.Model(&Bot{}).Where("id = ?", id).Update("active", false).Error

	return storageError(err, "deactivate bot")
}

// deleteBot removes the bot and its conversations. The trial record is kept.
func (orm *Orm) deleteBot(id int) error {
	return storageError(orm.transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(Message{}, "bot_id = ?", id).Error; err != nil {
			return err
		}

		return tx.Delete(Bot{}, "id = ?", id).Error
	}), "delete bot")
}

// recordInbound stores an inbound message. When chargeTrial is set the trial
// counter is incremented in the same transaction, only while it is below the
// limit; otherwise the insert is rolled back with ErrTrialLimitReached.
// It returns the trial counter after the operation.
func (orm *Orm) recordInbound(m *Message, chargeTrial bool) (int, error) {
	var used int

	err := orm.transaction(func(tx *gorm.DB) error {
		if chargeTrial {
			res := tx.Model(&Bot{}).
				Where("id = ? AND authorized = ? AND trial_used < trial_limit", m.BotID, false).
				UpdateColumn("trial_used", gorm.Expr("trial_used + ?", 1))
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected == 0 {
				return ErrTrialLimitReached
			}
		}

		if err := tx.Create(m).Error; err != nil {
			return err
		}

		var b Bot
		if err := tx.Select("trial_used").First(&b, "id = ?", m.BotID).Error; err != nil {
			return err
		}
		used = b.TrialUsed

		return nil
	})

	if errors.Is(err, ErrTrialLimitReached) {
		return 0, err
	}

	return used, storageError(err, "record inbound message")
}

func (orm *Orm) createMessage(m *Message) error {
	return storageError(orm.DB.Create(m).Error, "create message")
}

// incrementTrial charges one message to an unauthorized bot below its limit.
// ok is false when nothing was charged.
func (orm *Orm) incrementTrial(botID int) (int, bool, error) {
	res := orm.DB.Model(&Bot{}).
		Where("id = ? AND authorized = ? AND trial_used < trial_limit", botID, false).
		UpdateColumn("trial_used", gorm.Expr("trial_used + ?", 1))
	if res.Error != nil {
		return 0, false, storageError(res.Error, "increment trial")
	}

	var b Bot
	if err := orm.DB.Select("trial_used").First(&b, "id = ?", botID).Error; err != nil {
		return 0, false, notFoundOr(err, "reload trial")
	}

	return b.TrialUsed, res.RowsAffected > 0, nil
}

// MessageFilter selects messages of one bot
type MessageFilter struct {
	BotID int
	// ChatID of zero selects all conversations
	ChatID int64
	// Monitoring includes rows received while the web channel was disabled
	Monitoring bool
	Limit      int
}

func (orm *Orm) getMessages(f MessageFilter) ([]Message, error) {
	q := orm.DB.Where("bot_id = ?", f.BotID)
	if f.ChatID != 0 {
		q = q.Where("chat_id = ?", f.ChatID)
	}

	if !f.Monitoring {
		q = q.Where("web_disabled = ?", false)
	}

	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	var messages []Message
	err := q.Order("id desc").Limit(f.Limit).Find(&messages).Error
	if err != nil {
		return nil, storageError(err, "get messages")
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (orm *Orm) markChatRead(botID int, chatID int64) (int64, error) {
	res := orm.DB.Model(&Message{}).
		Where("bot_id = ? AND chat_id = ? AND direction = ? AND read = ? AND web_disabled = ?",
			botID, chatID, DirectionIncoming, false, false).
		UpdateColumn("read", true)

	return res.RowsAffected, storageError(res.Error, "mark chat read")
}

func (orm *Orm) createActivationCodes(codes []ActivationCode) error {
	return storageError(orm.transaction(func(tx *gorm.DB) error {
		for i := range codes {
			if err := tx.Create(&codes[i]).Error; err != nil {
				return err
			}
		}

		return nil
	}), "create activation codes")
}

// redeemActivationCode binds an unused, unexpired code to a bot and
// authorizes it. A code never binds twice.
func (orm *Orm) redeemActivationCode(code string, botID int, now time.Time) error {
	return orm.transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ActivationCode{}).
			Where("code = ? AND used = ? AND (expire_at IS NULL OR expire_at > ?)", code, false, now).
			Updates(map[string]interface{}{"used": true, "bot_id": botID, "used_at": now})
		if res.Error != nil {
			return storageError(res.Error, "redeem code")
		}

		if res.RowsAffected == 0 {
			return ErrCodeInvalid
		}

		err := tx.Model(&Bot{}).Where("id = ?", botID).Update("authorized", true).Error

		return storageError(err, "authorize bot")
	})
}

func (orm *Orm) getAccount(id string) (*Account, error) {
	var a Account
	err := orm.DB.First(&a, "id = ?", id).Error
	if gorm.IsRecordNotFoundError(err) {
		return &Account{ID: id}, nil
	}

	return &a, storageError(err, "get account")
}

// setAccountDisabled flips the account flag. Bots keep their own active flag;
// the relay gates on the owner account.
func (orm *Orm) setAccountDisabled(id string, disabled bool) (*Account, error) {
	acc := Account{ID: id}

	err := orm.DB.Where(Account{ID: id}).
		Assign(map[string]interface{}{"disabled": disabled}).
		FirstOrCreate(&acc).Error

	return &acc, storageError(err, "set account disabled")
}

// redactMedia rewrites media links of messages older than before. Rows are
// never deleted.
func (orm *Orm) redactMedia(before time.Time, batch int) (int, error) {
	var (
		total  int
		lastID int64
	)

	for {
		var messages []Message
		err := orm.DB.
			Where("id > ? AND created_at < ? AND content LIKE ?", lastID, before, mediaPrefix+"http%").
			Order("id").Limit(batch).Find(&messages).Error
		if err != nil {
			return total, storageError(err, "select media")
		}

		for _, m := range messages {
			lastID = m.ID

			_, caption, _ := splitMediaContent(m.Content)
			err := orm.DB.Model(&Message{}).Where("id = ?", m.ID).
				UpdateColumn("content", mediaContent(redactedMedia, caption)).Error
			if err != nil {
				return total, storageError(err, "redact media")
			}
			total++
		}

		if len(messages) < batch {
			return total, nil
		}
	}
}
