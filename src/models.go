package main

import "time"

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Bot model
type Bot struct {
	ID                     int        `gorm:"primary_key" json:"id"`
	Token                  string     `gorm:"type:varchar(100);not null;unique" json:"token"`
	Name                   string     `gorm:"type:varchar(64)" json:"name,omitempty"`
	PersonalChatID         int64      `gorm:"not null" json:"personalChatId"`
	OwnerID                string     `gorm:"type:varchar(100);index" json:"ownerId,omitempty"`
	Lang                   string     `gorm:"type:varchar(2)" json:"lang,omitempty"`
	Active                 bool       `json:"active"`
	Authorized             bool       `json:"authorized"`
	WebChannelEnabled      bool       `json:"webChannelEnabled"`
	PersonalChannelEnabled bool       `json:"personalChannelEnabled"`
	TrialUsed              int        `gorm:"not null" json:"trialUsed"`
	TrialLimit             int        `gorm:"not null" json:"trialLimit"`
	ExpireAt               *time.Time `json:"expireAt"`
	Greeting               string     `gorm:"type:text" json:"greeting,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// Expired reports whether the bot expiry timestamp has passed
func (b *Bot) Expired(now time.Time) bool {
	return b.ExpireAt != nil && b.ExpireAt.Before(now)
}

// TrialExhausted reports whether an unauthorized bot used up its quota
func (b *Bot) TrialExhausted() bool {
	return !b.Authorized && b.TrialUsed >= b.TrialLimit
}

//Bots list
type Bots []Bot

// Message model. Rows are append-only.
type Message struct {
	ID                int64     `gorm:"primary_key" json:"id"`
	BotID             int       `gorm:"not null;index" json:"botId"`
	ChatID            int64     `gorm:"not null;index" json:"chatId"`
	SenderName        string    `gorm:"type:varchar(255)" json:"senderName"`
	Content           string    `gorm:"type:text" json:"content"`
	Direction         string    `gorm:"type:varchar(8);not null" json:"direction"`
	IsAdminReply      bool      `json:"isAdminReply"`
	Read              bool      `json:"read"`
	WebDisabled       bool      `json:"webDisabled"`
	PlatformMessageID int       `json:"platformMessageId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TrialRecord is keyed by the platform token so usage survives bot re-creation
type TrialRecord struct {
	Token         string    `gorm:"type:varchar(100);primary_key" json:"token"`
	MessagesUsed  int       `gorm:"not null" json:"messagesUsed"`
	Blocked       bool      `json:"blocked"`
	WasAuthorized bool      `json:"wasAuthorized"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ActivationCode model
type ActivationCode struct {
	ID        int        `gorm:"primary_key" json:"id"`
	Code      string     `gorm:"type:varchar(64);not null;unique" json:"code"`
	ExpireAt  *time.Time `json:"expireAt,omitempty"`
	Used      bool       `json:"used"`
	BotID     *int       `json:"botId,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedBy string     `gorm:"type:varchar(100)" json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Account mirrors an identity-provider subject that owns bots
type Account struct {
	ID        string    `gorm:"type:varchar(100);primary_key" json:"id"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
