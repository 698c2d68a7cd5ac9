package main

import (
	"sync"
)

const (
	FeedMessageCreated = "message"
	FeedBotUpdated     = "bot"
	FeedBotDeleted     = "bot_deleted"
)

// FeedEvent is one row-level change
type FeedEvent struct {
	Type    string   `json:"type"`
	OwnerID string   `json:"-"`
	BotID   int      `json:"botId"`
	Message *Message `json:"message,omitempty"`
	Bot     *Bot     `json:"bot,omitempty"`
}

// Feed fans row changes out to console subscribers. Slow subscribers miss
// events; clients reconcile by reloading.
type Feed struct {
	mu   sync.Mutex
	subs map[chan FeedEvent]func(FeedEvent) bool
}

func newFeed() *Feed {
	return &Feed{subs: make(map[chan FeedEvent]func(FeedEvent) bool)}
}

// Subscribe registers a subscriber receiving the events accepted by filter
func (f *Feed) Subscribe(filter func(FeedEvent) bool) (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, 32)

	f.mu.Lock()
	f.subs[ch] = filter
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
	}
}

func (f *Feed) Publish(ev FeedEvent) {
	if f == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for ch, filter := range f.subs {
		if !filter(ev) {
			continue
		}

		select {
		case ch <- ev:
		default:
			logger.Warningf("feed: subscriber lagging, dropped %s event for bot %d", ev.Type, ev.BotID)
		}
	}
}

func (f *Feed) publishMessage(b *Bot, m *Message) {
	f.Publish(FeedEvent{Type: FeedMessageCreated, OwnerID: b.OwnerID, BotID: b.ID, Message: m})
}

func (f *Feed) publishBot(b *Bot) {
	f.Publish(FeedEvent{Type: FeedBotUpdated, OwnerID: b.OwnerID, BotID: b.ID, Bot: b})
}
