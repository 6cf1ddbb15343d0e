// Package bot is the Telegram command surface: a long-polling loop
// with handlers registered by slash-command name, plus the outbound
// message transport the notifier dispatches through. Validation errors
// are answered inline as single-line replies and never reach the
// pipeline.
package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/trypto13/jeet-tracker/history"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/store"
)

// ChainClient is the subset of the RPC the command surface needs.
type ChainClient interface {
	GetBalance(ctx context.Context, addr string, confirmedOnly bool) (int64, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// Config carries the bot's policy knobs.
type Config struct {
	Password    string // legacy gate; empty disables /auth
	MaxWallets  int
	AdminChatID int64
}

type handler func(ctx context.Context, msg *tgbotapi.Message) string

// Bot owns the Telegram API client and the command handlers.
type Bot struct {
	api      *tgbotapi.BotAPI
	st       *store.Store
	rpc      ChainClient
	idx      *indexer.Client
	resolver *identity.Resolver
	hist     *history.Scanner
	prices   *priceCache
	cfg      Config

	handlers map[string]handler

	mu       sync.Mutex
	lastUsed map[string]time.Time // chatId|command -> last execution
}

// New connects to the Telegram API and registers all handlers.
func New(token string, st *store.Store, rpc ChainClient, idx *indexer.Client, resolver *identity.Resolver, hist *history.Scanner, cfg Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if cfg.MaxWallets <= 0 {
		cfg.MaxWallets = 20
	}

	b := &Bot{
		api:      api,
		st:       st,
		rpc:      rpc,
		idx:      idx,
		resolver: resolver,
		hist:     hist,
		prices:   newPriceCache(idx),
		cfg:      cfg,
		lastUsed: make(map[string]time.Time),
	}
	b.handlers = map[string]handler{
		"start":     b.cmdHelp,
		"help":      b.cmdHelp,
		"auth":      b.cmdAuth,
		"redeem":    b.cmdRedeem,
		"track":     b.cmdTrack,
		"untrack":   b.cmdUntrack,
		"list":      b.cmdList,
		"balance":   b.cmdBalance,
		"portfolio": b.cmdPortfolio,
		"pool":      b.cmdPool,
		"watch":     b.cmdWatch,
		"unwatch":   b.cmdUnwatch,
		"status":    b.cmdStatus,
		"gencode":   b.cmdGenCode,
	}
	return b, nil
}

// SendMessage implements the notifier's Messenger.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	log.Printf("[bot] long-polling as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	h, ok := b.handlers[msg.Command()]
	if !ok {
		return
	}
	if wait := b.rateLimited(msg.Chat.ID, msg.Command()); wait > 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf("⏳ Try again in %ds.", int(wait.Seconds())+1))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if text := h(cctx, msg); text != "" {
		b.reply(msg.Chat.ID, text)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		log.Printf("[bot] reply to %d: %v", chatID, err)
		return
	}
	metrics.MessagesSent.WithLabelValues("ok").Inc()
}

// rateLimits maps commands to their per-chat cool-down.
var rateLimits = map[string]time.Duration{
	"balance":   10 * time.Second,
	"portfolio": 30 * time.Second,
	"pool":      10 * time.Second,
}

// rateLimited returns how long the chat must still wait, or 0.
func (b *Bot) rateLimited(chatID int64, cmd string) time.Duration {
	window, limited := rateLimits[cmd]
	if !limited {
		return 0
	}
	key := fmt.Sprintf("%d|%s", chatID, cmd)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if last, ok := b.lastUsed[key]; ok {
		if remaining := window - now.Sub(last); remaining > 0 {
			return remaining
		}
	}
	b.lastUsed[key] = now
	return 0
}
