package bot

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/notify"
	"github.com/trypto13/jeet-tracker/store"
)

var (
	codeRe = regexp.MustCompile(`^JT-[A-Z0-9]{12}$`)
	hashRe = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
)

func (b *Bot) cmdHelp(_ context.Context, _ *tgbotapi.Message) string {
	return `Commands:
/track <address> [label] - watch a wallet
/untrack <id> - stop watching
/list - your tracked wallets
/balance <address|id> - BTC + token balances
/portfolio - rollup across all wallets
/pool <contract> - live pool state
/watch <contract> [pct] [minsat] [nft] - watch a token
/unwatch <id> - drop a token watch
/redeem <code> - activate a subscription
/status - cursor and subscription state`
}

func (b *Bot) cmdAuth(ctx context.Context, msg *tgbotapi.Message) string {
	if b.cfg.Password == "" {
		return "Password auth is disabled. Use /redeem."
	}
	if msg.CommandArguments() != b.cfg.Password {
		return "❌ Wrong password."
	}
	if err := b.st.Authorize(ctx, msg.Chat.ID); err != nil {
		return "❌ Something went wrong, try again."
	}
	return "✅ Authorized. A live subscription (/redeem) is still required for notifications."
}

func (b *Bot) cmdRedeem(ctx context.Context, msg *tgbotapi.Message) string {
	code := strings.ToUpper(strings.TrimSpace(msg.CommandArguments()))
	if !codeRe.MatchString(code) {
		return "❌ Codes look like JT-XXXXXXXXXXXX."
	}
	days, err := b.st.RedeemCode(ctx, code, msg.Chat.ID, time.Now())
	switch {
	case errors.Is(err, store.ErrCodeUnknown):
		return "❌ Unknown code."
	case errors.Is(err, store.ErrCodeUsed):
		return "❌ This code was already redeemed by another chat."
	case errors.Is(err, store.ErrCodeExpired):
		return "❌ This code has expired."
	case err != nil:
		return "❌ Something went wrong, try again."
	}
	paid := b.st.PaidFor(msg.Chat.ID)
	return fmt.Sprintf("✅ Subscription active for %d days (until %s).",
		days, paid.ExpiresAt.Format("2006-01-02"))
}

func (b *Bot) cmdTrack(ctx context.Context, msg *tgbotapi.Message) string {
	if !b.st.IsAuthorized(msg.Chat.ID) {
		return "❌ Authorize first: /auth <password> or /redeem <code>."
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return "Usage: /track <address> [label]"
	}
	addr := args[0]
	label := strings.Join(args[1:], " ")

	// A raw identity hash is not trackable, but it can point at an
	// existing subscription in another address format.
	if hashRe.MatchString(addr) {
		if dup := b.st.FindByMLDSA(msg.Chat.ID, identity.NormalizeHash(addr)); dup != nil {
			return fmt.Sprintf("Already tracking this wallet as %s.", dup.Address)
		}
		return "❌ That's an identity hash; supply one of the wallet's addresses."
	}
	if !b.resolver.ValidAddress(addr) {
		return "❌ That doesn't look like a valid address for this network."
	}
	if b.st.CountForChat(msg.Chat.ID) >= b.cfg.MaxWallets {
		return fmt.Sprintf("❌ Wallet limit reached (%d).", b.cfg.MaxWallets)
	}

	// Resolve before creating so the same identity under a different
	// format is refused up front. Resolution failure is not fatal;
	// the pipeline retries it every tick.
	linkage, err := b.resolver.Resolve(ctx, addr)
	if err == nil && linkage != nil {
		if dup := b.st.FindByMLDSA(msg.Chat.ID, linkage.MLDSAHash); dup != nil {
			return fmt.Sprintf("Already tracking this wallet as %s.", dup.Address)
		}
	}

	sub, err := b.st.CreateSubscription(ctx, msg.Chat.ID, addr, label)
	if errors.Is(err, store.ErrAlreadyTracked) {
		return "Already tracking this address."
	}
	if err != nil {
		return "❌ Something went wrong, try again."
	}
	if linkage != nil {
		if err := b.st.SetLinkage(ctx, addr, linkage); err == nil {
			b.hist.Start(addr, linkage.MLDSAHash)
		}
	}
	name := sub.Label
	if name == "" {
		name = sub.Address
	}
	return fmt.Sprintf("✅ Tracking %s (id %s).", name, sub.ID)
}

func (b *Bot) cmdUntrack(ctx context.Context, msg *tgbotapi.Message) string {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		return "Usage: /untrack <id> (see /list)"
	}
	if err := b.st.DeleteSubscription(ctx, msg.Chat.ID, id); err != nil {
		return "❌ No such wallet id."
	}
	return "✅ Untracked."
}

func (b *Bot) cmdList(_ context.Context, msg *tgbotapi.Message) string {
	subs := b.st.SubscriptionsForChat(msg.Chat.ID)
	if len(subs) == 0 {
		return "No tracked wallets. Use /track <address>."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tracked wallets (%d/%d):\n", len(subs), b.cfg.MaxWallets)
	for _, s := range subs {
		name := s.Label
		if name == "" {
			name = s.Address
		}
		fmt.Fprintf(&sb, "• %s — %s [%s]\n", name, s.Address, s.ID)
	}
	return sb.String()
}

func (b *Bot) cmdBalance(ctx context.Context, msg *tgbotapi.Message) string {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return "Usage: /balance <address|id>"
	}
	addr := arg
	for _, s := range b.st.SubscriptionsForChat(msg.Chat.ID) {
		if s.ID == arg {
			addr = s.Address
			break
		}
	}

	sats, err := b.rpc.GetBalance(ctx, addr, true)
	if err != nil {
		return "❌ Balance lookup failed, try again later."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nBTC: %s\n", addr, notify.FormatBTC(sats))

	// Token balances are best effort and bounded by the seen set.
	if balances, err := b.idx.Balances(ctx, addr); err == nil {
		for _, bal := range balances {
			name := bal.Symbol
			if name == "" {
				name = bal.Contract
			}
			fmt.Fprintf(&sb, "%s: %s\n", name, bal.Amount)
		}
	}
	return sb.String()
}

func (b *Bot) cmdPortfolio(ctx context.Context, msg *tgbotapi.Message) string {
	subs := b.st.SubscriptionsForChat(msg.Chat.ID)
	if len(subs) == 0 {
		return "No tracked wallets."
	}

	sats := make([]int64, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(10)
	for i := range subs {
		i := i
		g.Go(func() error {
			v, err := b.rpc.GetBalance(gctx, subs[i].Address, true)
			if err != nil {
				return err
			}
			sats[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "❌ Portfolio lookup failed, try again later."
	}

	var sb strings.Builder
	var total int64
	sb.WriteString("Portfolio:\n")
	for i, s := range subs {
		name := s.Label
		if name == "" {
			name = s.Address
		}
		fmt.Fprintf(&sb, "• %s: %s\n", name, notify.FormatBTC(sats[i]))
		total += sats[i]
	}
	fmt.Fprintf(&sb, "Total: %s", notify.FormatBTC(total))

	// Token holdings priced off cached pool reserves; contracts with no
	// known pool are skipped silently.
	var tokenSats int64
	var priced bool
	for _, s := range subs {
		balances, err := b.idx.Balances(ctx, s.Address)
		if err != nil {
			continue
		}
		for _, bal := range balances {
			amount := indexer.ParseAmount(bal.Amount)
			if amount == nil {
				continue
			}
			if v, ok := b.prices.satValue(ctx, bal.Contract, amount); ok {
				tokenSats += v
				priced = true
			}
		}
	}
	if priced {
		fmt.Fprintf(&sb, "\nTokens: ≈ %s", notify.FormatBTC(tokenSats))
	}
	return sb.String()
}

func (b *Bot) cmdPool(ctx context.Context, msg *tgbotapi.Message) string {
	contract := strings.TrimSpace(msg.CommandArguments())
	if contract == "" {
		return "Usage: /pool <contract>"
	}
	listings, err := b.idx.Listings(ctx, contract)
	if err != nil {
		return "❌ Pool lookup failed, try again later."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pool %s\n", contract)
	fmt.Fprintf(&sb, "Priority providers: %d\nStandard providers: %d\n",
		listings.PriorityCount, listings.StandardCount)
	if prices := b.prices.get(ctx, contract); prices != nil {
		fmt.Fprintf(&sb, "Virtual reserves: %s sat / %s tokens\n",
			prices.VirtualBTC, prices.VirtualToken)
	}
	return sb.String()
}

func (b *Bot) cmdWatch(ctx context.Context, msg *tgbotapi.Message) string {
	if !b.st.IsAuthorized(msg.Chat.ID) {
		return "❌ Authorize first: /auth <password> or /redeem <code>."
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return "Usage: /watch <contract> [alert-pct] [min-sats] [nft]"
	}
	w := store.TokenWatch{
		ChatID:   msg.Chat.ID,
		Contract: args[0],
		Kind:     "fungible",
	}
	for _, arg := range args[1:] {
		if arg == "nft" {
			w.Kind = "nft"
			continue
		}
		if pct, err := strconv.ParseFloat(arg, 64); err == nil && w.AlertPct == 0 {
			w.AlertPct = pct
			continue
		}
		if sats, err := strconv.ParseInt(arg, 10, 64); err == nil && w.MinSats == 0 {
			w.MinSats = sats
			continue
		}
		w.Label = arg
	}

	created, err := b.st.CreateTokenWatch(ctx, w)
	if errors.Is(err, store.ErrWatchExists) {
		return "Already watching this contract."
	}
	if err != nil {
		return "❌ Something went wrong, try again."
	}
	return fmt.Sprintf("✅ Watching %s (id %s).", created.Contract, created.ID)
}

func (b *Bot) cmdUnwatch(ctx context.Context, msg *tgbotapi.Message) string {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		return "Usage: /unwatch <id>"
	}
	if err := b.st.DeleteTokenWatch(ctx, msg.Chat.ID, id); err != nil {
		return "❌ No such watch id."
	}
	return "✅ Unwatched."
}

func (b *Bot) cmdStatus(ctx context.Context, msg *tgbotapi.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cursor: block %d\n", b.st.Cursor())
	if head, err := b.rpc.GetBlockNumber(ctx); err == nil {
		fmt.Fprintf(&sb, "Chain head: block %d\n", head)
	}
	fmt.Fprintf(&sb, "Tracked wallets: %d\n", b.st.CountForChat(msg.Chat.ID))
	if paid := b.st.PaidFor(msg.Chat.ID); paid != nil && paid.Active(time.Now()) {
		fmt.Fprintf(&sb, "Subscription: active until %s", paid.ExpiresAt.Format("2006-01-02"))
	} else {
		sb.WriteString("Subscription: inactive (/redeem)")
	}
	return sb.String()
}

// cmdGenCode mints an access code. Admin chat only; the regular path
// is the external payment pipeline.
func (b *Bot) cmdGenCode(ctx context.Context, msg *tgbotapi.Message) string {
	if b.cfg.AdminChatID == 0 || msg.Chat.ID != b.cfg.AdminChatID {
		return ""
	}
	days := 30
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			days = n
		}
	}
	code := &store.AccessCode{
		Code:         newAccessCode(),
		ExpiresAt:    time.Now().AddDate(0, 0, 90),
		DurationDays: days,
	}
	if err := b.st.UpsertAccessCode(ctx, code); err != nil {
		return "❌ Code generation failed."
	}
	return fmt.Sprintf("Code: %s (%d days, redeemable until %s)",
		code.Code, days, code.ExpiresAt.Format("2006-01-02"))
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newAccessCode() string {
	buf := make([]byte, 12)
	rand.Read(buf)
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return "JT-" + string(buf)
}
