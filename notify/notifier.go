// Package notify groups surviving events by (wallet, tx), renders each
// group into one message, and dispatches to subscribed chats behind the
// paid-subscription gate.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/store"
)

// Messenger is the chat-platform transport.
type Messenger interface {
	SendMessage(chatID int64, text string) error
}

// Notifier fans events out to chats.
type Notifier struct {
	st         *store.Store
	msg        Messenger
	now        func() time.Time
	mempoolURL string // explorer base for tx links, optional

	mu             sync.Mutex
	expiryNotified map[int64]struct{} // one expiry notice per chat per session
}

func New(st *store.Store, msg Messenger, mempoolURL string) *Notifier {
	return &Notifier{
		st:             st,
		msg:            msg,
		now:            time.Now,
		mempoolURL:     strings.TrimSuffix(mempoolURL, "/"),
		expiryNotified: make(map[int64]struct{}),
	}
}

// Dispatch renders one message per (address, txHash) group and sends it
// to every chat tracking the address whose paid subscription is live.
// A send failure aborts the tick; re-delivery next tick is the
// at-least-once policy.
func (n *Notifier) Dispatch(ctx context.Context, evs []events.WalletEvent) error {
	for _, g := range groupEvents(evs) {
		body := renderGroup(g)
		if n.mempoolURL != "" && g.TxHash != "" {
			body += "\n" + n.mempoolURL + "/tx/" + g.TxHash
		}
		for _, chatID := range n.st.ChatsTracking(g.Address) {
			if !n.gate(chatID) {
				continue
			}
			text := n.headline(chatID, g.Address) + body
			if err := n.msg.SendMessage(chatID, text); err != nil {
				metrics.MessagesSent.WithLabelValues("error").Inc()
				return fmt.Errorf("send to %d: %w", chatID, err)
			}
			metrics.MessagesSent.WithLabelValues("ok").Inc()
		}
	}
	return nil
}

// DispatchPriceAlerts sends price alerts straight to the watch owners,
// behind the same gate.
func (n *Notifier) DispatchPriceAlerts(ctx context.Context, alerts []events.PriceAlert) error {
	for _, a := range alerts {
		if !n.gate(a.ChatID) {
			continue
		}
		name := a.Label
		if name == "" {
			name = shortAddr(a.Contract)
		}
		text := fmt.Sprintf("📈 Price Alert: %s moved %+.2f%%\nPrice: %s", name, a.DeltaPct, a.NewPrice)
		if err := n.msg.SendMessage(a.ChatID, text); err != nil {
			metrics.MessagesSent.WithLabelValues("error").Inc()
			return fmt.Errorf("price alert to %d: %w", a.ChatID, err)
		}
		metrics.MessagesSent.WithLabelValues("ok").Inc()
	}
	return nil
}

// gate checks the paid subscription. An expired chat gets exactly one
// notice per session, then silence until it renews.
func (n *Notifier) gate(chatID int64) bool {
	if n.st.HasActiveSubscription(chatID, n.now()) {
		return true
	}
	n.mu.Lock()
	_, told := n.expiryNotified[chatID]
	if !told {
		n.expiryNotified[chatID] = struct{}{}
	}
	n.mu.Unlock()

	if !told {
		// Best effort; the notice itself is exempt from the gate.
		n.msg.SendMessage(chatID, "⚠️ Your subscription has expired. Renew with /redeem to keep receiving notifications.")
	}
	return false
}

func (n *Notifier) headline(chatID int64, primary string) string {
	label := ""
	for _, sub := range n.st.SubscriptionsForChat(chatID) {
		if sub.Address == primary {
			label = sub.Label
			break
		}
	}
	if label == "" {
		label = shortAddr(primary)
	}
	return fmt.Sprintf("🔔 %s\n", label)
}

// groupEvents partitions events by (address, txHash), preserving the
// dispatch order of first occurrence.
func groupEvents(evs []events.WalletEvent) []*group {
	var order []*group
	index := make(map[string]*group)
	for i := range evs {
		key := evs[i].Address + "|" + evs[i].TxHash
		g, ok := index[key]
		if !ok {
			g = &group{Address: evs[i].Address, TxHash: evs[i].TxHash}
			index[key] = g
			order = append(order, g)
		}
		g.Events = append(g.Events, evs[i])
	}
	return order
}
