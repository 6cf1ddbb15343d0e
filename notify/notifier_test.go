package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/store"
)

type recordingMessenger struct {
	sent []struct {
		ChatID int64
		Text   string
	}
}

func (m *recordingMessenger) SendMessage(chatID int64, text string) error {
	m.sent = append(m.sent, struct {
		ChatID int64
		Text   string
	}{chatID, text})
	return nil
}

func newTestNotifier(t *testing.T) (*Notifier, *store.Store, *recordingMessenger) {
	t.Helper()
	st := store.NewMemStore()
	msg := &recordingMessenger{}
	n := New(st, msg, "")
	n.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return n, st, msg
}

func activateChat(t *testing.T, st *store.Store, chatID int64, code string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertAccessCode(ctx, &store.AccessCode{Code: code, DurationDays: 30}))
	_, err := st.RedeemCode(ctx, code, chatID, time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestDispatchToActiveSubscriber(t *testing.T) {
	n, st, msg := newTestNotifier(t)
	ctx := context.Background()

	_, err := st.CreateSubscription(ctx, 42, "bc1ptracked", "cold storage")
	require.NoError(t, err)
	activateChat(t, st, 42, "JT-AAAABBBBCCCC")

	err = n.Dispatch(ctx, []events.WalletEvent{
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0xabc", Satoshis: 300000},
	})
	require.NoError(t, err)

	require.Len(t, msg.sent, 1)
	require.Equal(t, int64(42), msg.sent[0].ChatID)
	require.True(t, strings.HasPrefix(msg.sent[0].Text, "🔔 cold storage\n"), msg.sent[0].Text)
	require.Contains(t, msg.sent[0].Text, "BTC Received: 0.003 BTC")
}

func TestDispatchGroupsByTx(t *testing.T) {
	n, st, msg := newTestNotifier(t)
	ctx := context.Background()

	_, err := st.CreateSubscription(ctx, 42, "bc1ptracked", "")
	require.NoError(t, err)
	activateChat(t, st, 42, "JT-AAAABBBBCCCC")

	err = n.Dispatch(ctx, []events.WalletEvent{
		{Kind: events.BTCSent, Address: "bc1ptracked", TxHash: "0xabc",
			Satoshis: 500000, RecipientAmount: 300000, Counterparty: "bc1qother"},
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0xabc", Satoshis: 199500},
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0xdef", Satoshis: 1000},
	})
	require.NoError(t, err)

	// Two tx groups, two messages.
	require.Len(t, msg.sent, 2)
	require.Contains(t, msg.sent[0].Text, "Fee: 0.000005 BTC")
	require.Contains(t, msg.sent[1].Text, "BTC Received: 0.00001 BTC")
}

func TestDispatchAppendsExplorerLink(t *testing.T) {
	st := store.NewMemStore()
	msg := &recordingMessenger{}
	n := New(st, msg, "https://mempool.space/")
	n.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := st.CreateSubscription(ctx, 42, "bc1ptracked", "")
	require.NoError(t, err)
	activateChat(t, st, 42, "JT-AAAABBBBCCCC")

	require.NoError(t, n.Dispatch(ctx, []events.WalletEvent{
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0xabc", Satoshis: 100},
	}))
	require.Len(t, msg.sent, 1)
	require.Contains(t, msg.sent[0].Text, "https://mempool.space/tx/0xabc")
}

func TestExpiredChatGetsOneNoticePerSession(t *testing.T) {
	n, st, msg := newTestNotifier(t)
	ctx := context.Background()

	_, err := st.CreateSubscription(ctx, 42, "bc1ptracked", "")
	require.NoError(t, err)
	// No paid subscription at all.

	ev := []events.WalletEvent{
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0x1", Satoshis: 100},
	}
	require.NoError(t, n.Dispatch(ctx, ev))
	ev[0].TxHash = "0x2"
	require.NoError(t, n.Dispatch(ctx, ev))

	require.Len(t, msg.sent, 1)
	require.Contains(t, msg.sent[0].Text, "expired")
}

func TestRenewalRestoresDelivery(t *testing.T) {
	n, st, msg := newTestNotifier(t)
	ctx := context.Background()

	_, err := st.CreateSubscription(ctx, 42, "bc1ptracked", "")
	require.NoError(t, err)

	require.NoError(t, n.Dispatch(ctx, []events.WalletEvent{
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0x1", Satoshis: 100},
	}))
	require.Len(t, msg.sent, 1) // expiry notice only

	activateChat(t, st, 42, "JT-RENEWRENEW12")

	require.NoError(t, n.Dispatch(ctx, []events.WalletEvent{
		{Kind: events.BTCReceived, Address: "bc1ptracked", TxHash: "0x2", Satoshis: 100},
	}))
	require.Len(t, msg.sent, 2)
	require.Contains(t, msg.sent[1].Text, "BTC Received")
}

func TestPriceAlertsGated(t *testing.T) {
	n, st, msg := newTestNotifier(t)
	ctx := context.Background()

	activateChat(t, st, 42, "JT-AAAABBBBCCCC")

	err := n.DispatchPriceAlerts(ctx, []events.PriceAlert{
		{ChatID: 42, Contract: "0xtoken", Label: "MOTO", DeltaPct: -12.5, NewPrice: "123"},
		{ChatID: 99, Contract: "0xtoken", Label: "MOTO", DeltaPct: -12.5, NewPrice: "123"},
	})
	require.NoError(t, err)

	// Chat 42 gets the alert; chat 99 gets the expiry notice instead.
	require.Len(t, msg.sent, 2)
	require.Equal(t, int64(42), msg.sent[0].ChatID)
	require.Contains(t, msg.sent[0].Text, "MOTO")
	require.Contains(t, msg.sent[0].Text, "-12.50%")
	require.Equal(t, int64(99), msg.sent[1].ChatID)
	require.Contains(t, msg.sent[1].Text, "expired")
}
