package notify

import (
	"fmt"
	"strings"

	"github.com/trypto13/jeet-tracker/events"
)

// group is every surviving event for one (address, txHash) pair, in
// arrival order.
type group struct {
	Address string
	TxHash  string
	Events  []events.WalletEvent
}

// renderGroup turns one group into a message body. Recognized composite
// shapes collapse to a single summarized rendering; anything else is
// rendered line by line.
func renderGroup(g *group) string {
	var swap, sent, received *events.WalletEvent
	var tokenIn, tokenOut *events.WalletEvent
	var rest []*events.WalletEvent

	for i := range g.Events {
		e := &g.Events[i]
		switch e.Kind {
		case events.SwapExecuted:
			if swap == nil {
				swap = e
				continue
			}
		case events.BTCSent:
			if sent == nil {
				sent = e
				continue
			}
		case events.BTCReceived:
			if received == nil {
				received = e
				continue
			}
		case events.Token, events.NFTTransfer:
			if e.Direction == events.DirIn && tokenIn == nil {
				tokenIn = e
				continue
			}
			if e.Direction == events.DirOut && tokenOut == nil {
				tokenOut = e
				continue
			}
		}
		rest = append(rest, e)
	}

	var b strings.Builder

	switch {
	case swap != nil:
		b.WriteString("🔄 Swap Executed\n")
		fmt.Fprintf(&b, "BTC Spent: %s\n", FormatBTC(swap.Satoshis))
		fmt.Fprintf(&b, "Received: %s %s\n", swap.Tokens().String(), symbolOrToken(tokenIn, swap))
		if received != nil {
			fmt.Fprintf(&b, "Change: %s\n", FormatBTC(received.Satoshis))
		}
		// The token leg is merged into the summary; don't re-render it.
		tokenIn, tokenOut = nil, nil

	case tokenIn != nil && tokenOut != nil:
		b.WriteString("🔁 Token Swap\n")
		fmt.Fprintf(&b, "Out: %s %s\n", tokenOut.Tokens().String(), symbolOf(tokenOut))
		fmt.Fprintf(&b, "In: %s %s\n", tokenIn.Tokens().String(), symbolOf(tokenIn))
		tokenIn, tokenOut = nil, nil

	case sent != nil && sent.Counterparty == "":
		b.WriteString("🔃 Internal Transfer\n")
		change := int64(0)
		if received != nil {
			change = received.Satoshis
		}
		fmt.Fprintf(&b, "Received: %s\n", FormatBTC(change))
		if fee := sent.Satoshis - change; fee > 0 {
			fmt.Fprintf(&b, "Fee: %s\n", FormatBTC(fee))
		}
		sent, received = nil, nil

	case sent != nil:
		b.WriteString("📤 BTC Sent\n")
		fmt.Fprintf(&b, "To: %s\n", shortAddr(sent.Counterparty))
		fmt.Fprintf(&b, "Amount: %s\n", FormatBTC(sent.RecipientAmount))
		change := int64(0)
		if received != nil {
			change = received.Satoshis
			fmt.Fprintf(&b, "Change: %s\n", FormatBTC(change))
		}
		if fee := sent.Satoshis - sent.RecipientAmount - change; fee > 0 {
			fmt.Fprintf(&b, "Fee: %s\n", FormatBTC(fee))
		}
		sent, received = nil, nil
	}

	for _, e := range []*events.WalletEvent{sent, received, tokenIn, tokenOut} {
		if e != nil {
			rest = append(rest, e)
		}
	}
	for _, e := range rest {
		b.WriteString(renderSingle(e))
	}

	fmt.Fprintf(&b, "Tx: %s", shortAddr(g.TxHash))
	return b.String()
}

func renderSingle(e *events.WalletEvent) string {
	switch e.Kind {
	case events.BTCReceived:
		return fmt.Sprintf("📥 BTC Received: %s\n", FormatBTC(e.Satoshis))
	case events.BTCSent:
		return fmt.Sprintf("📤 BTC Sent: %s\n", FormatBTC(e.Satoshis))
	case events.Token:
		return fmt.Sprintf("🪙 Token %s: %s %s\n", inOut(e.Direction), e.Tokens().String(), symbolOf(e))
	case events.NFTTransfer:
		return fmt.Sprintf("🖼 NFT %s: %s (%s)\n", inOut(e.Direction), shortAddr(e.Contract), e.Tokens().String())
	case events.LiquidityReserved:
		role := "buyer"
		if e.Direction == events.DirSeller {
			role = "seller"
		}
		return fmt.Sprintf("📝 Liquidity Reserved (%s): %s for %s tokens\n",
			role, FormatBTC(e.Satoshis), e.Tokens().String())
	case events.ProviderConsumed:
		return fmt.Sprintf("🫗 Liquidity Consumed: %s tokens\n", e.Tokens().String())
	case events.LiquidityAdded:
		return fmt.Sprintf("➕ Liquidity Added: %s tokens + %s\n", e.Tokens().String(), FormatBTC(e.Satoshis))
	case events.LiquidityRemoved:
		return fmt.Sprintf("➖ Liquidity Removed: %s tokens + %s\n", e.Tokens().String(), FormatBTC(e.Satoshis))
	case events.Staked:
		return fmt.Sprintf("🔒 Staked: %s\n", e.Tokens().String())
	case events.Unstaked:
		return fmt.Sprintf("🔓 Unstaked: %s\n", e.Tokens().String())
	case events.RewardsClaimed:
		return fmt.Sprintf("🎁 Rewards Claimed: %s\n", e.Tokens().String())
	default:
		return fmt.Sprintf("%s\n", e.Kind)
	}
}

func inOut(d events.Direction) string {
	if d == events.DirOut {
		return "Out"
	}
	return "In"
}

func symbolOf(e *events.WalletEvent) string {
	if e.TokenSymbol != "" {
		return e.TokenSymbol
	}
	return shortAddr(e.Contract)
}

func symbolOrToken(tokenLeg, fallback *events.WalletEvent) string {
	if tokenLeg != nil {
		return symbolOf(tokenLeg)
	}
	return symbolOf(fallback)
}

// FormatBTC renders satoshis as a BTC amount without float rounding.
func FormatBTC(sats int64) string {
	sign := ""
	if sats < 0 {
		sign = "-"
		sats = -sats
	}
	whole := sats / 1e8
	frac := sats % 1e8
	s := fmt.Sprintf("%s%d.%08d", sign, whole, frac)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " BTC"
}

func shortAddr(a string) string {
	if len(a) <= 16 {
		return a
	}
	return a[:8] + "…" + a[len(a)-6:]
}
