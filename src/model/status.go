package model

// GhostStatus is the relay-side status axis of a trace. It only ever moves
// forward: received -> accepted or received -> rejected, never back.
type GhostStatus string

const (
	GhostReceived GhostStatus = "received"
	GhostAccepted GhostStatus = "accepted"
	GhostRejected GhostStatus = "rejected"
	GhostUnknown  GhostStatus = "unknown"
)

// ParseGhostStatus maps unrecognized input to GhostUnknown rather than failing.
func ParseGhostStatus(s string) GhostStatus {
	switch GhostStatus(s) {
	case GhostReceived, GhostAccepted, GhostRejected:
		return GhostStatus(s)
	default:
		return GhostUnknown
	}
}

// Terminal reports whether the ghost axis can still change.
func (s GhostStatus) Terminal() bool {
	return s == GhostAccepted || s == GhostRejected
}

// TradeStatus is the brokerage-side status axis of a trace.
type TradeStatus string

const (
	TradeSubmitted TradeStatus = "submitted"
	TradeWorking   TradeStatus = "working"
	TradeFilled    TradeStatus = "filled"
	TradeCanceled  TradeStatus = "canceled"
	TradeRejected  TradeStatus = "rejected"
	TradeUnknown   TradeStatus = "unknown"
)

func ParseTradeStatus(s string) TradeStatus {
	switch TradeStatus(s) {
	case TradeSubmitted, TradeWorking, TradeFilled, TradeCanceled, TradeRejected:
		return TradeStatus(s)
	default:
		return TradeUnknown
	}
}

// Terminal reports whether the round turn is finished from the brokerage's
// point of view. duration_seconds freezes on the first terminal transition.
func (s TradeStatus) Terminal() bool {
	return s == TradeFilled || s == TradeCanceled || s == TradeRejected
}

// WebhookStatus is the lifecycle of a raw ingestion record.
type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookError     WebhookStatus = "error"
)

// EventSource identifies which hop of the pipeline emitted an event.
type EventSource string

const (
	SourceTradingView EventSource = "tradingview"
	SourceGhost       EventSource = "ghost"
	SourceTradovate   EventSource = "tradovate"
)

// EventType is the closed taxonomy of lineage events.
type EventType string

const (
	EventAlertReceived       EventType = "alertReceived"
	EventTradingViewEvent    EventType = "tradingviewEvent"
	EventValidationError     EventType = "validationError"
	EventGhostForwardAttempt EventType = "ghostForwardAttempt"
	EventGhostForwardSuccess EventType = "ghostForwardSuccess"
	EventGhostForwardFailure EventType = "ghostForwardFailure"
	EventGhostCallback       EventType = "ghostCallback"
)

// FillSide classifies an execution report as a buy or a sell. Together with
// the trace action it decides which leg of the round turn a fill belongs to.
type FillSide string

const (
	SideBuy  FillSide = "buy"
	SideSell FillSide = "sell"
)

func ParseFillSide(s string) (FillSide, bool) {
	switch FillSide(s) {
	case SideBuy, SideSell:
		return FillSide(s), true
	default:
		return "", false
	}
}

// Trace actions (directional side of the signal).
const (
	ActionLong  = "long"
	ActionShort = "short"
)
