package model

// Trace is one signal's full lineage record, from TradingView ingestion
// through Ghost forwarding to Tradovate execution. The two status fields are
// independent axes; neither implies anything about the other.
type Trace struct {
	TraceID            string      `gorm:"primaryKey;size:64" json:"trace_id"`
	Ticker             string      `gorm:"index;size:32" json:"ticker"`
	Action             string      `gorm:"size:10" json:"action"`
	Entry              float64     `json:"entry"`
	StopLoss           float64     `json:"stop_loss"`
	TakeProfit         float64     `json:"take_profit"`
	Strategy           string      `gorm:"size:120" json:"strategy"`
	ParamsSnapshotJSON string      `gorm:"type:text" json:"params_snapshot_json"`
	GhostStatus        GhostStatus `gorm:"size:20;not null;default:received" json:"ghost_status"`
	TradovateStatus    TradeStatus `gorm:"size:20;not null;default:unknown" json:"tradovate_status"`

	// Evidence from the last ghost forward attempt, raw body preserved
	// verbatim for operator inspection.
	GhostResponseJSON string `gorm:"type:text" json:"ghost_response_json,omitempty"`
	GhostError        string `gorm:"type:text" json:"ghost_error,omitempty"`

	// Derived metrics. Nil means "not yet known", which is distinct from a
	// known zero; never collapse these into sentinels.
	AvgEntry        *float64 `json:"avg_entry,omitempty"`
	AvgExit         *float64 `json:"avg_exit,omitempty"`
	Pnl             *float64 `json:"pnl,omitempty"`
	DurationSeconds *int64   `json:"duration_seconds,omitempty"`

	AlertReceivedAt NanoTime `gorm:"index" json:"alert_received_at"`
	CreatedAt       NanoTime `json:"created_at"`
	UpdatedAt       NanoTime `json:"updated_at"`
}

func (Trace) TableName() string {
	return "traces"
}

// TraceInput is the validated shape of a TradingView webhook payload.
type TraceInput struct {
	Ticker             string  `json:"ticker"`
	Action             string  `json:"action"`
	Entry              float64 `json:"entry"`
	StopLoss           float64 `json:"stop_loss"`
	TakeProfit         float64 `json:"take_profit"`
	Strategy           string  `json:"strategy"`
	ParamsSnapshotJSON string  `json:"params_snapshot_json"`
}

// ReceiveWebhookResponse is returned to the alert source after ingestion.
type ReceiveWebhookResponse struct {
	Ok      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// TraceQueryFilters is a conjunctive predicate set over traces. All fields
// are optional; a nil field imposes no constraint.
type TraceQueryFilters struct {
	Ticker          *string      `json:"ticker,omitempty"`
	Strategy        *string      `json:"strategy,omitempty"`
	GhostStatus     *GhostStatus `json:"ghost_status,omitempty"`
	TradovateStatus *TradeStatus `json:"tradovate_status,omitempty"`
	StartTime       *NanoTime    `json:"start_time,omitempty"`
	EndTime         *NanoTime    `json:"end_time,omitempty"`
}

// Empty reports whether the predicate set constrains anything at all.
func (f TraceQueryFilters) Empty() bool {
	return f.Ticker == nil && f.Strategy == nil && f.GhostStatus == nil &&
		f.TradovateStatus == nil && f.StartTime == nil && f.EndTime == nil
}
