package model

// RiskMethod selects how trade size is derived from account state.
type RiskMethod string

const (
	RiskFixedQuantity  RiskMethod = "fixedQuantity"
	RiskPercentBalance RiskMethod = "percentBalance"
)

func ParseRiskMethod(s string) RiskMethod {
	switch RiskMethod(s) {
	case RiskFixedQuantity, RiskPercentBalance:
		return RiskMethod(s)
	default:
		return RiskFixedQuantity
	}
}

// Settings is the process-wide pipeline configuration. It lives as a single
// row, is loaded once per session by callers, and changes only through the
// save operation.
type Settings struct {
	ID uint `gorm:"primaryKey" json:"-"`

	GhostWebhookURL string `gorm:"size:255" json:"ghost_webhook_url"`
	GhostAPIKey     string `gorm:"size:255" json:"ghost_api_key"`

	TradovateLiveURL string `gorm:"size:255" json:"tradovate_live_url"`
	TradovateDemoURL string `gorm:"size:255" json:"tradovate_demo_url"`
	TradovateAPIKey  string `gorm:"size:255" json:"tradovate_api_key"`

	PipelineTestMode bool       `json:"pipeline_test_mode"`
	RiskMethod       RiskMethod `gorm:"size:30;not null;default:fixedQuantity" json:"risk_method"`
	MaxTradeQuantity int64      `json:"max_trade_quantity"`

	GhostExecutedFromDevices string  `gorm:"type:text" json:"ghost_executed_from_devices"`
	GhostTradeMaxQtyScale    int64   `json:"ghost_trade_max_qty_scale"`
	GhostMarkupPct           float64 `json:"ghost_markup_pct"`
	GhostSpreadThreshold     float64 `json:"ghost_spread_threshold"`

	// Exit warning policy: flag a working trade open longer than the warn
	// time whose exit progress is still below the warn ratio.
	GhostExitWarnTimeSec int64   `json:"ghost_exit_warn_time_sec"`
	GhostExitWarnRatio   float64 `json:"ghost_exit_warn_ratio"`
}

func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings mirrors a fresh install before the operator saves anything.
func DefaultSettings() Settings {
	return Settings{
		ID:                    1,
		TradovateLiveURL:      "https://live.tradovateapi.com/v1",
		TradovateDemoURL:      "https://demo.tradovateapi.com/v1",
		RiskMethod:            RiskFixedQuantity,
		MaxTradeQuantity:      1,
		GhostTradeMaxQtyScale: 1,
		GhostExitWarnTimeSec:  180,
		GhostExitWarnRatio:    0.2,
	}
}
