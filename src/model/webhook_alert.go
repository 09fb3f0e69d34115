package model

// WebhookAlert is the raw ingestion record for one inbound alert. Status
// moves received -> processed or received -> error{message} and never
// reverts; the raw payload is kept verbatim even when validation fails.
type WebhookAlert struct {
	AlertID      string        `gorm:"primaryKey;size:64" json:"alert_id"`
	Status       WebhookStatus `gorm:"size:20;not null;default:received" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	Ticker       string        `gorm:"size:32" json:"ticker,omitempty"`
	Action       string        `gorm:"size:10" json:"action,omitempty"`
	Strategy     string        `gorm:"size:120" json:"strategy,omitempty"`
	AlertName    string        `gorm:"size:120" json:"alert_name,omitempty"`
	RawPayload   string        `gorm:"type:text" json:"raw_payload"`
	ReceivedAt   NanoTime      `gorm:"index" json:"received_at"`
}

func (WebhookAlert) TableName() string {
	return "webhook_alerts"
}
