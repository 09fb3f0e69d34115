package model

// TraceEvent is an immutable, append-only log entry attached to a trace.
// The auto-increment ID gives a global ordering across all traces; within a
// trace, event_time ascending is the lineage narrative.
type TraceEvent struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string      `gorm:"index;size:64;not null" json:"trace_id"`
	Source    EventSource `gorm:"size:20;not null" json:"source"`
	EventType EventType   `gorm:"size:40;not null" json:"event_type"`
	Detail    string      `gorm:"type:text" json:"detail,omitempty"`
	EventTime NanoTime    `gorm:"index" json:"event_time"`
}

func (TraceEvent) TableName() string {
	return "trace_events"
}

// Fill is one partial or full execution report from the brokerage. Fills are
// append-only and accumulate asynchronously.
type Fill struct {
	ID       uint64   `gorm:"primaryKey;autoIncrement" json:"-"`
	TraceID  string   `gorm:"index;size:64;not null" json:"trace_id"`
	FillTime NanoTime `gorm:"index" json:"fill_time"`
	Price    float64  `json:"price"`
	Side     FillSide `gorm:"size:8" json:"side"`
}

func (Fill) TableName() string {
	return "fills"
}
