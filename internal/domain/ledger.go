package domain

// PositionLedger is the position accounting collaborator. The engine only
// reports outcomes; net quantity and realized P&L bookkeeping live elsewhere.
type PositionLedger interface {
	// OpenPosition records a confirmed entry fill.
	OpenPosition(o *OrderIntent) bool

	// ClosePosition records a confirmed exit fill.
	ClosePosition(o *OrderIntent) bool

	// FailOpen surfaces a permanently failed entry: a venue rejection or a
	// recovery-window timeout. Called exactly once per failed intent.
	FailOpen(o *OrderIntent)
}

// NoopLedger satisfies PositionLedger without any bookkeeping.
type NoopLedger struct{}

func (NoopLedger) OpenPosition(*OrderIntent) bool  { return true }
func (NoopLedger) ClosePosition(*OrderIntent) bool { return true }
func (NoopLedger) FailOpen(*OrderIntent)           {}
