package domain

// PositionSnapshot is a read-only view of the running net position held by a
// reward scheme. VWAP is only meaningful when HasVWAP is true.
type PositionSnapshot struct {
	Position float64 `json:"position"`
	VWAP     float64 `json:"vwap"`
	HasVWAP  bool    `json:"has_vwap"`
}

// Flat reports whether there is no open position.
func (p PositionSnapshot) Flat() bool {
	return p.Position == 0
}
