package env

import (
	"math"

	"github.com/alanyoungcy/tradereward/internal/features"
)

// Observation is a window of feature rows, oldest first.
type Observation [][]float64

// Flatten returns the observation as a single row-major vector.
func (o Observation) Flatten() []float64 {
	if len(o) == 0 {
		return nil
	}
	out := make([]float64, 0, len(o)*len(o[0]))
	for _, row := range o {
		out = append(out, row...)
	}
	return out
}

// Observer builds fixed-size windows over the feature series. Rows before
// the start of the series and undefined values are zero.
type Observer struct {
	rows   []features.Row
	window int
}

// NewObserver creates an observer over rows.
func NewObserver(rows []features.Row, window int) *Observer {
	if window < 1 {
		window = 1
	}
	return &Observer{rows: rows, window: window}
}

// Window is the number of rows per observation.
func (o *Observer) Window() int { return o.window }

// Width is the number of features per row.
func (o *Observer) Width() int { return len(features.Columns) }

// Observe returns the window ending at index i inclusive.
func (o *Observer) Observe(i int) Observation {
	obs := make(Observation, o.window)
	for k := range obs {
		row := make([]float64, o.Width())
		j := i - (o.window - 1) + k
		if j >= 0 && j < len(o.rows) {
			for c, v := range o.rows[j].Values() {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					row[c] = v
				}
			}
		}
		obs[k] = row
	}
	return obs
}
