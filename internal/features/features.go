// Package features computes the indicator columns fed to the agent as
// observations: log returns, RSI and a MACD histogram over the mid price.
// Undefined values are NaN, matching the usual dataframe conventions.
package features

import "math"

// Params configures the indicator windows.
type Params struct {
	RSIPeriod  float64
	MACDFast   float64
	MACDSlow   float64
	MACDSignal float64
}

// DefaultParams returns the windows used for the BTCUSDT 1s feed.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  20,
		MACDFast:   10,
		MACDSlow:   50,
		MACDSignal: 5,
	}
}

// Columns are the feature names in Row order.
var Columns = []string{"lr", "rsi", "macd"}

// Row is one observation vector.
type Row struct {
	LR   float64 `json:"lr"`
	RSI  float64 `json:"rsi"`
	MACD float64 `json:"macd"`
}

// Values returns the row as a slice in Columns order.
func (r Row) Values() []float64 {
	return []float64{r.LR, r.RSI, r.MACD}
}

// Extract computes every feature column over mid and zips them into rows.
func Extract(mid []float64, p Params) []Row {
	lr := LogReturn(mid)
	rsi := RSI(mid, p.RSIPeriod)
	macd := MACD(mid, p.MACDFast, p.MACDSlow, p.MACDSignal)

	rows := make([]Row, len(mid))
	for i := range mid {
		rows[i] = Row{LR: lr[i], RSI: rsi[i], MACD: macd[i]}
	}
	return rows
}

// LogReturn returns log(p[i]) - log(p[i-1]); the first value is NaN.
func LogReturn(price []float64) []float64 {
	out := make([]float64, len(price))
	for i := range price {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(price[i]) - math.Log(price[i-1])
	}
	return out
}

// RSI is the relative strength index with Wilder-style smoothing
// (EWM with alpha = 1/period, bias-adjusted).
func RSI(price []float64, period float64) []float64 {
	r := diff(price)
	up := make([]float64, len(r))
	down := make([]float64, len(r))
	for i, v := range r {
		if math.IsNaN(v) {
			up[i], down[i] = v, v
			continue
		}
		up[i] = math.Max(v, 0)
		down[i] = math.Abs(math.Min(v, 0))
	}

	alpha := 1 / period
	upAvg := EWM(up, alpha, true)
	downAvg := EWM(down, alpha, true)

	out := make([]float64, len(price))
	for i := range out {
		rs := upAvg[i] / downAvg[i]
		out[i] = 100 * (1 - 1/(1+rs))
	}
	return out
}

// MACD returns the MACD line minus its signal line (the histogram).
func MACD(price []float64, fast, slow, signal float64) []float64 {
	fm := EWM(price, spanAlpha(fast), false)
	sm := EWM(price, spanAlpha(slow), false)
	md := make([]float64, len(price))
	for i := range md {
		md[i] = fm[i] - sm[i]
	}
	sig := EWM(md, spanAlpha(signal), false)
	out := make([]float64, len(price))
	for i := range out {
		out[i] = md[i] - sig[i]
	}
	return out
}

// EWM is an exponentially weighted moving mean. With adjust the weights are
// normalised over the observed history; without it the recursive form
// y = (1-alpha)*y + alpha*x is used. NaN inputs are skipped but still decay
// the weight of older observations. Output is NaN until the first observation.
func EWM(x []float64, alpha float64, adjust bool) []float64 {
	out := make([]float64, len(x))
	oldWtFactor := 1 - alpha
	newWt := 1.0
	if !adjust {
		newWt = alpha
	}

	avg := math.NaN()
	oldWt := 1.0
	for i, cur := range x {
		observed := !math.IsNaN(cur)
		switch {
		case !math.IsNaN(avg):
			oldWt *= oldWtFactor
			if observed {
				if avg != cur {
					avg = (oldWt*avg + newWt*cur) / (oldWt + newWt)
				}
				if adjust {
					oldWt += newWt
				} else {
					oldWt = 1
				}
			}
		case observed:
			avg = cur
		}
		out[i] = avg
	}
	return out
}

func spanAlpha(span float64) float64 {
	return 2 / (span + 1)
}

func diff(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i] - x[i-1]
	}
	return out
}
