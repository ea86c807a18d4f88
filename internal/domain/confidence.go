package domain

// ConfidenceLevel labels how much the short-timeframe data can be trusted
// given the token's age. Each level maps to a multiplicative adjustment on
// the final score.
type ConfidenceLevel string

const (
	ConfidenceEarlyDetection ConfidenceLevel = "EARLY_DETECTION"
	ConfidenceHigh           ConfidenceLevel = "HIGH"
	ConfidenceMedium         ConfidenceLevel = "MEDIUM"
	ConfidenceLow            ConfidenceLevel = "LOW"
	ConfidenceVeryLow        ConfidenceLevel = "VERY_LOW"
)

// Confidence pairs a level with its multiplicative score adjustment. The
// multiplier depends on the age bracket as well as the level: MEDIUM is
// neutral for very young tokens but a mild penalty otherwise.
type Confidence struct {
	Level      ConfidenceLevel `json:"level"`
	Multiplier float64         `json:"multiplier"`
}

// VelocityCoverage returns the fraction of the short-timeframe fields the
// velocity stage populates that carry data, in [0, 1]. The 1h/6h fields
// arrive from discovery feeds rather than the velocity fetch, so they do
// not count; grading them would measure provider field availability
// instead of fetch success.
func (c *Candidate) VelocityCoverage() float64 {
	unsigned := []float64{
		c.Volume5m, c.Volume15m, c.Volume30m,
		c.Trades5m, c.Trades15m, c.Trades30m,
	}
	signed := []float64{
		c.PriceChange5m, c.PriceChange15m, c.PriceChange30m,
	}
	known := 0
	for _, v := range unsigned {
		if Known(v) {
			known++
		}
	}
	for _, v := range signed {
		if KnownChange(v) {
			known++
		}
	}
	return float64(known) / float64(len(unsigned)+len(signed))
}

// earlyActivity reports whether a very young token shows meaningful
// short-term activity: both 5m and 15m volume non-zero plus agreement
// between at least two short price-change timeframes.
func (c *Candidate) earlyActivity() bool {
	if !Known(c.Volume5m) || c.Volume5m == 0 || !Known(c.Volume15m) || c.Volume15m == 0 {
		return false
	}
	agree := 0
	for _, ch := range []float64{c.PriceChange5m, c.PriceChange15m, c.PriceChange30m} {
		if KnownChange(ch) && ch > 0 {
			agree++
		}
	}
	return agree >= 2
}

// AssessConfidence grades data confidence as a function of token age and
// velocity-field coverage. Young tokens are graded on activity rather than
// coverage so sparse short-timeframe data does not penalize them.
func AssessConfidence(c *Candidate, ageMinutes float64) Confidence {
	coverage := c.VelocityCoverage()

	switch {
	case Known(ageMinutes) && ageMinutes <= 30:
		if c.earlyActivity() {
			return Confidence{ConfidenceEarlyDetection, 1.05}
		}
		return Confidence{ConfidenceMedium, 1.00}

	case Known(ageMinutes) && ageMinutes <= 120:
		switch {
		case coverage >= 0.50:
			return Confidence{ConfidenceHigh, 1.02}
		case coverage >= 0.30:
			return Confidence{ConfidenceMedium, 0.98}
		default:
			return Confidence{ConfidenceLow, 0.95}
		}

	case Known(ageMinutes) && ageMinutes <= 720:
		switch {
		case coverage >= 0.67:
			return Confidence{ConfidenceHigh, 1.02}
		case coverage >= 0.50:
			return Confidence{ConfidenceMedium, 0.98}
		default:
			return Confidence{ConfidenceLow, 0.95}
		}

	default:
		// Older than 12h, or age unknown: demand real coverage.
		switch {
		case coverage >= 0.83:
			return Confidence{ConfidenceHigh, 1.02}
		case coverage >= 0.67:
			return Confidence{ConfidenceMedium, 0.98}
		case coverage < 0.33:
			return Confidence{ConfidenceVeryLow, 0.90}
		default:
			return Confidence{ConfidenceLow, 0.95}
		}
	}
}
