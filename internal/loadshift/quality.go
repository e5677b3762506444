package loadshift

// DataQuality reports how much of a plan rests on measured rather than synthetic input.
type DataQuality string

const (
	// QualityOK means metered base load and supplied spot prices.
	QualityOK DataQuality = "ok"
	// QualityPartial means one of the two inputs was synthetic.
	QualityPartial DataQuality = "partial"
	// QualityFallback means both inputs were synthetic.
	QualityFallback DataQuality = "fallback"
)

// QualityOf grades the inputs of a plan.
func QualityOf(meteredBase, suppliedPrices bool) DataQuality {
	switch {
	case meteredBase && suppliedPrices:
		return QualityOK
	case meteredBase || suppliedPrices:
		return QualityPartial
	default:
		return QualityFallback
	}
}

// SafetyMargin is the share of the subscription kept free when planning on uncertain input.
func (q DataQuality) SafetyMargin() float64 {
	switch q {
	case QualityOK:
		return 0
	case QualityPartial:
		return 0.05
	default:
		return 0.10
	}
}
