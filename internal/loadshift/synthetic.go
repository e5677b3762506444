package loadshift

// FallbackSpotPrice is the average day-ahead price (öre/kWh) synthetic prices are built around.
const FallbackSpotPrice = 120.0

// SyntheticBaseKW is an office building's typical demand at a local hour, as a share of the subscription.
// The curve is fixed so reruns on the same input agree.
func SyntheticBaseKW(hour int, subscriptionKW float64) float64 {
	switch {
	case hour >= 8 && hour < 18:
		return subscriptionKW * 0.425
	case hour >= 6 && hour < 8, hour >= 18 && hour < 22:
		return subscriptionKW * 0.20
	default:
		return subscriptionKW * 0.08
	}
}

// SyntheticSpotPrice is a conservative price (öre/kWh) for a local hour, used when no prices are supplied.
func SyntheticSpotPrice(hour int) float64 {
	switch hour {
	case 7, 8, 9, 17, 18, 19, 20:
		return FallbackSpotPrice + 55
	case 0, 1, 2, 3, 4:
		return FallbackSpotPrice - 5
	default:
		return FallbackSpotPrice + 20
	}
}
