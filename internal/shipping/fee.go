package shipping

import (
	"math"

	"village_market/internal/geo"
)

const (
	DefaultRatePerKm int64 = 2000
	DefaultMinFee    int64 = 10000
)

// Policy maps a delivery distance to a fee: every started kilometer costs
// RatePerKm, and no delivery costs less than MinFee.
type Policy struct {
	RatePerKm int64
	MinFee    int64
}

func DefaultPolicy() Policy {
	return Policy{RatePerKm: DefaultRatePerKm, MinFee: DefaultMinFee}
}

// Fee returns max(ceil(distanceKm) * RatePerKm, MinFee).
func (p Policy) Fee(distanceKm float64) int64 {
	if math.IsNaN(distanceKm) || distanceKm < 0 {
		distanceKm = 0
	}
	fee := int64(math.Ceil(distanceKm)) * p.RatePerKm
	if fee < p.MinFee {
		return p.MinFee
	}
	return fee
}

type Quote struct {
	Fee        int64   `json:"fee"`
	DistanceKm float64 `json:"distance_km"`
	Origins    int     `json:"origins"`
}

// Quote prices delivery to dest from every distinct origin in origins and
// sums the per-origin fees. DistanceKm is the farthest leg.
func (p Policy) Quote(dest geo.Point, origins []geo.Point) Quote {
	var q Quote
	for _, o := range Distinct(origins) {
		d := geo.Distance(o, dest)
		q.Fee += p.Fee(d)
		if d > q.DistanceKm {
			q.DistanceKm = d
		}
		q.Origins++
	}
	q.DistanceKm = math.Round(q.DistanceKm*100) / 100
	return q
}

// Distinct drops repeated origins, keeping first-seen order.
func Distinct(points []geo.Point) []geo.Point {
	seen := make(map[geo.Point]struct{}, len(points))
	out := make([]geo.Point, 0, len(points))
	for _, pt := range points {
		if _, ok := seen[pt]; ok {
			continue
		}
		seen[pt] = struct{}{}
		out = append(out, pt)
	}
	return out
}
