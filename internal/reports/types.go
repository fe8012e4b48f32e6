// Package reports describes the Authorized Buyers CSV export schemas and
// decides which of them a file follows by looking at its header.
package reports

// Type identifies one of the known CSV export schemas.
type Type string

const (
	Unknown           Type = "unknown"
	PerformanceDetail Type = "performance_detail"
	FunnelGeo         Type = "rtb_funnel_geo"
	FunnelPublisher   Type = "rtb_funnel_publisher"
	BidFiltering      Type = "bid_filtering"
	Quality           Type = "quality_signals"
)

// Supported lists every importable type in the order operators see them.
var Supported = []Type{PerformanceDetail, FunnelGeo, FunnelPublisher, BidFiltering, Quality}

// Destination tables.
const (
	TableDaily        = "rtb_daily"
	TableFunnel       = "rtb_funnel"
	TableBidFiltering = "rtb_bid_filtering"
	TableQuality      = "rtb_quality"
)

// Name is the human-readable report name.
func (t Type) Name() string {
	switch t {
	case PerformanceDetail:
		return "Performance Detail"
	case FunnelGeo:
		return "RTB Funnel (Geo)"
	case FunnelPublisher:
		return "RTB Funnel (Publisher)"
	case BidFiltering:
		return "Bid Filtering"
	case Quality:
		return "Quality Signals"
	default:
		return "Unknown"
	}
}

// Table is the destination table, empty for Unknown.
func (t Type) Table() string {
	switch t {
	case PerformanceDetail:
		return TableDaily
	case FunnelGeo, FunnelPublisher:
		return TableFunnel
	case BidFiltering:
		return TableBidFiltering
	case Quality:
		return TableQuality
	default:
		return ""
	}
}

// Description says what the export is used for.
func (t Type) Description() string {
	switch t {
	case PerformanceDetail:
		return "Creative-level performance with billing and size detail"
	case FunnelGeo:
		return "Bid funnel by country: requests, bids, wins"
	case FunnelPublisher:
		return "Bid funnel by publisher and country"
	case BidFiltering:
		return "Why bids were filtered before the auction"
	case Quality:
		return "Invalid traffic and viewability by publisher"
	default:
		return "Unrecognized CSV layout"
	}
}

// IsFunnel reports whether t is one of the RTB Funnel variants.
func (t Type) IsFunnel() bool { return t == FunnelGeo || t == FunnelPublisher }

// ParseType maps a stored type string back to a Type.
func ParseType(s string) (Type, bool) {
	for _, t := range Supported {
		if string(t) == s {
			return t, true
		}
	}
	return Unknown, false
}
