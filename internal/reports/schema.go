package reports

// Field is a logical column, independent of the label Google printed for it.
type Field string

// Dimensions.
const (
	FieldDay              Field = "day"
	FieldHour             Field = "hour"
	FieldCountry          Field = "country"
	FieldCreativeID       Field = "creative_id"
	FieldBillingID        Field = "billing_id"
	FieldCreativeSize     Field = "creative_size"
	FieldCreativeFormat   Field = "creative_format"
	FieldPlatform         Field = "platform"
	FieldEnvironment      Field = "environment"
	FieldAppID            Field = "app_id"
	FieldAppName          Field = "app_name"
	FieldPublisherID      Field = "publisher_id"
	FieldPublisherName    Field = "publisher_name"
	FieldPublisherDomain  Field = "publisher_domain"
	FieldDealID           Field = "deal_id"
	FieldDealName         Field = "deal_name"
	FieldTransactionType  Field = "transaction_type"
	FieldAdvertiser       Field = "advertiser"
	FieldBuyerAccountID   Field = "buyer_account_id"
	FieldBuyerAccountName Field = "buyer_account_name"
	FieldFilteringReason  Field = "filtering_reason"
)

// Metrics.
const (
	FieldReachedQueries      Field = "reached_queries"
	FieldImpressions         Field = "impressions"
	FieldClicks              Field = "clicks"
	FieldSpend               Field = "spend"
	FieldVideoStarts         Field = "video_starts"
	FieldVideoFirstQuartile  Field = "video_first_quartile"
	FieldVideoMidpoint       Field = "video_midpoint"
	FieldVideoThirdQuartile  Field = "video_third_quartile"
	FieldVideoCompletions    Field = "video_completions"
	FieldVASTErrors          Field = "vast_errors"
	FieldEngagedViews        Field = "engaged_views"
	FieldMeasurable          Field = "measurable_impressions"
	FieldViewable            Field = "viewable_impressions"
	FieldGMASDK              Field = "gma_sdk"
	FieldBuyerSDK            Field = "buyer_sdk"
	FieldBidRequests         Field = "bid_requests"
	FieldInventoryMatches    Field = "inventory_matches"
	FieldSuccessfulResponses Field = "successful_responses"
	FieldBids                Field = "bids"
	FieldBidsInAuction       Field = "bids_in_auction"
	FieldAuctionsWon         Field = "auctions_won"
	FieldOpportunityCost     Field = "opportunity_cost"
	FieldPreFiltered         Field = "pre_filtered_impressions"
	FieldIVTCredited         Field = "ivt_credited_impressions"
	FieldBilled              Field = "billed_impressions"
)

// labels holds the header spellings accepted for each field. Matching is
// case-insensitive and ignores the "#" Google prefixes to the first column,
// so "#Day" and "day" both match "Day". The first label is the display label.
var labels = map[Field][]string{
	FieldDay:              {"Day", "Date"},
	FieldHour:             {"Hour"},
	FieldCountry:          {"Country"},
	FieldCreativeID:       {"Creative ID"},
	FieldBillingID:        {"Billing ID"},
	FieldCreativeSize:     {"Creative size"},
	FieldCreativeFormat:   {"Creative format"},
	FieldPlatform:         {"Platform"},
	FieldEnvironment:      {"Environment"},
	FieldAppID:            {"Mobile app ID"},
	FieldAppName:          {"Mobile app name"},
	FieldPublisherID:      {"Publisher ID"},
	FieldPublisherName:    {"Publisher name"},
	FieldPublisherDomain:  {"Publisher domain"},
	FieldDealID:           {"Deal ID"},
	FieldDealName:         {"Deal name"},
	FieldTransactionType:  {"Transaction type"},
	FieldAdvertiser:       {"Advertiser"},
	FieldBuyerAccountID:   {"Buyer account ID"},
	FieldBuyerAccountName: {"Buyer account name"},
	FieldFilteringReason:  {"Bid filtering reason", "Filtering reason"},

	FieldReachedQueries:      {"Reached queries"},
	FieldImpressions:         {"Impressions"},
	FieldClicks:              {"Clicks"},
	FieldSpend:               {"Spend (bidder currency)", "Spend (buyer currency)", "Spend _buyer currency_", "Spend"},
	FieldVideoStarts:         {"Video starts"},
	FieldVideoFirstQuartile:  {"Video reached first quartile"},
	FieldVideoMidpoint:       {"Video reached midpoint"},
	FieldVideoThirdQuartile:  {"Video reached third quartile"},
	FieldVideoCompletions:    {"Video completions"},
	FieldVASTErrors:          {"VAST error count"},
	FieldEngagedViews:        {"Engaged views"},
	FieldMeasurable:          {"Active View measurable"},
	FieldViewable:            {"Active View viewable"},
	FieldGMASDK:              {"GMA SDK"},
	FieldBuyerSDK:            {"Buyer SDK"},
	FieldBidRequests:         {"Bid requests"},
	FieldInventoryMatches:    {"Inventory matches"},
	FieldSuccessfulResponses: {"Successful responses"},
	FieldBids:                {"Bids"},
	FieldBidsInAuction:       {"Bids in auction"},
	FieldAuctionsWon:         {"Auctions won"},
	FieldOpportunityCost:     {"Opportunity cost", "Lost spend"},
	FieldPreFiltered:         {"Pre-filtered impressions", "Prefiltered impressions"},
	FieldIVTCredited:         {"IVT credited impressions", "IVT credited", "Invalid traffic credited impressions"},
	FieldBilled:              {"Billed impressions"},
}

// Labels returns the accepted header spellings for f.
func Labels(f Field) []string { return labels[f] }

// Label returns the display label for f.
func Label(f Field) string {
	if l := labels[f]; len(l) > 0 {
		return l[0]
	}
	return string(f)
}

// Schema is the column signature of one report type.
type Schema struct {
	Type     Type
	Required []Field
	Metrics  []Field
	Optional []Field
}

// Fields returns required, metric and optional fields in that order.
func (s Schema) Fields() []Field {
	out := make([]Field, 0, len(s.Required)+len(s.Metrics)+len(s.Optional))
	out = append(out, s.Required...)
	out = append(out, s.Metrics...)
	return append(out, s.Optional...)
}

var (
	performanceSchema = Schema{
		Type:     PerformanceDetail,
		Required: []Field{FieldDay, FieldCreativeID, FieldBillingID},
		Metrics: []Field{
			FieldReachedQueries, FieldImpressions, FieldClicks, FieldSpend,
			FieldVideoStarts, FieldVideoFirstQuartile, FieldVideoMidpoint, FieldVideoThirdQuartile,
			FieldVideoCompletions, FieldVASTErrors, FieldEngagedViews, FieldMeasurable, FieldViewable,
		},
		Optional: []Field{
			FieldHour, FieldCreativeSize, FieldCreativeFormat, FieldCountry, FieldPlatform, FieldEnvironment,
			FieldAppID, FieldAppName, FieldPublisherID, FieldPublisherName, FieldPublisherDomain,
			FieldDealID, FieldDealName, FieldTransactionType, FieldAdvertiser,
			FieldBuyerAccountID, FieldBuyerAccountName, FieldGMASDK, FieldBuyerSDK,
		},
	}

	funnelMetrics = []Field{
		FieldReachedQueries, FieldInventoryMatches, FieldSuccessfulResponses, FieldBids,
		FieldBidsInAuction, FieldAuctionsWon, FieldImpressions, FieldClicks,
	}
	funnelOptional = []Field{
		FieldHour, FieldBuyerAccountID, FieldPublisherID, FieldPublisherName,
		FieldPlatform, FieldEnvironment, FieldTransactionType,
	}

	bidFilteringSchema = Schema{
		Type:     BidFiltering,
		Required: []Field{FieldDay, FieldFilteringReason},
		Metrics:  []Field{FieldBids, FieldBidsInAuction, FieldOpportunityCost},
		Optional: []Field{FieldCountry, FieldBuyerAccountID, FieldCreativeID},
	}

	qualitySchema = Schema{
		Type:     Quality,
		Required: []Field{FieldDay, FieldPublisherID},
		Metrics: []Field{
			FieldImpressions, FieldPreFiltered, FieldIVTCredited, FieldBilled, FieldMeasurable, FieldViewable,
		},
		Optional: []Field{FieldPublisherName, FieldCountry},
	}
)

// SchemaFor returns the static schema of t. Unknown has none.
func SchemaFor(t Type) (Schema, bool) {
	switch t {
	case PerformanceDetail:
		return performanceSchema, true
	case FunnelGeo, FunnelPublisher:
		return Schema{
			Type:     t,
			Required: []Field{FieldDay, FieldCountry, FieldBidRequests},
			Metrics:  funnelMetrics,
			Optional: funnelOptional,
		}, true
	case BidFiltering:
		return bidFilteringSchema, true
	case Quality:
		return qualitySchema, true
	case Unknown:
		return Schema{}, false
	}
	return Schema{}, false
}
