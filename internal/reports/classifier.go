package reports

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Detection is the outcome of classifying one CSV header.
type Detection struct {
	Type Type
	// Columns maps each logical field found in the header to the header text
	// as it appeared in the file.
	Columns map[Field]string
	// Missing lists required fields of Type absent from the header.
	Missing []Field
	Header  []string
}

// OK reports whether the header matched a known type with every required column.
func (d Detection) OK() bool { return d.Type != Unknown && len(d.Missing) == 0 }

// Has reports whether the header carries field f.
func (d Detection) Has(f Field) bool {
	_, ok := d.Columns[f]
	return ok
}

// headerIndex maps normalized labels to the original header text.
type headerIndex struct {
	fold   cases.Caser
	labels map[string]string
}

func newHeaderIndex(header []string) *headerIndex {
	idx := &headerIndex{fold: cases.Fold(), labels: make(map[string]string, len(header))}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := normalizeLabel(idx.fold, h)
		if key == "" {
			continue
		}
		if _, dup := idx.labels[key]; !dup {
			idx.labels[key] = h
		}
	}
	return idx
}

func normalizeLabel(fold cases.Caser, s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "#")
	return fold.String(strings.TrimSpace(s))
}

// lookup returns the header text matching any accepted label of f.
func (idx *headerIndex) lookup(f Field) (string, bool) {
	for _, l := range labels[f] {
		if h, ok := idx.labels[normalizeLabel(idx.fold, l)]; ok {
			return h, true
		}
	}
	return "", false
}

func (idx *headerIndex) has(fields ...Field) bool {
	for _, f := range fields {
		if _, ok := idx.lookup(f); ok {
			return true
		}
	}
	return false
}

// detectType applies the signature columns in priority order. Bid filtering
// exports may carry "Creative ID" and quality exports carry "Publisher ID",
// so both are checked before the creative and funnel signatures.
func (idx *headerIndex) detectType() Type {
	switch {
	case idx.has(FieldFilteringReason):
		return BidFiltering
	case idx.has(FieldIVTCredited, FieldPreFiltered):
		return Quality
	case idx.has(FieldCreativeID):
		return PerformanceDetail
	case idx.has(FieldBidRequests):
		if idx.has(FieldPublisherID, FieldPublisherName) {
			return FunnelPublisher
		}
		return FunnelGeo
	default:
		return Unknown
	}
}

// Classify determines which report schema header follows. Matching is by
// label, never by position.
func Classify(header []string) Detection {
	d := Detection{Type: Unknown, Header: header}
	idx := newHeaderIndex(header)

	d.Type = idx.detectType()
	schema, ok := SchemaFor(d.Type)
	if !ok {
		return d
	}

	d.Columns = make(map[Field]string)
	for _, f := range schema.Fields() {
		if h, ok := idx.lookup(f); ok {
			d.Columns[f] = h
		}
	}
	for _, f := range schema.Required {
		if _, ok := d.Columns[f]; !ok {
			d.Missing = append(d.Missing, f)
		}
	}
	return d
}

// MissingMessage names the missing required columns by display label.
func (d Detection) MissingMessage() string {
	names := make([]string, len(d.Missing))
	for i, f := range d.Missing {
		names[i] = Label(f)
	}
	return "Missing required columns: " + strings.Join(names, ", ")
}

const maxEchoedColumns = 10

// UnknownMessage explains which schemas are supported and echoes the first
// columns actually seen, so an operator can tell which export is misconfigured.
func (d Detection) UnknownMessage() string {
	var b strings.Builder
	b.WriteString("Could not detect report type from CSV columns.\n\n")
	b.WriteString("Expected one of:\n")
	fmt.Fprintf(&b, "  1. %s: must have '%s' + '%s'\n", PerformanceDetail.Name(), Label(FieldCreativeID), Label(FieldBillingID))
	fmt.Fprintf(&b, "  2. RTB Funnel: must have '%s' (add '%s' for the publisher variant)\n", Label(FieldBidRequests), Label(FieldPublisherID))
	fmt.Fprintf(&b, "  3. %s: must have '%s'\n", BidFiltering.Name(), Label(FieldFilteringReason))
	fmt.Fprintf(&b, "  4. %s: must have '%s' or '%s'\n", Quality.Name(), Label(FieldIVTCredited), Label(FieldPreFiltered))

	seen := d.Header
	if len(seen) > maxEchoedColumns {
		seen = seen[:maxEchoedColumns]
	}
	b.WriteString("\nColumns found: ")
	b.WriteString(strings.Join(seen, ", "))
	if len(d.Header) > maxEchoedColumns {
		b.WriteString("...")
	}
	return b.String()
}
