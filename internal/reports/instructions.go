package reports

import (
	"fmt"
	"strings"
)

// FixInstructions tells an operator how to change the report builder so the
// export carries the missing fields.
func FixInstructions(t Type, missing []Field) string {
	if len(missing) == 0 {
		return ""
	}
	schema, _ := SchemaFor(t)
	var dims, metrics []string
	for _, f := range missing {
		if contains(schema.Metrics, f) {
			metrics = append(metrics, Label(f))
			continue
		}
		dims = append(dims, Label(f))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To fix your %s export in Authorized Buyers > Reporting:\n", t.Name())
	b.WriteString("  1. Open the scheduled report and click Edit\n")
	step := 2
	if len(dims) > 0 {
		fmt.Fprintf(&b, "  %d. Under Dimensions, add: %s\n", step, strings.Join(dims, ", "))
		step++
	}
	if len(metrics) > 0 {
		fmt.Fprintf(&b, "  %d. Under Metrics, add: %s\n", step, strings.Join(metrics, ", "))
		step++
	}
	fmt.Fprintf(&b, "  %d. Save, run the report again and re-import the CSV\n", step)
	return b.String()
}

func contains(fields []Field, f Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

// Instructions renders the export guide: which reports to schedule and the
// dimensions and metrics each one needs.
func Instructions() string {
	var b strings.Builder
	b.WriteString("Authorized Buyers cannot combine creative detail with bid-funnel metrics in one report,\n")
	b.WriteString("so schedule one export per report type below. Every type is detected from its header.\n")
	for i, t := range []Type{PerformanceDetail, FunnelGeo, FunnelPublisher, BidFiltering, Quality} {
		schema, _ := SchemaFor(t)
		fmt.Fprintf(&b, "\n%d. %s -> %s\n", i+1, t.Name(), t.Table())
		fmt.Fprintf(&b, "   %s\n", t.Description())
		fmt.Fprintf(&b, "   Required:  %s\n", joinLabels(schema.Required))
		if t == FunnelPublisher {
			fmt.Fprintf(&b, "   Also add:  %s\n", Label(FieldPublisherID))
		}
		fmt.Fprintf(&b, "   Metrics:   %s\n", joinLabels(schema.Metrics))
		fmt.Fprintf(&b, "   Optional:  %s\n", joinLabels(schema.Optional))
	}
	return b.String()
}

func joinLabels(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = Label(f)
	}
	return strings.Join(names, ", ")
}
