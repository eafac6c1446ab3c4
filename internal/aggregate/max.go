// =============================================================================
// Storage Billing - Max Aggregator
// =============================================================================
//
// Keeps, per protocol, the rows of the single report in which that protocol
// billed the most.
//
// STATE PER PROTOCOL:
//
//   unseen --Apply--> held(file, rows, total) --Apply, strictly greater--> held(file', rows', total')
//                                              --Apply, equal or lower----> unchanged
//
// RULES:
//   - Rows are keyed by their raw inventory protocol.
//   - Protocols in the exclusion set and rows with a blank protocol are never
//     held.
//   - A file's total for a protocol is the sum of its rows' Total Price, with
//     null prices counted as 0.
//   - On an exact tie the held file stays, so the winning value does not
//     depend on file order but the winning file can.
//
// The aggregator is not safe for concurrent use. Apply reports one at a time
// from a single goroutine.
//
// =============================================================================

package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/storage-billing/internal/types"
)

// ReportLabel returns the label a billing report is known by in the max
// ledger: the name of the workbook it is written to.
func ReportLabel(name string) string {
	return fmt.Sprintf("output_%s.xlsx", name)
}

type held struct {
	file  string
	rows  []types.BillingRow
	total decimal.Decimal
}

// MaxAggregator is the best-so-far reducer over a batch of billing reports.
type MaxAggregator struct {
	exclude map[string]struct{}
	held    map[string]*held

	// order lists held protocols by their most recent replacement.
	order []string
}

// NewMaxAggregator returns an aggregator that ignores the given protocols.
func NewMaxAggregator(exclude []string) *MaxAggregator {
	set := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		set[p] = struct{}{}
	}
	return &MaxAggregator{
		exclude: set,
		held:    make(map[string]*held),
	}
}

// Excluded reports whether protocol is in the exclusion set.
func (a *MaxAggregator) Excluded(protocol string) bool {
	_, ok := a.exclude[protocol]
	return ok
}

// Apply feeds one report's rows, labelled file, into the aggregator.
//
// RETURNS:
//   - The protocols whose held rows were replaced by this report, in the
//     order they first appear in rows.
func (a *MaxAggregator) Apply(rows []types.BillingRow, file string) []string {
	byProtocol := make(map[string][]types.BillingRow)
	var protocols []string

	for _, row := range rows {
		p := row.Protocol
		if p == "" || a.Excluded(p) {
			continue
		}
		if _, ok := byProtocol[p]; !ok {
			protocols = append(protocols, p)
		}
		byProtocol[p] = append(byProtocol[p], row)
	}

	var replaced []string
	for _, p := range protocols {
		group := byProtocol[p]
		total := Total(group)

		current, ok := a.held[p]
		if ok && !total.GreaterThan(current.total) {
			continue
		}

		a.held[p] = &held{file: file, rows: group, total: total}
		a.moveToBack(p)
		replaced = append(replaced, p)
	}

	return replaced
}

func (a *MaxAggregator) moveToBack(protocol string) {
	for i, p := range a.order {
		if p == protocol {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.order = append(a.order, protocol)
}

// Result returns the held rows of every protocol, each tagged with its
// winning file, protocols ordered by their last replacement.
func (a *MaxAggregator) Result() []types.MaxEntry {
	var out []types.MaxEntry
	for _, p := range a.order {
		h := a.held[p]
		for _, row := range h.rows {
			out = append(out, types.MaxEntry{BillingRow: row, FileName: h.file})
		}
	}
	return out
}

// Totals returns the held total per protocol.
func (a *MaxAggregator) Totals() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(a.held))
	for p, h := range a.held {
		out[p] = h.total
	}
	return out
}

// Len returns the number of held protocols.
func (a *MaxAggregator) Len() int {
	return len(a.held)
}

// Total sums the Total Price of rows, counting null prices as 0.
func Total(rows []types.BillingRow) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range rows {
		if row.TotalPrice.Valid {
			sum = sum.Add(row.TotalPrice.Decimal)
		}
	}
	return sum
}
