// =============================================================================
// Storage Billing - Conversion Matrix
// =============================================================================
//
// This package converts a count of storage positions from one unit type to
// another using a directional rate table.
//
// RATE TABLE (default):
//
//   | from \ to | Pallet | Shelf | Bin |
//   |-----------|--------|-------|-----|
//   | Pallet    | 1      | 2     | 8   |
//   | Shelf     | 0.5    | 1     | 4   |
//   | Bin       | 0.125  | 0.25  | 1   |
//
// Rates are taken as configured; the reverse rate is never derived.
// Results are always rounded up so that billing never under-counts positions.
//
// =============================================================================

package conversion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Default unit names.
const (
	UnitPallet = "Pallet"
	UnitShelf  = "Shelf"
	UnitBin    = "Bin"
)

// =============================================================================
// ERRORS
// =============================================================================

// InvalidUnitError is returned when either side of a conversion is not part
// of the matrix. It is a per-row failure, never a batch failure.
type InvalidUnitError struct {
	From  string
	To    string
	Valid []string
}

// Error implements the error interface.
func (e *InvalidUnitError) Error() string {
	return fmt.Sprintf("Invalid from_type '%s' or to_type '%s'. Valid types are: [%s]",
		e.From, e.To, strings.Join(e.Valid, ", "))
}

// =============================================================================
// MATRIX
// =============================================================================

// Matrix is an immutable directional rate table.
type Matrix struct {
	units []string
	rates map[string]map[string]decimal.Decimal
}

// DefaultRates returns the standard Pallet/Shelf/Bin rate table, keyed
// from-unit first.
func DefaultRates() map[string]map[string]float64 {
	return map[string]map[string]float64{
		UnitPallet: {UnitPallet: 1.0, UnitShelf: 2.0, UnitBin: 8.0},
		UnitShelf:  {UnitPallet: 0.5, UnitShelf: 1.0, UnitBin: 4.0},
		UnitBin:    {UnitPallet: 0.125, UnitShelf: 0.25, UnitBin: 1.0},
	}
}

// Default builds the matrix from DefaultRates.
func Default() *Matrix {
	m, _ := New([]string{UnitPallet, UnitShelf, UnitBin}, DefaultRates())
	return m
}

// New builds a matrix over the given units.
//
// PARAMETERS:
//   - units: The closed unit set, in display order.
//   - rates: rates[from][to]; every pair of units must be present.
//
// RETURNS:
//   - The matrix.
//   - An error if a pair is missing, a rate is not positive, or a rate refers
//     to a unit outside the set.
func New(units []string, rates map[string]map[string]float64) (*Matrix, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("conversion matrix needs at least one unit")
	}

	known := make(map[string]bool, len(units))
	for _, u := range units {
		if known[u] {
			return nil, fmt.Errorf("duplicate unit %q", u)
		}
		known[u] = true
	}

	m := &Matrix{
		units: append([]string(nil), units...),
		rates: make(map[string]map[string]decimal.Decimal, len(units)),
	}

	for from, row := range rates {
		if !known[from] {
			return nil, fmt.Errorf("rate table references unknown unit %q", from)
		}
		for to := range row {
			if !known[to] {
				return nil, fmt.Errorf("rate table references unknown unit %q", to)
			}
		}
	}

	for _, from := range units {
		row, ok := rates[from]
		if !ok {
			return nil, fmt.Errorf("missing rates from unit %q", from)
		}
		m.rates[from] = make(map[string]decimal.Decimal, len(units))
		for _, to := range units {
			rate, ok := row[to]
			if !ok {
				return nil, fmt.Errorf("missing rate %s -> %s", from, to)
			}
			if rate <= 0 {
				return nil, fmt.Errorf("rate %s -> %s must be positive, got %v", from, to, rate)
			}
			m.rates[from][to] = decimal.NewFromFloat(rate)
		}
	}

	return m, nil
}

// Units returns the unit set in construction order.
func (m *Matrix) Units() []string {
	return append([]string(nil), m.units...)
}

// Rate returns the configured rate from one unit to another.
func (m *Matrix) Rate(from, to string) (decimal.Decimal, error) {
	row, ok := m.rates[from]
	if !ok {
		return decimal.Zero, m.invalid(from, to)
	}
	rate, ok := row[to]
	if !ok {
		return decimal.Zero, m.invalid(from, to)
	}
	return rate, nil
}

// Convert converts count positions of unit from into unit to, rounding up.
//
// EXAMPLE:
//   Convert(5, "Bin", "Pallet") = ceil(5 * 0.125) = ceil(0.625) = 1
//   Convert(8, "Bin", "Pallet") = ceil(1.0) = 1
func (m *Matrix) Convert(count int, from, to string) (int, error) {
	rate, err := m.Rate(from, to)
	if err != nil {
		return 0, err
	}
	converted := decimal.NewFromInt(int64(count)).Mul(rate).Ceil()
	return int(converted.IntPart()), nil
}

func (m *Matrix) invalid(from, to string) error {
	return &InvalidUnitError{From: from, To: to, Valid: m.Units()}
}
