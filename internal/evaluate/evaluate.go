// Package evaluate implements the profit decision function: given an observed
// listing price and the per-account risk parameters, it decides whether the
// listing is worth buying against the external reference price table.
package evaluate

import (
	"regexp"
	"strings"

	"github.com/arbalest/skinsniper/internal/domain"
)

// Lookup resolves an item name to its reference price entry. Implemented by
// the reference price cache.
type Lookup func(name string) (domain.ReferenceEntry, bool)

// Result is a non-reject evaluation outcome.
type Result struct {
	MarginRatio float64
	RefPrice    float64 // reference unit price in major units
}

// Evaluator applies the exclusion rules and margin computation. It holds no
// mutable state of its own; identical inputs always produce identical output
// for a fixed reference snapshot and ban list.
type Evaluator struct {
	lookup  Lookup
	banlist *BanList
}

// New creates an Evaluator over the given reference lookup and ban list.
func New(lookup Lookup, banlist *BanList) *Evaluator {
	return &Evaluator{lookup: lookup, banlist: banlist}
}

// Evaluate decides whether a listing qualifies. Rules are applied in order,
// first match wins:
//
//  1. name on the operator ban list (substring match) -> reject
//  2. StatTrak finish at Well-Worn or Battle-Scarred wear -> reject
//  3. Doppler finish at Minimal Wear -> reject
//  4. no reference entry, unusable reference price, liquidity below floor,
//     or available quantity below the minimum -> reject
//
// Otherwise it returns the margin ratio against cost = price * feeRate and
// the reference unit price (the table stores minor units).
func (e *Evaluator) Evaluate(name string, price, feeRate, liquidityFloor float64, minQuantity int) (Result, bool) {
	if e.banlist != nil && e.banlist.Banned(name) {
		return Result{}, false
	}
	if strings.Contains(name, "StatTrak") &&
		(strings.Contains(name, "Well-Worn") || strings.Contains(name, "Battle-Scarred")) {
		return Result{}, false
	}
	if strings.Contains(name, "Doppler") && strings.Contains(name, "Minimal Wear") {
		return Result{}, false
	}

	entry, ok := e.lookup(name)
	if !ok && strings.Contains(name, "Doppler") {
		// Phase sub-variants are not priced separately upstream; retry under
		// the canonical name.
		entry, ok = e.lookup(CanonicalPhaseName(name))
	}
	if !ok || entry.PriceMinorUnits <= 0 {
		return Result{}, false
	}
	if entry.Liquidity < liquidityFloor || entry.Quantity < minQuantity {
		return Result{}, false
	}

	refPrice := float64(entry.PriceMinorUnits) / 100
	cost := price * feeRate
	if cost <= 0 {
		return Result{}, false
	}
	return Result{
		MarginRatio: (refPrice - cost) / cost,
		RefPrice:    refPrice,
	}, true
}

// phasePattern matches the phase/gem tokens of Doppler-style finishes with
// any leading dash or whitespace separators.
var phasePattern = regexp.MustCompile(`(\s*[-–—]*\s*)\b(Emerald|Phase 1|Phase 2|Phase 3|Phase 4|Ruby|Sapphire|Black Pearl)\b`)

// CanonicalPhaseName strips phase/gem sub-variant tokens from an item name and
// collapses whitespace, so visually distinct sub-variants map onto the single
// reference entry the upstream catalog prices.
func CanonicalPhaseName(name string) string {
	out := phasePattern.ReplaceAllString(name, "")
	out = strings.Join(strings.Fields(out), " ")
	return strings.TrimSpace(out)
}
