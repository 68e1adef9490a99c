package domain

// ReferenceEntry is one row of the external reference price table, keyed by
// canonical item name. Prices are stored in minor currency units (cents).
type ReferenceEntry struct {
	PriceMinorUnits int64   `json:"price"`
	Liquidity       float64 `json:"liquidity"`
	Quantity        int     `json:"count"`
}

// ReferenceTable is a full snapshot of the reference price service. The whole
// table is replaced atomically on each refresh cycle; entries are never
// mutated in place.
type ReferenceTable map[string]ReferenceEntry
