package domain

// InstanceState is the operator-visible lifecycle state of a trading instance.
type InstanceState string

const (
	StateOffline InstanceState = "offline"
	StateOnline  InstanceState = "online"
)

// RiskParams are the per-account tunables applied by the decision engine.
// They are owned by a single trading instance and mutated only through the
// instance's setter operations.
type RiskParams struct {
	MinProfitMargin float64 // minimum margin ratio to buy, e.g. 0.05 for 5%
	LiquidityFloor  float64
	MinQuantity     int
	PriceMin        float64
	PriceMax        float64
}

// AccountStatus is a point-in-time snapshot of an instance, rendered into the
// operator status notification.
type AccountStatus struct {
	State   InstanceState
	Name    string
	Balance float64
	Params  RiskParams
}
