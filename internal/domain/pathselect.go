package domain

// SettlementPathKind is the closed set of execution paths a net obligation
// or opt-out payment may take (spec.md §4.4).
type SettlementPathKind string

const (
	PathInstantBuy SettlementPathKind = "INSTANT_BUY"
	PathHedging    SettlementPathKind = "HEDGING"
	PathClearing   SettlementPathKind = "CLEARING"
)

// HedgeMode is the sub-mode chosen within the Hedging path.
type HedgeMode string

const (
	HedgeFull    HedgeMode = "FULL"
	HedgePartial HedgeMode = "PARTIAL"
	HedgeDynamic HedgeMode = "DYNAMIC"
)

// SettlementPath is the tagged-variant routing decision for one net
// transfer or opt-out payment. Exactly one of the *Detail fields is set,
// matching Kind.
type SettlementPath struct {
	Kind SettlementPathKind

	InstantBuy *InstantBuyDetail
	Hedging    *HedgingDetail
	Clearing   *ClearingDetail

	CostBps           float64
	ExecutionTimeMs   int
	Confidence        float64
	Reasoning         string
}

// InstantBuyDetail carries the chosen FX provider and quoted rate.
type InstantBuyDetail struct {
	FXProvider   string
	QuotedRate   float64
}

// HedgingDetail carries the hedge ratio and instrument description.
type HedgingDetail struct {
	Mode       HedgeMode
	Ratio      float64 // in [0, 1]
	Instrument string
}

// ClearingDetail carries the target clearing window and estimated benefit.
type ClearingDetail struct {
	TargetWindowID     string
	EstimatedBenefitBps float64
}

// MarketConditions is the input bundle Path Selector scores against.
type MarketConditions struct {
	VolatilityPct   float64 // daily FX volatility, percent
	LiquidityDepth  LiquidityDepth
	ClearingOpen    bool
	OffsettingFlow  bool // a counterposing flow exists in the open window
}

// LiquidityDepth is the closed enumeration of market liquidity states.
type LiquidityDepth string

const (
	LiquidityDeep     LiquidityDepth = "DEEP"
	LiquidityNormal   LiquidityDepth = "NORMAL"
	LiquidityThin     LiquidityDepth = "THIN"
	LiquidityStressed LiquidityDepth = "STRESSED"
)
