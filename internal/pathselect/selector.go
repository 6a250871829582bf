// Package pathselect implements the Settlement Path Selector: for every net
// transfer or FX-bearing payment, it scores Instant Buy, Hedging, and
// Clearing paths against current market conditions and risk, and returns
// the highest-scoring path. Selection never fails — if every input is
// degenerate, Instant Buy is returned as the conservative default.
package pathselect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/shopspring/decimal"
)

// Selector scores settlement paths using configured thresholds
// (spec.md §4.4).
type Selector struct {
	instantBuyThreshold        decimal.Decimal
	hedgingVolatilityThreshold float64
	clearingBenefitThreshold   float64
}

// New builds a Selector from the path-selection config section.
func New(cfg config.PathSelectConfig) (*Selector, error) {
	threshold, err := decimal.NewFromString(cfg.InstantBuyThreshold)
	if err != nil {
		return nil, fmt.Errorf("pathselect: invalid instant_buy_threshold: %w", err)
	}
	return &Selector{
		instantBuyThreshold:        threshold,
		hedgingVolatilityThreshold: cfg.HedgingVolatilityThreshold,
		clearingBenefitThreshold:   cfg.ClearingBenefitThreshold,
	}, nil
}

type scoredPath struct {
	path         domain.SettlementPath
	score        float64
	riskFactors  []string
}

// Select scores all three paths and returns the highest-scoring one. On a
// tied score Clearing is preferred; a tie between Instant Buy and Hedging
// goes to Instant Buy.
func (s *Selector) Select(amount decimal.Decimal, riskScore float64, market domain.MarketConditions, offsettingAmount decimal.Decimal) domain.SettlementPath {
	candidates := []scoredPath{
		s.scoreInstantBuy(amount, riskScore, market),
		s.scoreHedging(amount, riskScore, market),
		s.scoreClearing(amount, market, offsettingAmount),
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].path.Kind == domain.PathClearing && candidates[j].path.Kind != domain.PathClearing
	})

	winner := candidates[0]
	winner.path.Confidence = s.confidence(winner, market)
	winner.path.Reasoning = s.reasoning(winner, market)
	return winner.path
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Selector) scoreInstantBuy(amount decimal.Decimal, riskScore float64, market domain.MarketConditions) scoredPath {
	score := 50.0
	var factors []string

	fiveX := s.instantBuyThreshold.Mul(decimal.NewFromInt(5))
	switch {
	case amount.LessThanOrEqual(s.instantBuyThreshold):
		score += 30
		factors = append(factors, "small transaction size favors instant execution")
	case amount.LessThanOrEqual(fiveX):
		score += 15
	default:
		score -= 10
		factors = append(factors, "large amount may face slippage")
	}

	switch market.LiquidityDepth {
	case domain.LiquidityDeep:
		score += 20
		factors = append(factors, "deep market liquidity")
	case domain.LiquidityNormal:
		score += 10
	case domain.LiquidityThin:
		score -= 20
		factors = append(factors, "thin liquidity - potential slippage")
	case domain.LiquidityStressed:
		score -= 40
		factors = append(factors, "stressed market - avoid instant buy")
	}

	switch {
	case market.VolatilityPct < s.hedgingVolatilityThreshold/3:
		score += 15
	case market.VolatilityPct < s.hedgingVolatilityThreshold:
		score += 5
	case market.VolatilityPct < s.hedgingVolatilityThreshold*2:
		score -= 15
		factors = append(factors, "high FX volatility")
	default:
		score -= 30
		factors = append(factors, "extreme volatility - instant buy risky")
	}

	if riskScore < 25.0 {
		score += 10
	}

	amountFloat, _ := amount.Float64()
	costBps := 5 + int(amountFloat/100000.0*2.0)

	return scoredPath{
		path: domain.SettlementPath{
			Kind: domain.PathInstantBuy,
			InstantBuy: &domain.InstantBuyDetail{
				FXProvider: "GlobalFX",
				QuotedRate: estimatedRate(market),
			},
			CostBps:         float64(costBps),
			ExecutionTimeMs: 500,
		},
		score:       clampScore(score),
		riskFactors: factors,
	}
}

func (s *Selector) scoreHedging(amount decimal.Decimal, riskScore float64, market domain.MarketConditions) scoredPath {
	score := 30.0
	var factors []string

	fiveX := s.instantBuyThreshold.Mul(decimal.NewFromInt(5))
	tenX := s.instantBuyThreshold.Mul(decimal.NewFromInt(10))

	switch {
	case amount.GreaterThan(fiveX):
		score += 25
		factors = append(factors, "large amount benefits from hedging")
	case amount.GreaterThan(s.instantBuyThreshold):
		score += 15
	}

	extreme := market.VolatilityPct >= s.hedgingVolatilityThreshold*2
	high := !extreme && market.VolatilityPct >= s.hedgingVolatilityThreshold
	low := market.VolatilityPct < s.hedgingVolatilityThreshold/3

	switch {
	case low:
		score -= 10
	case extreme:
		score += 40
		factors = append(factors, "extreme volatility - full hedge recommended")
	case high:
		score += 30
		factors = append(factors, "high volatility - hedging recommended")
	}

	var mode domain.HedgeMode
	var ratio float64
	switch {
	case extreme:
		mode, ratio = domain.HedgeFull, 1.0
	case high && amount.GreaterThan(tenX):
		mode, ratio = domain.HedgeFull, 1.0
	case high:
		mode, ratio = domain.HedgePartial, 0.75
	case !low && amount.GreaterThan(tenX):
		mode, ratio = domain.HedgePartial, 0.5
	default:
		mode, ratio = domain.HedgeDynamic, 0.3
	}

	if riskScore > 50.0 {
		score += 15
		factors = append(factors, "elevated risk score suggests hedging")
	}

	costBps := 5 + int(ratio*10.0)

	return scoredPath{
		path: domain.SettlementPath{
			Kind: domain.PathHedging,
			Hedging: &domain.HedgingDetail{
				Mode:       mode,
				Ratio:      ratio,
				Instrument: "FX Forward",
			},
			CostBps:         float64(costBps),
			ExecutionTimeMs: 2000,
		},
		score:       clampScore(score),
		riskFactors: factors,
	}
}

func (s *Selector) scoreClearing(amount decimal.Decimal, market domain.MarketConditions, offsettingAmount decimal.Decimal) scoredPath {
	score := 40.0
	var factors []string

	switch {
	case market.ClearingOpen:
		score += 20
		factors = append(factors, "clearing window open")
	default:
		score -= 50
		factors = append(factors, "no clearing window available")
	}

	if market.OffsettingFlow && amount.IsPositive() {
		ratio, _ := offsettingAmount.Div(amount).Float64()
		if ratio >= s.clearingBenefitThreshold {
			score += 35
			factors = append(factors, "potential netting benefit with offsetting counterparty flow")
		}
	}

	threeX := s.instantBuyThreshold.Mul(decimal.NewFromInt(3))
	if amount.GreaterThan(threeX) {
		score += 15
		factors = append(factors, "large amount benefits from multilateral netting")
	}

	switch {
	case market.VolatilityPct < s.hedgingVolatilityThreshold/3:
		score += 15
		factors = append(factors, "low volatility - safe to wait for clearing")
	case market.VolatilityPct < s.hedgingVolatilityThreshold:
		score += 5
	default:
		score -= 10
		factors = append(factors, "elevated volatility while waiting for clearing")
	}

	nettingDiscount := 0
	if market.OffsettingFlow {
		nettingDiscount = 5
	}
	costBps := 10 - nettingDiscount
	if costBps < 2 {
		costBps = 2
	}

	return scoredPath{
		path: domain.SettlementPath{
			Kind: domain.PathClearing,
			Clearing: &domain.ClearingDetail{
				TargetWindowID:      "",
				EstimatedBenefitBps: float64(nettingDiscount) * 10,
			},
			CostBps:         float64(costBps),
			ExecutionTimeMs: 300000,
		},
		score:       clampScore(score),
		riskFactors: factors,
	}
}

func estimatedRate(market domain.MarketConditions) float64 {
	return 1.0
}

func (s *Selector) confidence(selected scoredPath, market domain.MarketConditions) float64 {
	confidence := 0.5
	confidence += (selected.score - 50.0) / 100.0

	low := market.VolatilityPct < s.hedgingVolatilityThreshold/3
	normal := !low && market.VolatilityPct < s.hedgingVolatilityThreshold
	extreme := market.VolatilityPct >= s.hedgingVolatilityThreshold*2

	switch {
	case low && market.LiquidityDepth == domain.LiquidityDeep:
		confidence += 0.2
	case normal && market.LiquidityDepth == domain.LiquidityNormal:
		confidence += 0.1
	case extreme || market.LiquidityDepth == domain.LiquidityStressed:
		confidence -= 0.2
	}

	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.99 {
		confidence = 0.99
	}
	return confidence
}

func (s *Selector) reasoning(selected scoredPath, market domain.MarketConditions) string {
	var name string
	switch selected.path.Kind {
	case domain.PathInstantBuy:
		name = "Instant Buy"
	case domain.PathHedging:
		name = string(selected.path.Hedging.Mode) + " Hedging"
	case domain.PathClearing:
		name = "Clearing/Netting"
	}
	return fmt.Sprintf("%s selected (score: %.1f/100, cost: %.0f bps). Factors: %s",
		name, selected.score, selected.path.CostBps, strings.Join(selected.riskFactors, "; "))
}
