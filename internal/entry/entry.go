// Package entry implements the entry orchestrator: it turns the
// collected, filtered signals plus balance/position/trend context into
// a single ENTER-or-SKIP decision with a sized, enriched signal,
// generalized from the teacher's inline buy/sell threshold check in
// step.go into the weighted-aggregation algorithm of spec §4.10.
package entry

import (
	"sort"
	"strings"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/metrics"
	"github.com/chidi150c/futurescore/internal/risk"
)

// Config parameterizes the aggregation threshold.
type Config struct {
	MinConfidenceToEnter float64 // 0..100, normalized-score threshold
}

// DecisionKind is the orchestrator's binary outcome.
type DecisionKind string

const (
	Enter DecisionKind = "ENTER"
	Skip  DecisionKind = "SKIP"
)

// Decision is the entry orchestrator's output.
type Decision struct {
	Kind   DecisionKind
	Reason string
	Signal *domain.Signal // set only when Kind == Enter
}

func skip(reason string) Decision { return Decision{Kind: Skip, Reason: reason} }

// Approver is the risk manager's capability surface, narrowed to what
// the entry orchestrator needs (step 7 of the algorithm).
type Approver interface {
	Approve(signal domain.Signal, balance exchange.Balance, openPositions []domain.Position, stats risk.DailyStats) risk.Decision
}

// Decide runs the full spec §4.10 algorithm.
func Decide(signals []domain.Signal, balance exchange.Balance, openPositions []domain.Position, trend domain.TrendAnalysis, cfg Config, approver Approver, stats risk.DailyStats) Decision {
	// 1. Already in position.
	if len(openPositions) > 0 {
		return skip("already in position")
	}

	// 2. Drop restricted directions.
	aligned := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if !trend.Restricts(s.Direction) {
			aligned = append(aligned, s)
		}
	}

	// 3. Nothing left.
	if len(aligned) == 0 {
		return skip("no aligned signals")
	}

	// 4. Aggregate per direction; break ties by highest priority.
	type agg struct {
		score        float64
		maxPriority  int
		contributors []string
		price        float64
	}
	scores := map[domain.Direction]*agg{}
	for _, s := range aligned {
		a, ok := scores[s.Direction]
		if !ok {
			a = &agg{}
			scores[s.Direction] = a
		}
		a.score += (s.Confidence / 100) * s.Weight
		if s.Priority > a.maxPriority {
			a.maxPriority = s.Priority
		}
		a.contributors = append(a.contributors, s.Type)
		a.price = s.Price
	}

	var winningDir domain.Direction
	var winning *agg
	for dir, a := range scores {
		if winning == nil ||
			a.score > winning.score ||
			(a.score == winning.score && a.maxPriority > winning.maxPriority) {
			winning = a
			winningDir = dir
		}
	}

	// Each term is (confidence/100)*weight, so the raw sum lands on a
	// 0..maxWeightSum scale, not 0..100. Rescale to 0..100 before the
	// threshold check and before it becomes the representative signal's
	// Confidence, so both are comparable to MinConfidenceToEnter.
	normalizedScore := winning.score * 100

	// 5. Threshold.
	if normalizedScore < cfg.MinConfidenceToEnter {
		return skip("aggregated score below min_confidence_to_enter")
	}

	// 6. Build the representative signal.
	sort.Strings(winning.contributors)
	representative := domain.Signal{
		Direction:  winningDir,
		Confidence: clamp100(normalizedScore),
		Price:      winning.price,
		Reason:     strings.Join(winning.contributors, "+"),
	}
	// Carry the stop-loss/take-profits of the highest-scoring
	// contributing signal for that direction so sizing has a concrete
	// distance to work with.
	bestScore := -1.0
	for _, s := range aligned {
		if s.Direction != winningDir {
			continue
		}
		if score := (s.Confidence / 100) * s.Weight; score > bestScore {
			bestScore = score
			representative.StopLoss = s.StopLoss
			representative.TakeProfits = s.TakeProfits
		}
	}

	// 7. Risk approval.
	riskDecision := approver.Approve(representative, balance, openPositions, stats)
	if !riskDecision.Approved {
		metrics.RecordRiskRejection(riskDecision.Reason)
		return skip(riskDecision.Reason)
	}
	representative.PositionSize = riskDecision.PositionSize
	return Decision{Kind: Enter, Signal: &representative}
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
