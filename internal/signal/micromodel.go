package signal

import (
	"math/rand"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/indicator"
)

// MicroModel is a tiny logistic-regression-style directional model
// over (ret1, ret5, rsi14/100, zscore20), generalized from the
// teacher's AIMicroModel to read its RSI/ZScore inputs from the
// indicator cache instead of recomputing them inline.
type MicroModel struct {
	cfg            AnalyzerConfig
	weights        []float64
	bias           float64
	buyThreshold   float64
	sellThreshold  float64
}

// NewMicroModel seeds small random weights, matching the teacher's
// newModel() initialization, parameterized by the analyzer's config.
func NewMicroModel(cfg AnalyzerConfig) *MicroModel {
	w := make([]float64, 4)
	for i := range w {
		w[i] = rand.NormFloat64() * 0.01
	}
	buy := cfg.Params["buy_threshold"]
	if buy == 0 {
		buy = 0.55
	}
	sell := cfg.Params["sell_threshold"]
	if sell == 0 {
		sell = 0.45
	}
	return &MicroModel{cfg: cfg, weights: w, buyThreshold: buy, sellThreshold: sell}
}

func (m *MicroModel) Name() string { return m.cfg.Name }

func (m *MicroModel) predict(features []float64) float64 {
	if len(features) != len(m.weights) {
		return 0.5
	}
	z := m.bias
	for i := range features {
		z += m.weights[i] * features[i]
	}
	return sigmoid(z)
}

func (m *MicroModel) Analyze(candles []domain.Candle, cache indicator.Cache, interval string) domain.Signal {
	if len(candles) < 40 {
		return domain.Signal{Direction: domain.Hold}
	}
	i := len(candles) - 1
	latest := candles[i]

	rsi, ok := cache.Get(indicator.CacheKey("RSI", 14, interval, latest.Timestamp))
	if !ok {
		return domain.Signal{Direction: domain.Hold}
	}
	zscore, ok := cache.Get(indicator.CacheKey("ZSCORE", 20, interval, latest.Timestamp))
	if !ok {
		zscore = 0
	}

	ret1 := (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
	ret5 := (candles[i].Close - candles[i-5].Close) / candles[i-5].Close
	pUp := m.predict([]float64{ret1, ret5, rsi / 100.0, zscore})

	switch {
	case pUp >= m.buyThreshold:
		return domain.Signal{
			Direction:  domain.Long,
			Confidence: pUp * 100,
			Type:       "momentum",
			Reason:     "micro_model_pUp_above_buy_threshold",
		}
	case pUp <= m.sellThreshold:
		return domain.Signal{
			Direction:  domain.Short,
			Confidence: (1 - pUp) * 100,
			Type:       "momentum",
			Reason:     "micro_model_pUp_below_sell_threshold",
		}
	default:
		return domain.Signal{Direction: domain.Hold}
	}
}
