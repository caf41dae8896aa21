package cost

import "go.uber.org/zap"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
	// AudioOutput prices generated audio tokens (speech models). Zero falls
	// back to Output.
	AudioOutput   float64 `yaml:"audio_output" mapstructure:"audio_output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is provider-neutral token accounting for one call.
type Usage struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Gemini computes the cost of a generateContent call. Unknown models cost 0.
func (c *Calculator) Gemini(model string, u Usage) float64 {
	rate, ok := c.rates.Gemini[model]
	if !ok {
		return 0
	}
	out := rate.Output
	if rate.AudioOutput > 0 {
		out = rate.AudioOutput
	}
	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * out
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + crCost
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, u Usage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Log records the usage and cost of one call at debug level.
func (c *Calculator) Log(provider, model, operation string, u Usage) {
	var usd float64
	switch provider {
	case "gemini":
		usd = c.Gemini(model, u)
	case "anthropic":
		usd = c.Claude(model, u)
	}
	zap.L().Debug("api usage",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("operation", operation),
		zap.Int("input_tokens", u.Input),
		zap.Int("output_tokens", u.Output),
		zap.Float64("cost_usd", usd),
	)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash-preview-09-2025": {
				Input: 0.30, Output: 2.50, CacheReadMul: 0.25,
			},
			"gemini-2.5-flash-preview-tts": {
				Input: 0.50, Output: 10.00, AudioOutput: 10.00,
			},
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
	}
}
