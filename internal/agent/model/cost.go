package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// Cost is the USD cost of one model call.
type Cost struct {
	Input  float64
	Output float64
}

func (c Cost) Total() float64 {
	return c.Input + c.Output
}

// pricing holds USD per 1M text tokens of the Gemini models the engine uses.
var pricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
}

// ResolvePricing returns the pricing of a model. Resource names
// ("models/…") and versioned names ("…-preview-09-2025") resolve to the
// longest known prefix; unknown models cost nothing.
func ResolvePricing(model string) Pricing {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(model)), "models/")
	if p, ok := pricing[name]; ok {
		return p
	}
	best, found := "", Pricing{}
	for known, p := range pricing {
		if strings.HasPrefix(name, known+"-") && len(known) > len(best) {
			best, found = known, p
		}
	}
	return found
}

// CostOf converts token usage to USD. Nil usage costs nothing.
func (p Pricing) CostOf(usage *schema.TokenUsage) Cost {
	if usage == nil {
		return Cost{}
	}
	return Cost{
		Input:  p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0,
		Output: p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0,
	}
}

// UsageOf extracts token usage from a model response, if the provider reported it.
func UsageOf(msg *schema.Message) *schema.TokenUsage {
	if msg == nil || msg.ResponseMeta == nil {
		return nil
	}
	return msg.ResponseMeta.Usage
}
