package llm

// PricingShape selects the cost formula of a backend.
type PricingShape string

const (
	// PricingToken bills input/output tokens plus a per-image surcharge.
	PricingToken PricingShape = "token"
	// PricingFlat bills a fixed price per output image, token counts ignored.
	PricingFlat PricingShape = "flat"
)

// Pricing is the per-backend cost model. For PricingToken the rates are USD
// per million tokens and PerImageUSD is a surcharge per generated image; for
// PricingFlat only PerImageUSD applies.
type Pricing struct {
	Shape            PricingShape
	InputPerMTokUSD  float64
	OutputPerMTokUSD float64
	PerImageUSD      float64
}

// Cost computes the USD cost of one call, dispatching on the pricing shape.
func (p Pricing) Cost(tokensIn, tokensOut int64, imageCount int) float64 {
	switch p.Shape {
	case PricingFlat:
		return float64(imageCount) * p.PerImageUSD
	default:
		return float64(tokensIn)/1_000_000*p.InputPerMTokUSD +
			float64(tokensOut)/1_000_000*p.OutputPerMTokUSD +
			float64(imageCount)*p.PerImageUSD
	}
}
