package llm

import "testing"

func TestPricingCost(t *testing.T) {
	tests := []struct {
		name       string
		pricing    Pricing
		tokensIn   int64
		tokensOut  int64
		imageCount int
		want       float64
	}{
		{
			name:       "token pricing with surcharge",
			pricing:    Pricing{Shape: PricingToken, InputPerMTokUSD: 0.30, OutputPerMTokUSD: 2.50, PerImageUSD: 0.039},
			tokensIn:   2_000_000,
			tokensOut:  1_000_000,
			imageCount: 2,
			want:       0.60 + 2.50 + 0.078,
		},
		{
			name:       "flat pricing ignores tokens",
			pricing:    Pricing{Shape: PricingFlat, InputPerMTokUSD: 99, OutputPerMTokUSD: 99, PerImageUSD: 0.10},
			tokensIn:   5_000_000,
			tokensOut:  5_000_000,
			imageCount: 3,
			want:       0.30,
		},
		{
			name:       "zero images zero flat cost",
			pricing:    Pricing{Shape: PricingFlat, PerImageUSD: 0.10},
			imageCount: 0,
			want:       0,
		},
		{
			name:       "token pricing with no usage still bills images",
			pricing:    Pricing{Shape: PricingToken, PerImageUSD: 0.05},
			imageCount: 1,
			want:       0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.pricing.Cost(tt.tokensIn, tt.tokensOut, tt.imageCount)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Cost() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestGenerateResultImageCount(t *testing.T) {
	var nilResult *GenerateResult
	if nilResult.ImageCount() != 0 {
		t.Error("nil result should count 0 images")
	}

	result := &GenerateResult{Images: []string{"a", "  ", "b", ""}}
	if got := result.ImageCount(); got != 2 {
		t.Errorf("ImageCount() = %d, want 2", got)
	}
}
