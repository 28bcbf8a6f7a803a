package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubProvider struct {
	id      string
	pricing Pricing
	result  *GenerateResult
	err     error
	calls   int
}

func (s *stubProvider) ProviderID() string { return s.id }
func (s *stubProvider) Pricing() Pricing   { return s.pricing }
func (s *stubProvider) GenerateImages(_ context.Context, _ GenerateRequest) (*GenerateResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	clone := *s.result
	return &clone, nil
}

func TestGatewayUsesPrimaryProvider(t *testing.T) {
	primary := &stubProvider{
		id:      "primary",
		pricing: Pricing{Shape: PricingToken, InputPerMTokUSD: 1, OutputPerMTokUSD: 2, PerImageUSD: 0.01},
		result:  &GenerateResult{Images: []string{"data:image/png;base64,AAA"}, TokensIn: 1_000_000, TokensOut: 500_000},
	}
	fallback := &stubProvider{id: "fallback", result: &GenerateResult{Images: []string{"x"}}}

	gw, err := NewGateway([]ImageService{primary, fallback}, time.Second)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	result, err := gw.Generate(context.Background(), GenerateRequest{Prompt: "a headshot"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Provider != "primary" {
		t.Errorf("provider = %s, want primary", result.Provider)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
	// 1M in * $1/M + 0.5M out * $2/M + 1 image * $0.01
	want := 1.0 + 1.0 + 0.01
	if diff := result.CallCostUSD - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %f, want %f", result.CallCostUSD, want)
	}
}

func TestGatewayFallsBackOnError(t *testing.T) {
	primary := &stubProvider{id: "primary", err: errors.New("quota exceeded")}
	fallback := &stubProvider{
		id:      "fallback",
		pricing: Pricing{Shape: PricingFlat, PerImageUSD: 0.1},
		result:  &GenerateResult{Images: []string{"data:image/png;base64,BBB"}},
	}

	gw, _ := NewGateway([]ImageService{primary, fallback}, time.Second)
	result, err := gw.Generate(context.Background(), GenerateRequest{Prompt: "a headshot"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Provider != "fallback" {
		t.Errorf("provider = %s, want fallback", result.Provider)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	want := 0.1
	if diff := result.CallCostUSD - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %f, want %f", result.CallCostUSD, want)
	}
}

func TestGatewayFallsBackOnZeroImages(t *testing.T) {
	// A malformed-but-200 response carries text and no images; the gateway
	// must treat it as a failure and move on.
	primary := &stubProvider{id: "primary", result: &GenerateResult{Thinking: "I cannot do that"}}
	fallback := &stubProvider{id: "fallback", result: &GenerateResult{Images: []string{"ok"}}}

	gw, _ := NewGateway([]ImageService{primary, fallback}, time.Second)
	result, err := gw.Generate(context.Background(), GenerateRequest{Prompt: "a headshot"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Provider != "fallback" {
		t.Errorf("provider = %s, want fallback", result.Provider)
	}
}

func TestGatewayAllProvidersFail(t *testing.T) {
	gw, _ := NewGateway([]ImageService{
		&stubProvider{id: "a", err: errors.New("timeout")},
		&stubProvider{id: "b", err: errors.New("http 500")},
	}, time.Second)

	_, err := gw.Generate(context.Background(), GenerateRequest{Prompt: "a headshot"})
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	for _, want := range []string{"a: timeout", "b: http 500"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestGatewayRejectsEmptyPrompt(t *testing.T) {
	gw, _ := NewGateway([]ImageService{&stubProvider{id: "a", result: &GenerateResult{}}}, time.Second)
	if _, err := gw.Generate(context.Background(), GenerateRequest{Prompt: "   "}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestNewGatewayRequiresProviders(t *testing.T) {
	if _, err := NewGateway(nil, time.Second); err == nil {
		t.Fatal("expected error for empty chain")
	}
}
