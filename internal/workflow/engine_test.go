package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/compositor"
	"github.com/mvh70/teamshots-sub010/internal/entity"
	"github.com/mvh70/teamshots-sub010/internal/llm"
	"github.com/mvh70/teamshots-sub010/internal/storage"
)

// memoryStorage 是测试用的内存对象存储。
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	counter int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Save(_ context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	key := fmt.Sprintf("%s/%s-%d.%s", opts.Category, opts.BaseName, m.counter, opts.Extension)
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (m *memoryStorage) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// scriptedProvider 依次返回预设的结果或错误。
type scriptedProvider struct {
	id       string
	results  []*llm.GenerateResult
	errs     []error
	calls    int
	requests []llm.GenerateRequest
}

func (p *scriptedProvider) ProviderID() string { return p.id }

func (p *scriptedProvider) Pricing() llm.Pricing {
	return llm.Pricing{Shape: llm.PricingFlat, PerImageUSD: 0.05}
}

func (p *scriptedProvider) GenerateImages(_ context.Context, request llm.GenerateRequest) (*llm.GenerateResult, error) {
	p.requests = append(p.requests, request)
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	return p.results[idx], nil
}

func testPNGDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 140, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testPNGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func buildTestJob(t *testing.T, store *memoryStorage, version entity.WorkflowVersion, style entity.StyleSettings) *entity.DbJob {
	t.Helper()
	store.put("selfies/a.png", testPNGBytes(t, 200, 260))
	store.put("selfies/b.png", testPNGBytes(t, 180, 240))

	payload, err := entity.EncodeStyleSettings(style)
	if err != nil {
		t.Fatalf("encode style: %v", err)
	}
	return &entity.DbJob{
		GenerationID:    "gen-test-1",
		SelfieKeys:      entity.StringArray{"selfies/a.png", "selfies/b.png"},
		StylePayload:    payload,
		WorkflowVersion: version,
	}
}

func studioStyle() entity.StyleSettings {
	return entity.StyleSettings{
		Package:      entity.StylePackageStudio,
		Studio:       &entity.StudioStyle{BackdropColor: "white"},
		FormatWidth:  1024,
		FormatHeight: 1024,
	}
}

func newTestEngine(t *testing.T, store *memoryStorage, provider llm.ImageService) *Engine {
	t.Helper()
	gateway, err := llm.NewGateway([]llm.ImageService{provider}, 5*time.Second)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	engine, err := NewEngine(store, gateway, compositor.NewBrander(gateway))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngineRunV3Succeeds(t *testing.T) {
	store := newMemoryStorage()
	provider := &scriptedProvider{
		id: "stub",
		results: []*llm.GenerateResult{
			{Images: []string{testPNGDataURL(t, 640, 640)}, Thinking: "looks good"},
		},
	}
	engine := newTestEngine(t, store, provider)
	job := buildTestJob(t, store, entity.WorkflowV3, studioStyle())

	result, err := engine.Run(context.Background(), job, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.OutputKeys) != 1 {
		t.Fatalf("output keys = %v, want one", result.OutputKeys)
	}
	if !strings.HasPrefix(result.OutputKeys[0], storage.CategoryOutput+"/") {
		t.Fatalf("output key %q not under outputs", result.OutputKeys[0])
	}
	if result.Provider != "stub" {
		t.Fatalf("provider = %q", result.Provider)
	}
	if result.RegenerationsUsed != 0 {
		t.Fatalf("regenerations used = %d, want 0", result.RegenerationsUsed)
	}
	if result.CallCostUSD != 0.05 {
		t.Fatalf("call cost = %v, want 0.05", result.CallCostUSD)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.requests))
	}
	req := provider.requests[0]
	if req.AspectRatio != "1:1" {
		t.Fatalf("aspect ratio = %q, want 1:1", req.AspectRatio)
	}
	if len(req.References) != 1 {
		t.Fatalf("references = %d, want the composite sheet only", len(req.References))
	}
	if !strings.Contains(req.References[0].Description, "Subject Face") {
		t.Fatalf("composite description = %q", req.References[0].Description)
	}
	if !strings.Contains(req.Prompt, "SCENE SPECIFICATION (JSON):") {
		t.Fatal("prompt missing structured scene payload")
	}
}

func TestEngineRegeneratesOnceOnBadOutput(t *testing.T) {
	store := newMemoryStorage()
	provider := &scriptedProvider{
		id: "stub",
		results: []*llm.GenerateResult{
			nil,
			{Images: []string{testPNGDataURL(t, 640, 640)}},
		},
		errs: []error{errors.New("upstream hiccup"), nil},
	}
	engine := newTestEngine(t, store, provider)
	job := buildTestJob(t, store, entity.WorkflowV3, studioStyle())

	result, err := engine.Run(context.Background(), job, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RegenerationsUsed != 1 {
		t.Fatalf("regenerations used = %d, want 1", result.RegenerationsUsed)
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
	if !strings.Contains(provider.requests[1].Prompt, "PREVIOUS ATTEMPT FAILED") {
		t.Fatal("regeneration prompt missing corrective note")
	}
}

func TestEngineFailsWhenRegenerationsExhausted(t *testing.T) {
	store := newMemoryStorage()
	provider := &scriptedProvider{
		id:      "stub",
		results: []*llm.GenerateResult{nil},
		errs:    []error{errors.New("always failing")},
	}
	engine := newTestEngine(t, store, provider)
	job := buildTestJob(t, store, entity.WorkflowV3, studioStyle())

	_, err := engine.Run(context.Background(), job, 0)
	if err == nil {
		t.Fatal("expected error when no regenerations remain")
	}
	if !strings.Contains(err.Error(), "no regenerations left") {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
}

func TestEngineCustomBackgroundAddsReference(t *testing.T) {
	store := newMemoryStorage()
	store.put("backgrounds/office.png", testPNGBytes(t, 400, 300))
	provider := &scriptedProvider{
		id: "stub",
		results: []*llm.GenerateResult{
			{Images: []string{testPNGDataURL(t, 640, 640)}},
		},
	}
	engine := newTestEngine(t, store, provider)

	style := entity.StyleSettings{
		Package: entity.StylePackageCustom,
		Custom:  &entity.CustomBackgroundStyle{BackgroundKey: "backgrounds/office.png"},
	}
	job := buildTestJob(t, store, entity.WorkflowV2, style)

	result, err := engine.Run(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.OutputKeys) != 1 {
		t.Fatalf("output keys = %v", result.OutputKeys)
	}

	req := provider.requests[len(provider.requests)-1]
	if len(req.References) != 2 {
		t.Fatalf("references = %d, want composite plus background", len(req.References))
	}
	if !strings.Contains(req.References[1].Description, "BACKGROUND REFERENCE") {
		t.Fatalf("background description = %q", req.References[1].Description)
	}
}

func TestEngineDebugPersistsComposite(t *testing.T) {
	store := newMemoryStorage()
	provider := &scriptedProvider{
		id: "stub",
		results: []*llm.GenerateResult{
			{Images: []string{testPNGDataURL(t, 640, 640)}, Thinking: "step by step"},
		},
	}
	engine := newTestEngine(t, store, provider)
	job := buildTestJob(t, store, entity.WorkflowV3, studioStyle())
	job.Debug = true

	if _, err := engine.Run(context.Background(), job, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	foundComposite := false
	foundThinking := false
	for key := range store.objects {
		if strings.HasPrefix(key, storage.CategoryDebug+"/") {
			if strings.Contains(key, "composite") {
				foundComposite = true
			}
			if strings.Contains(key, "thinking") {
				foundThinking = true
			}
		}
	}
	if !foundComposite {
		t.Fatal("debug composite not persisted")
	}
	if !foundThinking {
		t.Fatal("debug thinking trace not persisted")
	}
}

func TestEngineRejectsUnknownVersion(t *testing.T) {
	store := newMemoryStorage()
	provider := &scriptedProvider{id: "stub", results: []*llm.GenerateResult{{}}}
	engine := newTestEngine(t, store, provider)
	job := buildTestJob(t, store, entity.WorkflowVersion("v9"), studioStyle())

	if _, err := engine.Run(context.Background(), job, 0); err == nil {
		t.Fatal("expected error for unknown workflow version")
	}
}

func TestEvaluateOutputs(t *testing.T) {
	good := testPNGDataURL(t, 10, 10)

	if err := evaluateOutputs(nil); err == nil {
		t.Fatal("empty result must be recoverable failure")
	}
	if err := evaluateOutputs([]string{good}); err != nil {
		t.Fatalf("valid image rejected: %v", err)
	}
	if err := evaluateOutputs([]string{"https://example.com/out.png"}); err != nil {
		t.Fatalf("remote URL rejected: %v", err)
	}
	if err := evaluateOutputs([]string{"data:image/png;base64,AAAA"}); err == nil {
		t.Fatal("undecodable payload must fail evaluation")
	}
}
