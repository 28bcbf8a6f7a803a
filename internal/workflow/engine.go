package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/mvh70/teamshots-sub010/internal/compositor"
	"github.com/mvh70/teamshots-sub010/internal/entity"
	"github.com/mvh70/teamshots-sub010/internal/llm"
	"github.com/mvh70/teamshots-sub010/internal/storage"
	"github.com/mvh70/teamshots-sub010/internal/utils"

	"github.com/sirupsen/logrus"
)

// Engine 按工作流版本驱动一次生成：合成自拍参考图、可选的品牌化背景、
// 主生成调用、结果评估与受限的再生成。引擎不直接写数据库，
// 状态持久化由调用方（worker）负责，保持单写者约束。
type Engine struct {
	store   storage.Storage
	gateway *llm.Gateway
	brander *compositor.Brander
}

// RunResult 是一次工作流执行的产物。
type RunResult struct {
	OutputKeys        []string
	Provider          string
	Thinking          string
	CallCostUSD       float64
	RegenerationsUsed int
}

func NewEngine(store storage.Storage, gateway *llm.Gateway, brander *compositor.Brander) (*Engine, error) {
	if store == nil {
		return nil, errors.New("storage is nil")
	}
	if gateway == nil {
		return nil, errors.New("gateway is nil")
	}
	return &Engine{store: store, gateway: gateway, brander: brander}, nil
}

// Run 执行一个任务。remainingRegenerations 是该生成记录当前剩余的再生成额度，
// 返回值中的 RegenerationsUsed 告知调用方实际消耗了多少。
func (e *Engine) Run(ctx context.Context, job *entity.DbJob, remainingRegenerations int) (*RunResult, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}

	version := job.WorkflowVersion
	if !version.Valid() {
		return nil, fmt.Errorf("unknown workflow version %q", version)
	}

	style, err := entity.DecodeStyleSettings(job.StylePayload)
	if err != nil {
		return nil, fmt.Errorf("decode style payload: %w", err)
	}

	steps := newStepLog(job.GenerationID, version)

	switch version {
	case entity.WorkflowV1:
		return e.runLegacy(ctx, job, style, steps)
	default:
		// v2 与 v3 共享同一条合成链，v2 只是记录得更细。
		return e.runComposite(ctx, job, style, remainingRegenerations, steps)
	}
}

// runLegacy 是 v1 的单步宽泛调用：人物、背景、品牌一次生成。
// 仅为旧记录保留。
func (e *Engine) runLegacy(ctx context.Context, job *entity.DbJob, style entity.StyleSettings, steps *stepLog) (*RunResult, error) {
	steps.record("generate_all_in_one")

	selfies, err := e.loadSelfies(ctx, job)
	if err != nil {
		return nil, err
	}

	refs := make([]llm.ReferenceImage, 0, len(selfies))
	for idx, buf := range selfies {
		refs = append(refs, llm.ReferenceImage{
			MimeType:    "image/jpeg",
			Data:        buf,
			Description: fmt.Sprintf("REFERENCE IMAGE - Subject Face (selfie %d)", idx+1),
		})
	}

	spec := BuildSceneSpec(style)
	instruction, err := spec.Instruction()
	if err != nil {
		return nil, err
	}

	result, err := e.gateway.Generate(ctx, llm.GenerateRequest{
		Prompt:      instruction,
		References:  refs,
		AspectRatio: spec.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}

	outputKeys, err := e.persistOutputs(ctx, job, result.Images)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		OutputKeys:  outputKeys,
		Provider:    result.Provider,
		Thinking:    result.Thinking,
		CallCostUSD: result.CallCostUSD,
	}, nil
}

// runComposite 是 v2/v3 的合成链：
// 参考图合成 → 可选品牌化背景 → 主生成 → 评估与再生成。
func (e *Engine) runComposite(ctx context.Context, job *entity.DbJob, style entity.StyleSettings, remaining int, steps *stepLog) (*RunResult, error) {
	steps.coarse("prepare_inputs")

	steps.detail("load_selfies")
	selfies, err := e.loadSelfies(ctx, job)
	if err != nil {
		return nil, err
	}

	steps.detail("build_composite")
	composite, err := compositor.BuildSelfieComposite(selfies)
	if err != nil {
		return nil, fmt.Errorf("build selfie composite: %w", err)
	}
	if job.Debug {
		e.saveDebugAsset(ctx, job, composite.Data, "composite", "png")
	}

	spec := BuildSceneSpec(style)

	steps.detail("prepare_background")
	background, err := e.prepareBackground(ctx, job, style, spec)
	if err != nil {
		return nil, err
	}

	steps.detail("build_scene_spec")
	instruction, err := spec.Instruction()
	if err != nil {
		return nil, err
	}

	refs := []llm.ReferenceImage{*composite}
	if background != nil {
		refs = append(refs, *background)
	}

	totalCost := 0.0
	regenerationsUsed := 0
	adjustedInstruction := instruction

	for {
		steps.record("generate")
		result, genErr := e.gateway.Generate(ctx, llm.GenerateRequest{
			Prompt:      adjustedInstruction,
			References:  refs,
			AspectRatio: spec.AspectRatio,
		})
		if result != nil {
			totalCost += result.CallCostUSD
		}

		steps.record("evaluate")
		evalErr := genErr
		if evalErr == nil {
			evalErr = evaluateOutputs(result.Images)
		}
		if evalErr != nil {
			if remaining <= 0 {
				return nil, fmt.Errorf("generation failed with no regenerations left: %w", evalErr)
			}
			remaining--
			regenerationsUsed++
			adjustedInstruction = instruction + "\n\nPREVIOUS ATTEMPT FAILED: produce at least one clear, fully rendered image."
			logrus.WithFields(logrus.Fields{
				"generation_id": job.GenerationID,
				"remaining":     remaining,
			}).Warn("workflow_regenerating")
			continue
		}

		if job.Debug && strings.TrimSpace(result.Thinking) != "" {
			e.saveDebugAsset(ctx, job, []byte(result.Thinking), "thinking", "txt")
		}

		steps.record("persist_outputs")
		outputKeys, persistErr := e.persistOutputs(ctx, job, result.Images)
		if persistErr != nil {
			return nil, persistErr
		}

		steps.detail("done")
		return &RunResult{
			OutputKeys:        outputKeys,
			Provider:          result.Provider,
			Thinking:          result.Thinking,
			CallCostUSD:       totalCost,
			RegenerationsUsed: regenerationsUsed,
		}, nil
	}
}

// prepareBackground 按风格分支准备背景参考图。品牌化失败回落到未品牌化，
// 不会让整次生成失败。
func (e *Engine) prepareBackground(ctx context.Context, job *entity.DbJob, style entity.StyleSettings, spec SceneSpec) (*llm.ReferenceImage, error) {
	switch style.Package {
	case entity.StylePackageCustom:
		raw, err := e.store.Load(ctx, style.Custom.BackgroundKey)
		if err != nil {
			return nil, fmt.Errorf("load background %s: %w", style.Custom.BackgroundKey, err)
		}

		if style.WantsBranding() && e.brander != nil {
			if logo := e.loadLogo(ctx, job); logo != nil {
				branded, brandErr := e.brander.BrandCustomBackground(ctx, raw, logo)
				if brandErr == nil && branded != nil {
					if job.Debug {
						e.saveDebugAsset(ctx, job, branded, "branded-background", "png")
					}
					raw = branded
				}
			}
		}

		return &llm.ReferenceImage{
			MimeType:    "image/png",
			Data:        raw,
			Description: "BACKGROUND REFERENCE - place the subject in front of this background",
		}, nil

	case entity.StylePackageEnvironmental:
		if !style.WantsBranding() || e.brander == nil {
			return nil, nil
		}
		logo := e.loadLogo(ctx, job)
		if logo == nil {
			return nil, nil
		}

		instruction, err := spec.EnvironmentInstruction()
		if err != nil {
			return nil, err
		}
		scene, brandErr := e.brander.GenerateBrandedEnvironmentScene(ctx, instruction, logo)
		if brandErr != nil || scene == nil {
			// 品牌化场景失败时让主生成调用自己构造环境。
			return nil, nil
		}
		if job.Debug {
			e.saveDebugAsset(ctx, job, scene, "branded-scene", "png")
		}
		return &llm.ReferenceImage{
			MimeType:    "image/png",
			Data:        scene,
			Description: "BACKGROUND REFERENCE - branded environment scene",
		}, nil

	default:
		return nil, nil
	}
}

func (e *Engine) loadSelfies(ctx context.Context, job *entity.DbJob) ([][]byte, error) {
	if len(job.SelfieKeys) == 0 {
		return nil, errors.New("job has no selfie keys")
	}

	selfies := make([][]byte, 0, len(job.SelfieKeys))
	for _, key := range job.SelfieKeys {
		data, err := e.store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load selfie %s: %w", key, err)
		}
		selfies = append(selfies, data)
	}
	return selfies, nil
}

func (e *Engine) loadLogo(ctx context.Context, job *entity.DbJob) []byte {
	key := strings.TrimSpace(job.LogoKey)
	if key == "" {
		return nil
	}
	data, err := e.store.Load(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("logo_key", key).Warn("workflow_logo_load_failed")
		return nil
	}
	return data
}

// persistOutputs 将供应商产物写入对象存储并返回键列表。
func (e *Engine) persistOutputs(ctx context.Context, job *entity.DbJob, images []string) ([]string, error) {
	var keys []string
	for idx, img := range images {
		data, ext, err := materializeImage(ctx, img)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"generation_id": job.GenerationID,
				"index":         idx,
			}).Warn("workflow_output_materialize_failed")
			continue
		}

		key, err := e.store.Save(ctx, data, storage.SaveOptions{
			Category:  storage.CategoryOutput,
			Extension: ext,
			BaseName:  fmt.Sprintf("%s-%d", job.GenerationID, idx+1),
		})
		if err != nil {
			logrus.WithError(err).WithField("generation_id", job.GenerationID).Warn("workflow_output_save_failed")
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, errors.New("no outputs could be persisted")
	}
	return keys, nil
}

func (e *Engine) saveDebugAsset(ctx context.Context, job *entity.DbJob, data []byte, name, ext string) {
	if len(data) == 0 {
		return
	}
	key, err := e.store.Save(ctx, data, storage.SaveOptions{
		Category:  storage.CategoryDebug,
		Extension: ext,
		BaseName:  fmt.Sprintf("%s-%s", job.GenerationID, name),
	})
	if err != nil {
		logrus.WithError(err).WithField("generation_id", job.GenerationID).Warn("workflow_debug_save_failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"generation_id": job.GenerationID,
		"debug_key":     key,
	}).Debug("workflow_debug_asset_saved")
}

// evaluateOutputs 检查供应商产物是否可用：没有图片或关键尺寸缺失都是
// 可恢复失败，触发再生成而不是直接终结任务。
func evaluateOutputs(images []string) error {
	if len(images) == 0 {
		return errors.New("no images in result")
	}

	for idx, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			return fmt.Errorf("image %d is empty", idx+1)
		}
		// 远端 URL 在落盘时才会取回，这里只能检查内联产物。
		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			continue
		}

		_, payload := utils.SplitDataURL(utils.EnsureDataURL(img))
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return fmt.Errorf("image %d: decode base64: %w", idx+1, err)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("image %d: decode config (%d bytes): %w", idx+1, len(raw), err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return fmt.Errorf("image %d: missing output dimensions", idx+1)
		}
	}
	return nil
}

// materializeImage 把数据 URL 解码、或把远端 URL 下载为字节。
func materializeImage(ctx context.Context, img string) ([]byte, string, error) {
	img = strings.TrimSpace(img)
	if img == "" {
		return nil, "", errors.New("empty image payload")
	}

	if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, img, nil)
		if err != nil {
			return nil, "", err
		}
		client := &http.Client{Timeout: 60 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("download output http %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}
		ext := utils.ExtensionFromMime(resp.Header.Get("Content-Type"))
		if ext == "" {
			ext = utils.ExtensionFromMime(http.DetectContentType(data))
		}
		if ext == "" {
			ext = "png"
		}
		return data, ext, nil
	}

	return utils.DecodeMediaPayload(img)
}

// stepLog 按版本粒度记录工作流步骤。v2 记录每个细分步骤，
// v3 只记录粗粒度阶段，避免日志噪音。
type stepLog struct {
	generationID string
	version      entity.WorkflowVersion
	index        int
}

func newStepLog(generationID string, version entity.WorkflowVersion) *stepLog {
	return &stepLog{generationID: generationID, version: version}
}

// record 在所有版本下都记录。
func (s *stepLog) record(step string) {
	s.emit(step)
}

// detail 只在 v2 下记录。
func (s *stepLog) detail(step string) {
	if s.version != entity.WorkflowV2 {
		return
	}
	s.emit(step)
}

// coarse 只在 v3 下记录。
func (s *stepLog) coarse(step string) {
	if s.version != entity.WorkflowV3 {
		return
	}
	s.emit(step)
}

func (s *stepLog) emit(step string) {
	s.index++
	logrus.WithFields(logrus.Fields{
		"generation_id": s.generationID,
		"version":       s.version,
		"step_index":    s.index,
		"step":          step,
	}).Info("workflow_step")
}
