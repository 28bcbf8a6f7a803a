package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvh70/teamshots-sub010/internal/cache"
	"github.com/mvh70/teamshots-sub010/internal/config"
	"github.com/mvh70/teamshots-sub010/internal/credit"
	"github.com/mvh70/teamshots-sub010/internal/entity"
	"github.com/mvh70/teamshots-sub010/internal/model"
	"github.com/mvh70/teamshots-sub010/internal/queue"
	"github.com/mvh70/teamshots-sub010/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxSelfiesPerGeneration 限制单次生成的参考自拍数量，
// 过多的参考图会稀释主体身份信号。
const maxSelfiesPerGeneration = 6

// GenerationService 生成业务服务：提交时校验、预扣、入队，
// worker 回调时驱动工作流并结算积分。
type GenerationService struct {
	repo   model.Repository
	ledger *credit.Ledger
	queue  *queue.Queue
	engine *workflow.Engine
	cfg    config.Config

	// tierCache 缓存 teamID 到管理员套餐档位的映射，
	// 额度在提交时冻结，短暂的过期窗口不影响正确性。
	tierCache *cache.TTLCache[string, string]
}

// NewGenerationService 创建生成服务实例。
func NewGenerationService(repo model.Repository, ledger *credit.Ledger, q *queue.Queue, engine *workflow.Engine, tierCache *cache.TTLCache[string, string], cfg config.Config) (*GenerationService, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}
	if ledger == nil {
		return nil, errors.New("ledger is nil")
	}
	if q == nil {
		return nil, errors.New("queue is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if tierCache == nil {
		return nil, errors.New("tier cache is nil")
	}
	return &GenerationService{repo: repo, ledger: ledger, queue: q, engine: engine, tierCache: tierCache, cfg: cfg}, nil
}

// Submit 提交一次生成请求。客户端可归因的问题（自拍缺失、风格错误、
// 余额不足）都在这里同步报出，不会先入队再失败。
func (s *GenerationService) Submit(ctx context.Context, personID string, req *entity.SubmitGenerationRequest) (*entity.SubmitGenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if err := validateSelfieKeys(req.SelfieKeys); err != nil {
		return nil, err
	}
	if err := req.Style.Validate(); err != nil {
		return nil, err
	}

	version := req.WorkflowVersion
	if version == "" {
		version = entity.WorkflowV3
	}
	if !version.Valid() {
		return nil, fmt.Errorf("unknown workflow version %q", version)
	}

	person, err := s.repo.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("load person: %w", err)
	}
	if person == nil || !person.IsActive {
		return nil, errors.New("person not found or inactive")
	}

	var team *entity.DbTeam
	if person.IsTeamMember() {
		team, err = s.repo.GetTeam(ctx, person.TeamID)
		if err != nil {
			return nil, fmt.Errorf("load team: %w", err)
		}
	}

	// 再生成额度在创建时按套餐冻结，团队成员继承管理员的套餐档位。
	maxRegenerations, err := s.resolveRegenerations(ctx, person, team)
	if err != nil {
		return nil, err
	}

	stylePayload, err := entity.EncodeStyleSettings(req.Style)
	if err != nil {
		return nil, err
	}

	generationID := uuid.NewString()
	reservationID, err := s.ledger.Reserve(ctx, credit.ReserveParams{
		PersonID:       personID,
		GenerationID:   generationID,
		Amount:         s.cfg.CreditsPerGeneration,
		ExpectedSource: req.ExpectedSource,
	})
	if err != nil {
		return nil, err
	}

	reservation, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil || reservation == nil {
		s.compensate(ctx, reservationID, "")
		return nil, fmt.Errorf("load reservation: %w", err)
	}

	generation := &entity.DbGeneration{
		ID:                     generationID,
		PersonID:               personID,
		TeamID:                 person.TeamID,
		SelfieKeys:             entity.StringArray(req.SelfieKeys),
		StyleSettings:          stylePayload,
		CreditSource:           reservation.Scope,
		CreditsCharged:         s.cfg.CreditsPerGeneration,
		ReservationID:          reservationID,
		WorkflowVersion:        version,
		Status:                 entity.GenerationQueued,
		MaxRegenerations:       maxRegenerations,
		RemainingRegenerations: maxRegenerations,
	}
	if err := s.repo.CreateGeneration(ctx, generation); err != nil {
		s.compensate(ctx, reservationID, "")
		return nil, fmt.Errorf("create generation: %w", err)
	}

	job := &entity.DbJob{
		GenerationID:    generationID,
		PersonID:        personID,
		TeamID:          person.TeamID,
		UserID:          personID,
		SelfieKeys:      entity.StringArray(req.SelfieKeys),
		SelfieTypes:     req.SelfieTypes.Clone(),
		Demographics:    req.Demographics.Clone(),
		StylePayload:    stylePayload,
		WorkflowVersion: version,
		CreditSource:    reservation.Scope,
		Debug:           req.Debug || s.cfg.DebugAssets,
		Priority:        req.Priority,
	}
	if team != nil && req.Style.WantsBranding() {
		job.LogoKey = team.LogoKey
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.compensate(ctx, reservationID, generationID)
		return nil, fmt.Errorf("enqueue generation: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": generationID,
		"job_id":        job.ID,
		"person_id":     personID,
		"source":        reservation.Scope,
	}).Info("generation_submitted")

	return &entity.SubmitGenerationResponse{
		GenerationID: generationID,
		JobID:        job.ID,
		Status:       entity.GenerationQueued,
	}, nil
}

// Process 是队列 worker 的回调：驱动工作流并结算这次生成。
// 重复投递的任务在终态检查处直接短路。
func (s *GenerationService) Process(ctx context.Context, job *entity.DbJob) error {
	generation, err := s.repo.GetGeneration(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("load generation %s: %w", job.GenerationID, err)
	}
	if generation == nil {
		return fmt.Errorf("generation %s not found", job.GenerationID)
	}
	if generation.Status.Terminal() {
		logrus.WithField("generation_id", generation.ID).Warn("generation_already_terminal")
		return nil
	}

	if err := s.advanceStatus(ctx, generation, entity.GenerationProcessing, entity.GenerationUpdates{}); err != nil {
		return err
	}

	result, runErr := s.engine.Run(ctx, job, generation.RemainingRegenerations)
	if runErr != nil {
		s.settleFailure(ctx, generation, runErr)
		return runErr
	}

	remaining := generation.RemainingRegenerations - result.RegenerationsUsed
	if remaining < 0 {
		remaining = 0
	}
	outputKeys := entity.StringArray(result.OutputKeys)
	updates := entity.GenerationUpdates{
		RemainingRegenerations: &remaining,
		OutputKeys:             &outputKeys,
		ProviderUsed:           &result.Provider,
		CallCostUSD:            &result.CallCostUSD,
	}
	if err := s.advanceStatus(ctx, generation, entity.GenerationCompleted, updates); err != nil {
		return err
	}

	if err := s.ledger.Commit(ctx, generation.ReservationID); err != nil {
		// 提交失败由过期对账兜底，生成结果本身已持久化。
		logrus.WithError(err).WithField("generation_id", generation.ID).Error("credit_commit_failed")
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": generation.ID,
		"provider":      result.Provider,
		"outputs":       len(result.OutputKeys),
		"cost_usd":      result.CallCostUSD,
	}).Info("generation_completed")
	return nil
}

// GetGeneration 按所有权返回单条生成记录。
// 团队管理员可以查看本团队成员的记录。
func (s *GenerationService) GetGeneration(ctx context.Context, viewer *entity.DbPerson, id string) (*entity.DbGeneration, error) {
	generation, err := s.repo.GetGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	if generation == nil {
		return nil, nil
	}
	if !canViewGeneration(viewer, generation) {
		return nil, nil
	}
	return generation, nil
}

// ListGenerations 返回请求者可见的生成记录。
func (s *GenerationService) ListGenerations(ctx context.Context, viewer *entity.DbPerson, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if params == nil {
		params = &entity.GenerationQuery{}
	}
	if viewer != nil && isTeamAdmin(viewer) {
		params.TeamID = viewer.TeamID
		params.PersonID = ""
	} else if viewer != nil {
		params.PersonID = viewer.ID
		params.TeamID = ""
	}
	return s.repo.ListGenerations(ctx, params)
}

// Balance 返回请求者当前默认扣费来源及可用余额。
func (s *GenerationService) Balance(ctx context.Context, personID string) (*entity.CreditBalanceResponse, error) {
	resolved, err := s.ledger.DetermineCreditSource(ctx, personID)
	if err != nil {
		return nil, err
	}
	_, available, err := s.ledger.CanAfford(ctx, resolved.Scope, resolved.OwnerID, 0)
	if err != nil {
		return nil, err
	}
	return &entity.CreditBalanceResponse{
		Source:    resolved.Scope,
		Reason:    resolved.Reason,
		Available: available,
	}, nil
}

// GrantCredits 管理员向指定账户加款，返回实际入账额度。
// person-allocation 加款未填额度时取该成员所属团队配置的人均分配值。
func (s *GenerationService) GrantCredits(ctx context.Context, req *entity.GrantCreditsRequest) (int64, error) {
	if req == nil {
		return 0, errors.New("request is nil")
	}
	if !req.Scope.Valid() {
		return 0, fmt.Errorf("unknown credit scope %q", req.Scope)
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return 0, errors.New("owner_id is required")
	}
	if req.Amount < 0 {
		return 0, credit.ErrInvalidAmount
	}

	amount := req.Amount
	if amount == 0 {
		if req.Scope != entity.SourcePersonAllocation {
			return 0, credit.ErrInvalidAmount
		}
		resolved, err := s.perMemberAllocation(ctx, req.OwnerID)
		if err != nil {
			return 0, err
		}
		amount = resolved
	}

	if err := s.repo.GrantCredits(ctx, req.Scope, req.OwnerID, amount); err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"scope":    req.Scope,
		"owner_id": req.OwnerID,
		"amount":   amount,
	}).Info("credits_granted")
	return amount, nil
}

// perMemberAllocation 取成员所属团队配置的人均分配额度。
func (s *GenerationService) perMemberAllocation(ctx context.Context, personID string) (int64, error) {
	person, err := s.repo.GetPerson(ctx, personID)
	if err != nil {
		return 0, err
	}
	if person == nil || !person.IsTeamMember() {
		return 0, fmt.Errorf("person %s is not a team member", personID)
	}
	team, err := s.repo.GetTeam(ctx, person.TeamID)
	if err != nil {
		return 0, err
	}
	if team == nil || team.PerMemberAllocation <= 0 {
		return 0, credit.ErrInvalidAmount
	}
	return team.PerMemberAllocation, nil
}

// resolveRegenerations 解析再生成额度：团队成员用管理员的套餐档位。
func (s *GenerationService) resolveRegenerations(ctx context.Context, person *entity.DbPerson, team *entity.DbTeam) (int, error) {
	tier := person.PlanTier
	if team != nil && team.AdminPersonID != "" {
		if cached, ok := s.tierCache.Get(team.ID); ok {
			tier = cached
		} else {
			admin, err := s.repo.GetPerson(ctx, team.AdminPersonID)
			if err != nil {
				return 0, fmt.Errorf("load team admin: %w", err)
			}
			if admin != nil {
				tier = admin.PlanTier
			}
			s.tierCache.Set(team.ID, tier)
		}
	}
	return s.cfg.RegenerationsForTier(tier), nil
}

// settleFailure 将生成记录置为失败并回滚预扣积分。
func (s *GenerationService) settleFailure(ctx context.Context, generation *entity.DbGeneration, cause error) {
	message := cause.Error()
	updates := entity.GenerationUpdates{ErrorMessage: &message}
	if err := s.advanceStatus(ctx, generation, entity.GenerationFailed, updates); err != nil {
		logrus.WithError(err).WithField("generation_id", generation.ID).Error("generation_fail_update_failed")
	}
	if err := s.ledger.Rollback(ctx, generation.ReservationID); err != nil {
		logrus.WithError(err).WithField("generation_id", generation.ID).Error("credit_rollback_failed")
	}
}

// advanceStatus 单向推进生成状态，逆向推进视为编程错误直接拒绝。
func (s *GenerationService) advanceStatus(ctx context.Context, generation *entity.DbGeneration, next entity.GenerationStatus, updates entity.GenerationUpdates) error {
	if next.Rank() < generation.Status.Rank() {
		return fmt.Errorf("cannot move generation %s from %s back to %s", generation.ID, generation.Status, next)
	}
	updates.Status = &next
	if err := s.repo.UpdateGeneration(ctx, generation.ID, updates); err != nil {
		return fmt.Errorf("update generation %s: %w", generation.ID, err)
	}
	generation.Status = next
	return nil
}

// compensate 在提交链路失败时撤销已发生的副作用。
func (s *GenerationService) compensate(ctx context.Context, reservationID, generationID string) {
	if reservationID != "" {
		if err := s.ledger.Rollback(ctx, reservationID); err != nil {
			logrus.WithError(err).WithField("reservation_id", reservationID).Error("submit_compensation_rollback_failed")
		}
	}
	if generationID != "" {
		if err := s.repo.DeleteGeneration(ctx, generationID); err != nil {
			logrus.WithError(err).WithField("generation_id", generationID).Error("submit_compensation_delete_failed")
		}
	}
}

func validateSelfieKeys(keys []string) error {
	if len(keys) == 0 {
		return errors.New("at least one selfie is required")
	}
	if len(keys) > maxSelfiesPerGeneration {
		return fmt.Errorf("too many selfies: %d, max %d", len(keys), maxSelfiesPerGeneration)
	}
	for i, key := range keys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("selfie %d has an empty key", i+1)
		}
	}
	return nil
}

func canViewGeneration(viewer *entity.DbPerson, generation *entity.DbGeneration) bool {
	if viewer == nil {
		return false
	}
	if viewer.ID == generation.PersonID {
		return true
	}
	return isTeamAdmin(viewer) && viewer.TeamID == generation.TeamID && generation.TeamID != ""
}

func isTeamAdmin(p *entity.DbPerson) bool {
	return p != nil && p.Role == "admin" && p.TeamID != ""
}
