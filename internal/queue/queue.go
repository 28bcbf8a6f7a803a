package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// fairnessWindow 控制优先级让行节奏：每第 N 次认领忽略优先级，
// 按入队时间取最老的任务，防止排在后面的优先级档位饿死。
const fairnessWindow = 4

// Store 是队列需要的最小持久化接口，由 model.Repository 满足。
type Store interface {
	CreateJob(ctx context.Context, job *entity.DbJob) error
	ClaimNextJob(ctx context.Context, ignorePriority bool) (*entity.DbJob, error)
	UpdateJob(ctx context.Context, id string, updates entity.JobUpdates) error
}

// Queue 是建立在数据库任务表之上的队列门面。
// 入队即持久化，认领依赖仓储层的原子状态翻转，进程重启不丢任务。
type Queue struct {
	store  Store
	claims atomic.Uint64
}

func NewQueue(store Store) (*Queue, error) {
	if store == nil {
		return nil, errors.New("queue store is nil")
	}
	return &Queue{store: store}, nil
}

// Enqueue 持久化一个任务。ID 为空时生成，状态与入队时间由仓储层补齐。
func (q *Queue) Enqueue(ctx context.Context, job *entity.DbJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.GenerationID) == "" {
		return errors.New("job has no generation id")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"generation_id": job.GenerationID,
		"priority":      job.Priority,
	}).Info("job_enqueued")
	return nil
}

// Claim 认领下一个任务，队列为空时返回 (nil, nil)。
// 每第 fairnessWindow 次认领忽略优先级，只按入队时间取最老任务。
func (q *Queue) Claim(ctx context.Context) (*entity.DbJob, error) {
	n := q.claims.Add(1)
	ignorePriority := n%fairnessWindow == 0

	job, err := q.store.ClaimNextJob(ctx, ignorePriority)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil, nil
	}

	logrus.WithFields(logrus.Fields{
		"job_id":          job.ID,
		"generation_id":   job.GenerationID,
		"attempts":        job.Attempts,
		"ignore_priority": ignorePriority,
	}).Info("job_claimed")
	return job, nil
}

// Finish 标记任务终态并记录完成时间。
func (q *Queue) Finish(ctx context.Context, jobID string, status entity.JobStatus) error {
	now := time.Now()
	return q.store.UpdateJob(ctx, jobID, entity.JobUpdates{
		Status:     &status,
		FinishedAt: &now,
	})
}
