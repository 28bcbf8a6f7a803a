package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/sirupsen/logrus"
)

// Handler 处理一个已认领的任务。返回错误时任务被标记为 failed，
// 业务层的补偿（积分回滚、记录状态）由 Handler 自己负责。
type Handler func(ctx context.Context, job *entity.DbJob) error

// Pool 是固定大小的 worker 池，空轮询时按 pollInterval 退避。
type Pool struct {
	queue        *Queue
	handler      Handler
	workerCount  int
	pollInterval time.Duration

	wg sync.WaitGroup
}

func NewPool(queue *Queue, handler Handler, workerCount int) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue is nil")
	}
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		queue:        queue,
		handler:      handler,
		workerCount:  workerCount,
		pollInterval: 2 * time.Second,
	}, nil
}

// Start 启动所有 worker。ctx 取消后各 worker 完成当前任务即退出。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	logrus.WithField("worker_count", p.workerCount).Info("worker_pool_started")
}

// Wait 阻塞到所有 worker 退出。
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := logrus.WithField("worker", id)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker_stopped")
			return
		default:
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			log.WithError(err).Error("worker_claim_failed")
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, log, job)
	}
}

func (p *Pool) process(ctx context.Context, log *logrus.Entry, job *entity.DbJob) {
	jobLog := log.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"generation_id": job.GenerationID,
	})

	start := time.Now()
	err := p.handler(ctx, job)

	status := entity.JobDone
	if err != nil {
		status = entity.JobFailed
		jobLog.WithError(err).WithField("duration", time.Since(start).String()).Error("job_failed")
	} else {
		jobLog.WithField("duration", time.Since(start).String()).Info("job_done")
	}

	// 池关停时 ctx 已取消，终态写入用独立的短超时上下文，
	// 否则在途任务的收尾更新恰好在最需要时丢失。
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if finishErr := p.queue.Finish(finishCtx, job.ID, status); finishErr != nil {
		jobLog.WithError(finishErr).Error("job_finish_update_failed")
	}
}

func (p *Pool) sleep(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
