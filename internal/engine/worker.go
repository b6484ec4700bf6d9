package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pagesmith/internal/core"
	"pagesmith/internal/eventlog"
	"pagesmith/internal/llm"
	"pagesmith/internal/notify"
	"pagesmith/internal/store"
)

const (
	generateAttempts = 3
	pushAttempts     = 4
	defaultPoll      = 2 * time.Second
)

// Publisher pushes a manifest to the hosting platform.
type Publisher interface {
	CreateRepoAndPush(ctx context.Context, manifest core.Manifest, repoHint string) (core.Deployment, error)
}

// Notifier reports a deployment to the evaluation webhook.
type Notifier interface {
	Post(ctx context.Context, url string, payload notify.Payload) bool
}

// Pool claims queued tasks from the store and runs the processing
// pipeline: generate, merge attachments, push, notify. A task failure is
// recorded, never propagated; the pool itself only stops with its context.
type Pool struct {
	store     *store.SQLiteStore
	generator llm.Generator
	publisher Publisher
	notifier  Notifier
	taskLog   *eventlog.TaskLog
	log       *zap.Logger

	workers      int
	poll         time.Duration
	retryInitial time.Duration
	wake         chan struct{}
}

func NewPool(st *store.SQLiteStore, gen llm.Generator, pub Publisher, not Notifier, taskLog *eventlog.TaskLog, workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		store:        st,
		generator:    gen,
		publisher:    pub,
		notifier:     not,
		taskLog:      taskLog,
		log:          log,
		workers:      workers,
		poll:         defaultPoll,
		retryInitial: time.Second,
		wake:         make(chan struct{}, 1),
	}
}

// Wake nudges an idle worker after a new task is enqueued.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		group.Go(func() error {
			p.runWorker(ctx, workerID)
			return nil
		})
	}
	return group.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	log := p.log.With(zap.String("worker", workerID))
	for {
		task, err := p.store.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("claim next task", zap.Error(err))
		}
		if task != nil {
			p.process(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-time.After(p.poll):
		}
	}
}

func (p *Pool) process(ctx context.Context, task *core.TaskRecord) {
	log := p.log.With(zap.Int64("task_id", task.ID), zap.String("task", task.Task))
	p.emit(eventlog.Event{TaskID: task.ID, Status: core.TaskStatusProcessing})

	if task.Brief == "" {
		p.fail(ctx, task, fmt.Errorf("task brief missing"))
		return
	}

	req := core.GenerationRequest{
		Brief:       task.Brief,
		Checks:      task.Checks(),
		Attachments: task.Attachments(),
		Nonce:       task.Nonce,
		Round:       task.Round,
	}

	log.Info("stage 1: generate")
	p.emit(eventlog.Event{TaskID: task.ID, Stage: "generate", Status: "start"})
	manifest, err := p.stageGenerate(ctx, req)
	if err != nil {
		p.emit(eventlog.Event{TaskID: task.ID, Stage: "generate", Status: "failed", Message: err.Error()})
		p.fail(ctx, task, err)
		return
	}
	if err := p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusGenerated, core.StatusExtra{}); err != nil {
		log.Warn("update status", zap.Error(err))
	}
	p.emit(eventlog.Event{TaskID: task.ID, Stage: "generate", Status: "ok"})

	p.mergeAttachments(ctx, task, &manifest)

	log.Info("stage 2: push")
	p.emit(eventlog.Event{TaskID: task.ID, Stage: "push", Status: "start"})
	deployment, err := p.stagePush(ctx, manifest, task.RepoHint())
	if err != nil {
		p.emit(eventlog.Event{TaskID: task.ID, Stage: "push", Status: "failed", Message: err.Error()})
		p.fail(ctx, task, err)
		return
	}
	extra := core.StatusExtra{
		RepoName:  deployment.RepoName,
		CommitSHA: deployment.CommitSHA,
		PagesURL:  deployment.PagesURL,
	}
	if err := p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusPushed, extra); err != nil {
		log.Warn("update status", zap.Error(err))
	}
	if err := p.store.RecordRepo(ctx, core.RepoRecord{
		Task:     task.Task,
		Email:    task.Email,
		RepoName: deployment.RepoName,
	}); err != nil {
		log.Warn("record repo", zap.Error(err))
	}
	p.emit(eventlog.Event{TaskID: task.ID, Stage: "push", Status: "ok", Payload: map[string]string{
		"repo_url":   deployment.RepoURL,
		"commit_sha": deployment.CommitSHA,
		"pages_url":  deployment.PagesURL,
	}})

	log.Info("stage 3: notify")
	if task.EvaluationURL == "" {
		log.Warn("no evaluation_url provided, skipping notify stage")
		p.emit(eventlog.Event{TaskID: task.ID, Stage: "notify", Status: "skipped"})
	} else {
		p.emit(eventlog.Event{TaskID: task.ID, Stage: "notify", Status: "start"})
		payload := notify.Payload{
			Email:     task.Email,
			Task:      task.Task,
			Round:     task.Round,
			Nonce:     task.Nonce,
			RepoURL:   deployment.RepoURL,
			CommitSHA: deployment.CommitSHA,
			PagesURL:  deployment.PagesURL,
		}
		if p.notifier.Post(ctx, task.EvaluationURL, payload) {
			_ = p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusNotified, core.StatusExtra{})
			p.emit(eventlog.Event{TaskID: task.ID, Stage: "notify", Status: "ok"})
		} else {
			_ = p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusNotifyFailed, core.StatusExtra{})
			p.emit(eventlog.Event{TaskID: task.ID, Stage: "notify", Status: "failed"})
		}
	}

	if err := p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusDone, extra); err != nil {
		log.Warn("update status", zap.Error(err))
	}
	p.emit(eventlog.Event{TaskID: task.ID, Status: core.TaskStatusDone})
	log.Info("task completed", zap.String("pages_url", deployment.PagesURL))
}

func (p *Pool) stageGenerate(ctx context.Context, req core.GenerationRequest) (core.Manifest, error) {
	var manifest core.Manifest
	operation := func() error {
		generated, err := p.generator.Generate(ctx, req)
		if err != nil {
			p.log.Warn("generate stage attempt failed", zap.Error(err))
			return err
		}
		if err := llm.ValidateManifest(generated); err != nil {
			p.log.Warn("generated manifest failed validation", zap.Error(err))
			return err
		}
		manifest = generated
		return nil
	}
	if err := backoff.Retry(operation, p.stagePolicy(ctx, generateAttempts)); err != nil {
		return core.Manifest{}, fmt.Errorf("generate stage: %w", err)
	}
	return manifest, nil
}

func (p *Pool) stagePush(ctx context.Context, manifest core.Manifest, repoHint string) (core.Deployment, error) {
	var deployment core.Deployment
	operation := func() error {
		pushed, err := p.publisher.CreateRepoAndPush(ctx, manifest, repoHint)
		if err != nil {
			p.log.Warn("push stage attempt failed", zap.Error(err))
			return err
		}
		if pushed.RepoURL == "" || pushed.CommitSHA == "" || pushed.PagesURL == "" {
			return fmt.Errorf("push returned incomplete deployment")
		}
		deployment = pushed
		return nil
	}
	if err := backoff.Retry(operation, p.stagePolicy(ctx, pushAttempts)); err != nil {
		return core.Deployment{}, fmt.Errorf("push stage: %w", err)
	}
	return deployment, nil
}

func (p *Pool) fail(ctx context.Context, task *core.TaskRecord, cause error) {
	p.log.Error("task processing failed", zap.Int64("task_id", task.ID), zap.Error(cause))
	if err := p.store.UpdateTaskStatus(ctx, task.ID, core.TaskStatusFailed, core.StatusExtra{Error: cause.Error()}); err != nil {
		p.log.Warn("record task failure", zap.Error(err))
	}
	p.emit(eventlog.Event{TaskID: task.ID, Status: core.TaskStatusFailed, Message: cause.Error()})
}

func (p *Pool) emit(event eventlog.Event) {
	if p.taskLog == nil {
		return
	}
	if err := p.taskLog.Emit(event); err != nil {
		p.log.Debug("task log write failed", zap.Error(err))
	}
}

func (p *Pool) stagePolicy(ctx context.Context, attempts uint64) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryInitial
	policy.MaxInterval = 8 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx)
}
