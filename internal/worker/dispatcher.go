package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypePipeline = "pipeline:process"

// PipelineJob is one queued pipeline execution.
type PipelineJob struct {
	JobID           string `json:"jobId"`
	SeparationModel string `json:"separationModel"`
}

// Runner executes one job through the pipeline.
type Runner interface {
	Run(ctx context.Context, jobID, separationModel string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, jobID, separationModel string) error

func (f RunnerFunc) Run(ctx context.Context, jobID, separationModel string) error {
	return f(ctx, jobID, separationModel)
}

// Dispatcher hands a job to the concurrency-bounded executor. Dispatch
// never blocks on a busy slot: jobs wait in arrival order, at most the
// configured number process at once, and there is no priority, timeout or
// cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *PipelineJob) error
}

// AsynqDispatcher queues pipeline tasks on the shared Redis queue. The
// concurrency bound is enforced by the asynq server config.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// Dispatch enqueues the job on the pipeline queue. Failed jobs are never
// retried automatically; resubmitting the same job id is the retry path.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, job *PipelineJob) error {
	payloadBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	taskPayload := map[string]interface{}{
		"jobId":   job.JobID,
		"payload": payloadBytes,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypePipeline, data)
	_, err = d.client.Enqueue(task,
		asynq.Queue("pipeline"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
