package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// PipelineWorker processes queued pipeline tasks
type PipelineWorker struct {
	runner Runner
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(runner Runner) *PipelineWorker {
	return &PipelineWorker{runner: runner}
}

// ProcessTask handles pipeline task processing
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting pipeline job: %s", jobID)

	var payload PipelineJob
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal pipeline payload: %w", err)
	}

	return w.runner.Run(ctx, jobID, payload.SeparationModel)
}
