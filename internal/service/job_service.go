package service

import (
	"context"
	"fmt"
	"io"

	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
	"github.com/stemforge/api/internal/worker"
)

// JobService handles deconstruction job submission and artifact access.
type JobService struct {
	jobStore     *store.JobStore
	dispatcher   worker.Dispatcher
	defaultModel string
}

func NewJobService(jobStore *store.JobStore, dispatcher worker.Dispatcher, defaultModel string) *JobService {
	return &JobService{
		jobStore:     jobStore,
		dispatcher:   dispatcher,
		defaultModel: defaultModel,
	}
}

// Submit stores the upload under a job namespace, records the initial
// snapshot and queues the pipeline run. Submitting an existing job id
// overwrites its input and retries it in place.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest, audio io.Reader) (*model.SubmitJobResponse, error) {
	jobID, err := s.jobStore.CreateNamespace(req.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.jobStore.StoreInput(jobID, audio); err != nil {
		return nil, err
	}
	if err := s.jobStore.WriteStatus(jobID, model.StateInitialized, 0, ""); err != nil {
		return nil, err
	}

	separationModel := req.SeparationModel
	if separationModel == "" {
		separationModel = s.defaultModel
	}
	if err := s.dispatcher.Dispatch(ctx, &worker.PipelineJob{JobID: jobID, SeparationModel: separationModel}); err != nil {
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	return &model.SubmitJobResponse{
		JobID:     jobID,
		StatusURL: fmt.Sprintf("/api/jobs/%s/status", jobID),
	}, nil
}

// GetStatus returns the current snapshot for a job.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.Snapshot, error) {
	return s.jobStore.ReadStatus(jobID)
}

// MidiFiles lists the transcribed MIDI files of a job. Unknown jobs yield
// an empty list, matching the scan semantics of the store.
func (s *JobService) MidiFiles(ctx context.Context, jobID string) *model.MidiListResponse {
	return &model.MidiListResponse{Files: s.jobStore.ListArtifacts(jobID, model.ArtifactMidi)}
}

// Analysis returns the persisted advice record of a job.
func (s *JobService) Analysis(ctx context.Context, jobID string) (string, error) {
	return s.jobStore.ReadAnalysis(jobID)
}
