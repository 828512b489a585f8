package model

import "time"

// JobState is the lifecycle state recorded in a job's status snapshot.
type JobState string

const (
	StateInitialized     JobState = "initialized"
	StateProcessingStems JobState = "processing_stems"
	StateProcessingMidi  JobState = "processing_midi"
	StateSuccess         JobState = "success"
	StateFailed          JobState = "failed"
)

// Terminal reports whether no further pipeline writes can follow the state.
func (s JobState) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// ArtifactCategory groups the files a job produces.
type ArtifactCategory string

const (
	ArtifactStems    ArtifactCategory = "stems"
	ArtifactMidi     ArtifactCategory = "midi"
	ArtifactAnalysis ArtifactCategory = "analysis"
	ArtifactProject  ArtifactCategory = "project"
)

// Artifacts lists the output files of a job grouped by category. The stems,
// midi and analysis lists are rebuilt by scanning the job namespace on every
// status write; the project list is registered explicitly by the pipeline and
// carried forward across writes.
type Artifacts struct {
	Stems    []string `json:"stems"`
	Midi     []string `json:"midi"`
	Analysis []string `json:"analysis"`
	Project  []string `json:"project,omitempty"`
}

// Snapshot is the single authoritative status document for a job. The JSON
// layout matches the on-disk status.json served to pollers verbatim.
type Snapshot struct {
	JobID            string    `json:"job_id"`
	State            JobState  `json:"state"`
	Progress         int       `json:"progress"`
	Message          string    `json:"message"`
	Error            *string   `json:"error"`
	UpdatedAt        time.Time `json:"updated_at"`
	Artifacts        Artifacts `json:"artifacts"`
	ValidationReport string    `json:"validation_report,omitempty"`
}
