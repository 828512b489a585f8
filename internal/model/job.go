package model

// SubmitJobRequest carries the non-file multipart fields of a job
// submission. The audio itself travels alongside as the "file" part.
type SubmitJobRequest struct {
	JobID           string `json:"jobId" validate:"omitempty,max=64"`
	SeparationModel string `json:"separationModel" validate:"omitempty,oneof=demucs umx"`
}

// SubmitJobResponse points the caller at the polling location for the job.
type SubmitJobResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// MidiListResponse lists the transcribed MIDI file names of a job.
type MidiListResponse struct {
	Files []string `json:"files"`
}
