package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/stemforge/api/internal/model"
)

// ErrNotFound is returned when a job namespace holds no status snapshot or
// no persisted analysis record.
var ErrNotFound = errors.New("job not found")

const (
	inputFileName  = "input.wav"
	statusFileName = "status.json"
	adviceFileName = "advice.txt"
	lockFileName   = ".status.lock"
)

// JobStore persists one status snapshot and the artifact files of each job
// under a private namespace directory:
//
//	<base>/<job_id>/
//	    input.wav
//	    status.json
//	    stems/
//	    midi/
//	    analysis/
//	    Project_<id>.RPP
//
// Snapshot writes are atomic (write-to-temp + rename) so pollers never
// observe a torn document. All read-modify-write cycles are serialized per
// job by an in-process mutex plus a file lock, which also covers an API
// process and a queue worker process sharing the same jobs volume.
type JobStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewJobStore creates a store rooted at baseDir, creating it if needed.
func NewJobStore(baseDir string) (*JobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &JobStore{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// CreateNamespace creates the job directory and its canonical sub-areas.
// A missing jobID is replaced with a generated UUID. Safe to call again for
// an existing job.
func (s *JobStore) CreateNamespace(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = uuid.New().String()
	}
	for _, dir := range []string{
		s.JobDir(jobID),
		s.StemsDir(jobID),
		s.MidiDir(jobID),
		s.AnalysisDir(jobID),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create namespace for job %s: %w", jobID, err)
		}
	}
	return jobID, nil
}

// StoreInput copies the uploaded audio into the namespace under the fixed
// canonical name, overwriting any prior input.
func (s *JobStore) StoreInput(jobID string, r io.Reader) error {
	f, err := os.Create(s.InputPath(jobID))
	if err != nil {
		return fmt.Errorf("store input for job %s: %w", jobID, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("store input for job %s: %w", jobID, err)
	}
	return nil
}

// WriteStatus persists a full snapshot for the job. The stems, midi and
// analysis artifact lists are rebuilt by scanning the namespace; the
// validation report and the project artifact list are carried forward from
// the previous snapshot so a later full write cannot drop a merged field.
func (s *JobStore) WriteStatus(jobID string, state model.JobState, progress int, message string) error {
	return s.writeStatus(jobID, state, progress, message, nil)
}

// WriteFailure persists a terminal failed snapshot carrying the error text.
func (s *JobStore) WriteFailure(jobID, message, errText string) error {
	return s.writeStatus(jobID, model.StateFailed, 0, message, &errText)
}

func (s *JobStore) writeStatus(jobID string, state model.JobState, progress int, message string, errText *string) error {
	return s.withJobLock(jobID, func() error {
		snap := &model.Snapshot{
			JobID:     jobID,
			State:     state,
			Progress:  progress,
			Message:   message,
			Error:     errText,
			UpdatedAt: time.Now().UTC(),
			Artifacts: s.scanArtifacts(jobID),
		}
		if prev, err := s.readSnapshot(jobID); err == nil {
			snap.ValidationReport = prev.ValidationReport
			snap.Artifacts.Project = prev.Artifacts.Project
		}
		return s.persistSnapshot(jobID, snap)
	})
}

// ReadStatus returns the current snapshot, or ErrNotFound when the job has
// never been initialized.
func (s *JobStore) ReadStatus(jobID string) (*model.Snapshot, error) {
	return s.readSnapshot(jobID)
}

// ApplyUpdate runs a structured partial update against the current snapshot
// under the per-job lock: read, mutate, atomic write. Used to register the
// validation report and the project artifact without racing a concurrent
// full status write.
func (s *JobStore) ApplyUpdate(jobID string, mutate func(*model.Snapshot)) error {
	return s.withJobLock(jobID, func() error {
		snap, err := s.readSnapshot(jobID)
		if err != nil {
			return err
		}
		mutate(snap)
		snap.UpdatedAt = time.Now().UTC()
		return s.persistSnapshot(jobID, snap)
	})
}

// ListArtifacts lists a category's file names by scanning the namespace.
// The scan is not synchronized against pipeline writes; callers accept
// eventually consistent results. Unknown jobs and missing sub-areas yield
// an empty list.
func (s *JobStore) ListArtifacts(jobID string, category model.ArtifactCategory) []string {
	switch category {
	case model.ArtifactStems:
		return scanDir(s.StemsDir(jobID), nil)
	case model.ArtifactMidi:
		return scanDir(s.MidiDir(jobID), nil)
	case model.ArtifactAnalysis:
		return scanDir(s.AnalysisDir(jobID), nil)
	case model.ArtifactProject:
		return scanDir(s.JobDir(jobID), func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), ".rpp")
		})
	}
	return nil
}

// SaveAnalysis overwrites the persisted advice record for the job.
func (s *JobStore) SaveAnalysis(jobID, advice string) error {
	if err := os.MkdirAll(s.AnalysisDir(jobID), 0o755); err != nil {
		return fmt.Errorf("save analysis for job %s: %w", jobID, err)
	}
	if err := os.WriteFile(s.advicePath(jobID), []byte(advice), 0o644); err != nil {
		return fmt.Errorf("save analysis for job %s: %w", jobID, err)
	}
	return nil
}

// AppendAnalysis appends a follow-up block to the persisted advice record,
// separated by a fixed delimiter so follow-ups stay distinguishable from
// the initial save.
func (s *JobStore) AppendAnalysis(jobID, text string) error {
	if err := os.MkdirAll(s.AnalysisDir(jobID), 0o755); err != nil {
		return fmt.Errorf("append analysis for job %s: %w", jobID, err)
	}
	f, err := os.OpenFile(s.advicePath(jobID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append analysis for job %s: %w", jobID, err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n\n--- Follow-up ---\n" + text + "\n"); err != nil {
		return fmt.Errorf("append analysis for job %s: %w", jobID, err)
	}
	return nil
}

// ReadAnalysis returns the persisted advice record, or ErrNotFound when no
// analysis has been saved for the job.
func (s *JobStore) ReadAnalysis(jobID string) (string, error) {
	data, err := os.ReadFile(s.advicePath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("analysis for job %s: %w", jobID, ErrNotFound)
		}
		return "", fmt.Errorf("read analysis for job %s: %w", jobID, err)
	}
	return string(data), nil
}

// ScratchPath returns a unique path in the shared scratch area. Stateless
// operations use it for intermediate files the engine sidecar must be able
// to see; the jobs volume is the only filesystem both processes share.
func (s *JobStore) ScratchPath(suffix string) (string, error) {
	dir := filepath.Join(s.baseDir, ".tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return filepath.Join(dir, uuid.New().String()+suffix), nil
}

// Namespace path helpers. The pipeline works directly on these paths.

func (s *JobStore) JobDir(jobID string) string      { return filepath.Join(s.baseDir, jobID) }
func (s *JobStore) StemsDir(jobID string) string    { return filepath.Join(s.baseDir, jobID, "stems") }
func (s *JobStore) MidiDir(jobID string) string     { return filepath.Join(s.baseDir, jobID, "midi") }
func (s *JobStore) AnalysisDir(jobID string) string { return filepath.Join(s.baseDir, jobID, "analysis") }
func (s *JobStore) InputPath(jobID string) string {
	return filepath.Join(s.baseDir, jobID, inputFileName)
}

func (s *JobStore) statusPath(jobID string) string {
	return filepath.Join(s.baseDir, jobID, statusFileName)
}

func (s *JobStore) advicePath(jobID string) string {
	return filepath.Join(s.AnalysisDir(jobID), adviceFileName)
}

func (s *JobStore) readSnapshot(jobID string) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.statusPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("status for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("read status for job %s: %w", jobID, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode status for job %s: %w", jobID, err)
	}
	return &snap, nil
}

func (s *JobStore) persistSnapshot(jobID string, snap *model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("encode status for job %s: %w", jobID, err)
	}
	return writeFileAtomic(s.statusPath(jobID), data)
}

func (s *JobStore) scanArtifacts(jobID string) model.Artifacts {
	return model.Artifacts{
		Stems:    scanDir(s.StemsDir(jobID), nil),
		Midi:     scanDir(s.MidiDir(jobID), nil),
		Analysis: scanDir(s.AnalysisDir(jobID), nil),
	}
}

// withJobLock serializes snapshot read-modify-write cycles for one job. The
// in-process mutex orders goroutines; the flock covers separate processes
// sharing the jobs volume.
func (s *JobStore) withJobLock(jobID string, fn func() error) error {
	mu := s.jobMutex(jobID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(s.JobDir(jobID), 0o755); err != nil {
		return fmt.Errorf("job dir for %s: %w", jobID, err)
	}
	fl := flock.New(filepath.Join(s.JobDir(jobID), lockFileName))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock job %s: %w", jobID, err)
	}
	defer fl.Unlock()

	return fn()
}

func (s *JobStore) jobMutex(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[jobID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[jobID] = mu
	}
	return mu
}

func scanDir(dir string, keep func(name string) bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp status file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}
