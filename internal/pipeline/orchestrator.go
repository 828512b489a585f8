package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

// ErrSeparationFailed marks exhaustion of every separation strategy.
var ErrSeparationFailed = errors.New("all separation strategies failed")

// Separator runs a separation model over an input file; the model writes
// its native output layout under outputDir.
type Separator interface {
	Separate(ctx context.Context, model, inputPath, outputDir string) error
}

// StemSplitter splits a coarse stem into the named part files.
type StemSplitter interface {
	SplitStem(ctx context.Context, inputPath, outputDir string, parts []string) error
}

// Transcriber extracts MIDI from stems and summarizes the result.
type Transcriber interface {
	Transcribe(ctx context.Context, stemPath, midiPath string) error
	SummarizeMidi(ctx context.Context, midiPath string) (string, error)
}

// ProjectWriter emits a DAW project file referencing a job's artifacts.
type ProjectWriter interface {
	WriteProject(ctx context.Context, jobID string, stems, midi []string, outputPath string) error
}

// Engine bundles the DSP capabilities the pipeline consumes.
type Engine interface {
	Separator
	StemSplitter
	Transcriber
	ProjectWriter
}

// ReportValidator reviews concatenated MIDI summaries and returns a
// verification report.
type ReportValidator interface {
	ValidateMidiSummaries(ctx context.Context, summaries string) (string, error)
}

// Notifier receives every persisted snapshot for live progress push.
type Notifier interface {
	NotifyProgress(jobID string, snap *model.Snapshot)
}

// ItemOutcome records one transcription attempt. A failed item never fails
// the stage; callers inspect the ordered outcome list instead.
type ItemOutcome struct {
	Stem        string
	Midi        string
	Transcribed bool
	Summary     string
	Err         error
}

// coarseSplits is the fixed refinement table: each present coarse stem is
// split into its parts and then removed. bass.wav stays coarse.
var coarseSplits = []struct {
	Stem  string
	Parts []string
}{
	{"vocals.wav", []string{"vocals_lead.wav", "vocals_backing.wav"}},
	{"drums.wav", []string{"kick.wav", "snare.wav", "hats.wav"}},
	{"other.wav", []string{"guitars.wav", "keys_synth.wav", "harmony.wav"}},
}

// midiTargets is the fixed ordered stem-to-MIDI transcription plan.
var midiTargets = []struct {
	Stem string
	Midi string
}{
	{"vocals_lead.wav", "melody_lead.mid"},
	{"bass.wav", "bass.mid"},
	{"guitars.wav", "guitars.mid"},
	{"keys_synth.wav", "keys_synth.mid"},
	{"harmony.wav", "harmony.mid"},
	{"snare.wav", "drums_notes.mid"},
}

// Orchestrator drives one job through the deconstruction pipeline,
// recording every milestone in the status store.
type Orchestrator struct {
	store           *store.JobStore
	engine          Engine
	validator       ReportValidator
	notifier        Notifier
	defaultStrategy string
}

// NewOrchestrator creates a pipeline orchestrator. notifier may be nil.
func NewOrchestrator(st *store.JobStore, engine Engine, validator ReportValidator, defaultStrategy string, notifier Notifier) *Orchestrator {
	if _, ok := StrategyFor(defaultStrategy); !ok {
		if defaultStrategy != "" {
			log.Printf("Unknown default separation strategy %q, using %s", defaultStrategy, DefaultStrategy)
		}
		defaultStrategy = DefaultStrategy
	}
	return &Orchestrator{
		store:           st,
		engine:          engine,
		validator:       validator,
		notifier:        notifier,
		defaultStrategy: defaultStrategy,
	}
}

// Run executes the full pipeline for a job. Any stage error marks the job
// failed with the error text and aborts the remaining stages.
func (o *Orchestrator) Run(ctx context.Context, jobID, separationModel string) error {
	log.Printf("Starting pipeline for job: %s", jobID)
	if err := o.process(ctx, jobID, separationModel); err != nil {
		log.Printf("Pipeline failed for job %s: %v", jobID, err)
		if werr := o.store.WriteFailure(jobID, "An error occurred during processing.", err.Error()); werr != nil {
			log.Printf("Failed to record failure for job %s: %v", jobID, werr)
		}
		o.notify(jobID)
		return err
	}
	log.Printf("Pipeline completed for job: %s", jobID)
	return nil
}

func (o *Orchestrator) process(ctx context.Context, jobID, separationModel string) error {
	jobDir := o.store.JobDir(jobID)
	stemsDir := o.store.StemsDir(jobID)
	midiDir := o.store.MidiDir(jobID)
	inputPath := o.store.InputPath(jobID)

	// Stage 1: Coarse separation with fallback
	attempts := attemptList(separationModel, o.defaultStrategy)
	if err := o.setStatus(jobID, model.StateProcessingStems, 10, fmt.Sprintf("Starting stem separation (%s)...", attempts[0].Name)); err != nil {
		return err
	}
	if err := o.separate(ctx, jobID, attempts, inputPath, jobDir, stemsDir); err != nil {
		return err
	}

	// Stage 2: Deep refinement of the coarse stems
	if err := o.setStatus(jobID, model.StateProcessingStems, 30, "Refining stems (Vocals, Drums, Instruments)..."); err != nil {
		return err
	}
	for _, split := range coarseSplits {
		stemPath := filepath.Join(stemsDir, split.Stem)
		if _, err := os.Stat(stemPath); os.IsNotExist(err) {
			continue
		}
		if err := o.engine.SplitStem(ctx, stemPath, stemsDir, split.Parts); err != nil {
			return fmt.Errorf("refine %s: %w", split.Stem, err)
		}
		if err := os.Remove(stemPath); err != nil {
			return fmt.Errorf("remove coarse stem %s: %w", split.Stem, err)
		}
	}

	// Stage 3: Per-stem MIDI transcription, failures isolated per item
	if err := o.setStatus(jobID, model.StateProcessingMidi, 60, "Extracting structured MIDI data from stems..."); err != nil {
		return err
	}
	outcomes, err := o.transcribe(ctx, jobID, stemsDir, midiDir)
	if err != nil {
		return err
	}

	// Stage 4: MIDI validation, only when something got transcribed
	if summaries := collectSummaries(outcomes); len(summaries) > 0 {
		if err := o.setStatus(jobID, model.StateProcessingMidi, 85, "Validating MIDI correctness..."); err != nil {
			return err
		}
		report, err := o.validator.ValidateMidiSummaries(ctx, strings.Join(summaries, "\n\n"))
		if err != nil {
			return fmt.Errorf("midi validation: %w", err)
		}
		if err := o.store.ApplyUpdate(jobID, func(snap *model.Snapshot) {
			snap.ValidationReport = report
		}); err != nil {
			return fmt.Errorf("record validation report: %w", err)
		}
	}

	// Stage 5: REAPER project generation
	if err := o.setStatus(jobID, model.StateSuccess, 95, "Generating REAPER Project File..."); err != nil {
		return err
	}
	projectName := ProjectFileName(jobID)
	stems := o.store.ListArtifacts(jobID, model.ArtifactStems)
	if err := o.engine.WriteProject(ctx, jobID, stems, collectTranscribed(outcomes), filepath.Join(jobDir, projectName)); err != nil {
		return fmt.Errorf("project generation: %w", err)
	}
	if err := o.store.ApplyUpdate(jobID, func(snap *model.Snapshot) {
		snap.Artifacts.Project = []string{projectName}
	}); err != nil {
		return fmt.Errorf("record project artifact: %w", err)
	}

	// Stage 6: Done
	return o.setStatus(jobID, model.StateSuccess, 100, "Processing complete. Deep stems, MIDI, and REAPER Project are ready.")
}

// separate tries each strategy in order until one runs and normalizes
// cleanly. Non-final failures log and fall through; exhaustion is fatal.
func (o *Orchestrator) separate(ctx context.Context, jobID string, attempts []Strategy, inputPath, jobDir, stemsDir string) error {
	var lastErr error
	for i, strat := range attempts {
		err := o.engine.Separate(ctx, strat.Name, inputPath, jobDir)
		if err == nil {
			err = strat.Normalize(jobDir, inputPath, stemsDir)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if i < len(attempts)-1 {
			log.Printf("Separation strategy %s failed for job %s, falling back to %s: %v", strat.Name, jobID, attempts[i+1].Name, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrSeparationFailed, lastErr)
}

// transcribe walks the fixed plan over whatever stems exist. Outcomes keep
// the plan order; a summary failure still counts the MIDI file as produced.
func (o *Orchestrator) transcribe(ctx context.Context, jobID, stemsDir, midiDir string) ([]ItemOutcome, error) {
	outcomes := make([]ItemOutcome, 0, len(midiTargets))
	for i, target := range midiTargets {
		stemPath := filepath.Join(stemsDir, target.Stem)
		if _, err := os.Stat(stemPath); os.IsNotExist(err) {
			continue
		}

		progress := 60 + int(float64(i)/float64(len(midiTargets))*20)
		if err := o.setStatus(jobID, model.StateProcessingMidi, progress, fmt.Sprintf("Extracting MIDI: %s...", target.Midi)); err != nil {
			return nil, err
		}

		outcome := ItemOutcome{Stem: target.Stem, Midi: target.Midi}
		midiPath := filepath.Join(midiDir, target.Midi)
		if err := o.engine.Transcribe(ctx, stemPath, midiPath); err != nil {
			outcome.Err = err
			log.Printf("MIDI extraction failed for %s (job %s): %v", target.Stem, jobID, err)
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Transcribed = true

		summary, err := o.engine.SummarizeMidi(ctx, midiPath)
		if err != nil {
			outcome.Err = err
			log.Printf("MIDI summary failed for %s (job %s): %v", target.Midi, jobID, err)
		} else {
			outcome.Summary = summary
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (o *Orchestrator) setStatus(jobID string, state model.JobState, progress int, message string) error {
	if err := o.store.WriteStatus(jobID, state, progress, message); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	o.notify(jobID)
	return nil
}

func (o *Orchestrator) notify(jobID string) {
	if o.notifier == nil {
		return
	}
	if snap, err := o.store.ReadStatus(jobID); err == nil {
		o.notifier.NotifyProgress(jobID, snap)
	}
}

func collectSummaries(outcomes []ItemOutcome) []string {
	summaries := make([]string, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Summary != "" {
			summaries = append(summaries, out.Summary)
		}
	}
	return summaries
}

func collectTranscribed(outcomes []ItemOutcome) []string {
	files := make([]string, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Transcribed {
			files = append(files, out.Midi)
		}
	}
	return files
}

// ProjectFileName derives the project file name from the job id, keeping
// at most the first eight characters. Short ids are used whole.
func ProjectFileName(jobID string) string {
	prefix := jobID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("Project_%s.RPP", prefix)
}
