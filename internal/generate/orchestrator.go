// Package generate runs song generation jobs: it launches the external
// generator, relays its output as job events, transcodes the produced audio
// and commits the finished song to the catalog.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
	"songgen-studio/internal/process"
)

// Stage names used in JobError and logs.
const (
	StagePreparing  = "preparing"
	StageGenerating = "generating"
	StageConverting = "converting"
	StageCommitting = "committing"
)

// ModelLocator answers where installed model checkpoints live.
type ModelLocator interface {
	IsInstalled(name string) bool
	Path(name string) string
}

// SongWriter persists one finished song.
type SongWriter interface {
	Insert(ctx context.Context, song *domain.Song) error
}

// StateTracker records job state transitions.
type StateTracker interface {
	Transition(jobID string, state domain.JobState, message string) error
}

// Request is one job ready to run. Settings is the snapshot taken when the
// job was submitted.
type Request struct {
	JobID    string
	SongID   string
	Input    domain.GenerationInput
	Settings domain.Settings
}

// Config holds the filesystem and command layout of the orchestrator.
type Config struct {
	// Generator is the base command; model, input and output paths are
	// appended per job.
	Generator  process.Command
	TempRoot   string
	OutputRoot string
	KeepFailed bool
}

// Orchestrator drives jobs through preparing, generating, converting and
// done or error.
type Orchestrator struct {
	cfg     Config
	runner  process.Runner
	post    *PostProcessor
	models  ModelLocator
	songs   SongWriter
	tracker StateTracker
	logger  *slog.Logger

	mkdirAll  func(path string, perm os.FileMode) error
	removeAll func(path string) error
	remove    func(path string) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator. tracker may be nil.
func NewOrchestrator(
	cfg Config,
	runner process.Runner,
	post *PostProcessor,
	models ModelLocator,
	songs SongWriter,
	tracker StateTracker,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		runner:    runner,
		post:      post,
		models:    models,
		songs:     songs,
		tracker:   tracker,
		logger:    logger,
		mkdirAll:  os.MkdirAll,
		removeAll: os.RemoveAll,
		remove:    os.Remove,
		writeFile: os.WriteFile,
		now:       time.Now,
	}
}

// jobRun is the mutable working state of one job.
type jobRun struct {
	req       Request
	logger    *slog.Logger
	tempDir   string
	outputDir string
	reference string
}

// inputRecord is the generator's line-delimited input format.
type inputRecord struct {
	Idx                 string `json:"idx"`
	Lyric               string `json:"gt_lyric"`
	Descriptions        string `json:"descriptions"`
	Title               string `json:"title,omitempty"`
	PromptAudioPath     string `json:"prompt_audio_path,omitempty"`
	AutoPromptAudioType string `json:"auto_prompt_audio_type,omitempty"`
}

// Run executes one job to completion and publishes exactly one terminal
// event on stream. The returned error is the job failure, if any.
func (o *Orchestrator) Run(ctx context.Context, req Request, stream *jobs.Stream) (err error) {
	run := &jobRun{
		req:    req,
		logger: o.logger.With("job_id", req.JobID, "song_id", req.SongID),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			o.fail(run, stream, err)
		}
	}()

	if err := o.execute(ctx, run, stream); err != nil {
		return err
	}

	if err := o.removeAll(run.tempDir); err != nil {
		run.logger.Warn("remove temp dir", "dir", run.tempDir, "error", err)
	}
	o.transition(run, domain.JobStateDone, "Generation complete!")
	o.emit(run, stream, jobs.EventKindDone, map[string]any{
		"job_id":  req.JobID,
		"status":  string(domain.JobStateDone),
		"message": "Generation complete!",
		"song_id": req.SongID,
	})
	run.logger.Info("job finished")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, run *jobRun, stream *jobs.Stream) error {
	modelPath, err := o.validate(run.req.Settings)
	if err != nil {
		return err
	}

	o.emit(run, stream, jobs.EventKindStatus, map[string]any{
		"job_id":  run.req.JobID,
		"status":  string(domain.JobStatePreparing),
		"message": "Preparing generation...",
	})
	inputPath, err := o.prepare(run)
	if err != nil {
		return err
	}

	o.transition(run, domain.JobStateGenerating, "")
	o.emit(run, stream, jobs.EventKindStatus, map[string]any{
		"job_id":  run.req.JobID,
		"status":  string(domain.JobStateGenerating),
		"message": "Starting generation (this may take 3-6 minutes)...",
	})
	rawDir := filepath.Join(run.tempDir, "output")
	if err := o.generate(ctx, run, stream, modelPath, inputPath, rawDir); err != nil {
		return err
	}

	o.transition(run, domain.JobStateConverting, "")
	o.emit(run, stream, jobs.EventKindStatus, map[string]any{
		"job_id":  run.req.JobID,
		"status":  string(domain.JobStateConverting),
		"message": "Converting to MP3...",
	})
	rawFiles, err := collectRawAudio(rawDir)
	if err != nil {
		return &JobError{Stage: StageConverting, Message: "Error: " + err.Error(), Err: err}
	}
	outputs := o.post.Process(ctx, rawFiles, run.outputDir, run.req.Input.StemType)
	if outputs.Empty() {
		return &JobError{
			Stage:   StageConverting,
			Kind:    ErrNoOutput,
			Message: "No output files generated",
		}
	}

	return o.commit(ctx, run, outputs)
}

// validate resolves the selected model; no directories or processes exist
// yet when it fails.
func (o *Orchestrator) validate(settings domain.Settings) (string, error) {
	name := strings.TrimSpace(settings.CurrentModel)
	if name == "" {
		return "", &JobError{
			Stage:   StagePreparing,
			Kind:    ErrNoModelSelected,
			Message: "No model selected. Please download and select a model first.",
		}
	}
	if !o.models.IsInstalled(name) {
		return "", &JobError{
			Stage:   StagePreparing,
			Kind:    ErrModelNotFound,
			Message: fmt.Sprintf("Model not found: %s", name),
		}
	}
	return o.models.Path(name), nil
}

// prepare creates the job directories, stores the reference clip and writes
// the generator input record. It returns the input record path.
func (o *Orchestrator) prepare(run *jobRun) (string, error) {
	req := run.req
	outputRoot := strings.TrimSpace(req.Settings.OutputDir)
	if outputRoot == "" {
		outputRoot = o.cfg.OutputRoot
	}

	run.tempDir = filepath.Join(o.cfg.TempRoot, req.JobID)
	run.outputDir = filepath.Join(outputRoot, req.SongID)
	for _, dir := range []string{run.tempDir, run.outputDir} {
		if err := o.mkdirAll(dir, 0o755); err != nil {
			return "", &JobError{
				Stage:   StagePreparing,
				Message: "Error: " + err.Error(),
				Err:     fmt.Errorf("create job directory %s: %w", dir, err),
			}
		}
	}

	record := inputRecord{
		Idx:                 req.SongID,
		Lyric:               req.Input.Lyrics,
		Descriptions:        req.Input.Description,
		Title:               strings.TrimSpace(req.Input.Title),
		AutoPromptAudioType: strings.TrimSpace(req.Input.AutoStyle),
	}

	if req.Input.HasReference() {
		ext := filepath.Ext(req.Input.ReferenceFilename)
		if ext == "" {
			ext = ".wav"
		}
		run.reference = filepath.Join(run.tempDir, "reference"+ext)
		if err := o.writeFile(run.reference, req.Input.ReferenceAudio, 0o644); err != nil {
			return "", &JobError{
				Stage:   StagePreparing,
				Message: "Error: " + err.Error(),
				Err:     fmt.Errorf("write reference audio: %w", err),
			}
		}
		record.PromptAudioPath = run.reference
	}

	line, err := json.Marshal(record)
	if err != nil {
		return "", &JobError{Stage: StagePreparing, Message: "Error: " + err.Error(), Err: err}
	}
	inputPath := filepath.Join(run.tempDir, "input.jsonl")
	if err := o.writeFile(inputPath, append(line, '\n'), 0o644); err != nil {
		return "", &JobError{
			Stage:   StagePreparing,
			Message: "Error: " + err.Error(),
			Err:     fmt.Errorf("write input record: %w", err),
		}
	}
	return inputPath, nil
}

// generate runs the generator and relays every non-blank output line as a
// progress event, in order.
func (o *Orchestrator) generate(ctx context.Context, run *jobRun, stream *jobs.Stream, modelPath, inputPath, rawDir string) error {
	cmd := process.Command{
		Path: o.cfg.Generator.Path,
		Args: buildGenerateArgs(o.cfg.Generator.Args, modelPath, inputPath, rawDir, run.req.Settings, run.req.Input.StemType),
		Dir:  o.cfg.Generator.Dir,
		Env:  o.cfg.Generator.Env,
	}
	run.logger.Info("starting generator", "command", cmd.Path, "args", cmd.Args)

	proc, err := o.runner.Start(ctx, cmd)
	if err != nil {
		return &JobError{
			Stage:   StageGenerating,
			Kind:    ErrLaunch,
			Message: fmt.Sprintf("Generator could not be started: %s", cmd.Path),
			Err:     err,
		}
	}

	for line := range proc.Lines() {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		o.emit(run, stream, jobs.EventKindProgress, map[string]any{
			"job_id":  run.req.JobID,
			"message": text,
		})
	}

	if err := proc.Wait(); err != nil {
		message := "Generation failed. Check logs for details."
		if ctx.Err() != nil {
			message = "Generation cancelled"
		}
		run.logger.Error("generator failed", "exit_code", process.ExitCode(err), "error", err)
		return &JobError{
			Stage:   StageGenerating,
			Kind:    ErrProcessFailed,
			Message: message,
			Err:     err,
		}
	}
	return nil
}

// commit copies the reference clip next to the outputs and inserts the song.
func (o *Orchestrator) commit(ctx context.Context, run *jobRun, outputs Outputs) error {
	req := run.req

	var referencePath *string
	if run.reference != "" {
		dest := filepath.Join(run.outputDir, filepath.Base(run.reference))
		if err := o.writeFile(dest, req.Input.ReferenceAudio, 0o644); err != nil {
			run.logger.Warn("save reference audio", "error", err)
		} else {
			referencePath = &dest
		}
	}

	title := strings.TrimSpace(req.Input.Title)
	if title == "" {
		title = "Song " + req.JobID
	}

	song := &domain.Song{
		ID:                 req.SongID,
		Title:              title,
		CreatedAt:          o.now().UTC(),
		Lyrics:             req.Input.Lyrics,
		Description:        req.Input.Description,
		ReferenceAudioPath: referencePath,
		StemType:           req.Input.StemType,
		OutputPath:         optional(outputs.Main),
		OutputVocalPath:    optional(outputs.Vocal),
		OutputBgmPath:      optional(outputs.BGM),
		DurationSeconds:    outputs.Duration,
		ModelVersion:       req.Settings.CurrentModel,
	}
	if err := o.songs.Insert(ctx, song); err != nil {
		return &JobError{
			Stage:   StageCommitting,
			Kind:    ErrCommit,
			Message: "Error: failed to save song to library",
			Err:     err,
		}
	}
	return nil
}

// fail publishes the single error event and cleans up the job directories.
func (o *Orchestrator) fail(run *jobRun, stream *jobs.Stream, err error) {
	message := ClientMessage(err)
	run.logger.Error("job failed", "error", err)

	if run.tempDir != "" && !o.cfg.KeepFailed {
		if rmErr := o.removeAll(run.tempDir); rmErr != nil {
			run.logger.Warn("remove temp dir", "dir", run.tempDir, "error", rmErr)
		}
	}
	if run.outputDir != "" {
		// only succeeds when nothing was encoded into it
		if rmErr := o.remove(run.outputDir); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			run.logger.Debug("keep output dir", "dir", run.outputDir, "error", rmErr)
		}
	}

	o.transition(run, domain.JobStateError, message)
	o.emit(run, stream, jobs.EventKindError, map[string]any{
		"job_id":  run.req.JobID,
		"message": message,
	})
}

func (o *Orchestrator) transition(run *jobRun, state domain.JobState, message string) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.Transition(run.req.JobID, state, message); err != nil {
		run.logger.Warn("job state transition", "state", state, "error", err)
	}
}

// emit publishes one event. A detached subscriber does not stop the job.
func (o *Orchestrator) emit(run *jobRun, stream *jobs.Stream, kind jobs.EventKind, payload map[string]any) {
	err := stream.Publish(kind, payload)
	switch {
	case err == nil, errors.Is(err, jobs.ErrSubscriberGone):
	default:
		run.logger.Warn("publish event", "kind", kind, "error", err)
	}
}

// collectRawAudio lists *.wav files under dir recursively in lexical order.
// A missing dir yields no files.
func collectRawAudio(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
