package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
	"songgen-studio/internal/process"
)

// fakeRunner records generator launches and emulates their output.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []process.Command
	startErr error
	lines    []string
	exitErr  error
	produce  []string
}

// Start writes the configured raw files into the output dir argument.
func (f *fakeRunner) Start(ctx context.Context, cmd process.Command) (*process.Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}
	outDir := cmd.Args[2]
	for _, name := range f.produce {
		path := filepath.Join(outDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
			return nil, err
		}
	}
	return process.NewScripted(f.lines, f.exitErr), nil
}

type fakeModels struct {
	root      string
	installed map[string]bool
}

func (m fakeModels) IsInstalled(name string) bool { return m.installed[name] }
func (m fakeModels) Path(name string) string      { return filepath.Join(m.root, name) }

type fakeSongs struct {
	mu    sync.Mutex
	songs []*domain.Song
	err   error
}

func (s *fakeSongs) Insert(ctx context.Context, song *domain.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.songs = append(s.songs, song)
	return nil
}

type harness struct {
	orch     *Orchestrator
	runner   *fakeRunner
	exec     *fakeExecutor
	songs    *fakeSongs
	manager  *jobs.Manager
	tempRoot string
	outRoot  string
}

func newHarness(t *testing.T, runner *fakeRunner) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		runner:   runner,
		exec:     &fakeExecutor{duration: "95.5"},
		songs:    &fakeSongs{},
		manager:  jobs.NewManager(1),
		tempRoot: filepath.Join(root, "temp"),
		outRoot:  filepath.Join(root, "outputs"),
	}
	h.orch = NewOrchestrator(
		Config{
			Generator:  process.Command{Path: "bash", Dir: root},
			TempRoot:   h.tempRoot,
			OutputRoot: h.outRoot,
		},
		runner,
		NewPostProcessor("ffmpeg", "ffprobe", h.exec, nil, nil),
		fakeModels{root: filepath.Join(root, "models"), installed: map[string]bool{"SongGeneration-base": true}},
		h.songs,
		h.manager,
		nil,
	)
	h.orch.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func (h *harness) run(t *testing.T, req Request) ([]jobs.Event, error) {
	t.Helper()
	_, err := h.manager.Register(req.JobID, req.SongID, nil)
	require.NoError(t, err)

	stream := jobs.NewStream(req.JobID, 128, nil)
	runErr := h.orch.Run(context.Background(), req, stream)
	return drainStream(t, stream), runErr
}

// drainStream reads all events until the stream reports EOF.
func drainStream(t *testing.T, stream *jobs.Stream) []jobs.Event {
	t.Helper()
	var events []jobs.Event
	for {
		ev, err := stream.Next(context.Background(), time.Second)
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func baseRequest(stem domain.StemType) Request {
	return Request{
		JobID:  "ab12cd34",
		SongID: "song_20260102_030405_ab12cd34",
		Input: domain.GenerationInput{
			Lyrics:      "[verse]\nhello",
			Description: "female, pop, happy",
			StemType:    stem,
		},
		Settings: domain.Settings{FlashAttn: true, CurrentModel: "SongGeneration-base"},
	}
}

func kinds(events []jobs.Event) []jobs.EventKind {
	out := make([]jobs.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func terminalCount(events []jobs.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Kind.Terminal() {
			n++
		}
	}
	return n
}

// TestRunSeparateStems covers a separate-stem job yielding vocal and bgm only.
func TestRunSeparateStems(t *testing.T) {
	h := newHarness(t, &fakeRunner{
		lines:   []string{"loading model", "step 1/2", "step 2/2"},
		produce: []string{"song_vocal.wav", "song_bgm.wav"},
	})
	req := baseRequest(domain.StemTypeSeparate)

	events, err := h.run(t, req)
	require.NoError(t, err)

	last := events[len(events)-1]
	assert.Equal(t, jobs.EventKindDone, last.Kind)
	assert.Equal(t, req.SongID, last.Payload["song_id"])
	assert.Equal(t, "Generation complete!", last.Message())
	assert.Equal(t, 1, terminalCount(events))

	require.Len(t, h.songs.songs, 1)
	song := h.songs.songs[0]
	assert.Equal(t, req.SongID, song.ID)
	assert.Nil(t, song.OutputPath)
	require.NotNil(t, song.OutputVocalPath)
	require.NotNil(t, song.OutputBgmPath)
	assert.True(t, strings.HasSuffix(*song.OutputVocalPath, "song_vocal.mp3"))
	assert.True(t, strings.HasSuffix(*song.OutputBgmPath, "song_bgm.mp3"))
	assert.Equal(t, "Song ab12cd34", song.Title)
	assert.Equal(t, "SongGeneration-base", song.ModelVersion)
	assert.Equal(t, domain.StemTypeSeparate, song.StemType)

	require.Len(t, h.runner.calls, 1)
	assert.Contains(t, h.runner.calls[0].Args, "--separate")

	_, statErr := os.Stat(filepath.Join(h.tempRoot, req.JobID))
	assert.True(t, os.IsNotExist(statErr), "temp dir must be removed after success")

	job, ok := h.manager.Get(req.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStateDone, job.State)
}

// TestRunEventOrder verifies the status sequence and verbatim progress lines.
func TestRunEventOrder(t *testing.T) {
	h := newHarness(t, &fakeRunner{
		lines:   []string{"  first  ", "", "second"},
		produce: []string{"out/track.wav"},
	})

	events, err := h.run(t, baseRequest(domain.StemTypeFull))
	require.NoError(t, err)

	assert.Equal(t, []jobs.EventKind{
		jobs.EventKindStatus,
		jobs.EventKindStatus,
		jobs.EventKindProgress,
		jobs.EventKindProgress,
		jobs.EventKindStatus,
		jobs.EventKindDone,
	}, kinds(events))
	assert.Equal(t, "preparing", events[0].Payload["status"])
	assert.Equal(t, "generating", events[1].Payload["status"])
	assert.Equal(t, "first", events[2].Message())
	assert.Equal(t, "second", events[3].Message())
	assert.Equal(t, "converting", events[4].Payload["status"])

	require.Len(t, h.songs.songs, 1)
	song := h.songs.songs[0]
	require.NotNil(t, song.OutputPath)
	require.NotNil(t, song.DurationSeconds)
	assert.InDelta(t, 95.5, *song.DurationSeconds, 0.001)
}

// TestRunNoModelSelected verifies validation fails before any side effect.
func TestRunNoModelSelected(t *testing.T) {
	h := newHarness(t, &fakeRunner{})
	req := baseRequest(domain.StemTypeFull)
	req.Settings.CurrentModel = ""

	events, err := h.run(t, req)
	require.ErrorIs(t, err, ErrNoModelSelected)

	require.Len(t, events, 1)
	assert.Equal(t, jobs.EventKindError, events[0].Kind)
	assert.Equal(t, "No model selected. Please download and select a model first.", events[0].Message())
	assert.Empty(t, h.runner.calls)
	assert.Empty(t, h.songs.songs)

	_, statErr := os.Stat(h.tempRoot)
	assert.True(t, os.IsNotExist(statErr), "no directories may be created")
}

// TestRunModelNotFound verifies an uninstalled model is rejected.
func TestRunModelNotFound(t *testing.T) {
	h := newHarness(t, &fakeRunner{})
	req := baseRequest(domain.StemTypeFull)
	req.Settings.CurrentModel = "SongGeneration-large"

	events, err := h.run(t, req)
	require.ErrorIs(t, err, ErrModelNotFound)
	require.Len(t, events, 1)
	assert.Equal(t, "Model not found: SongGeneration-large", events[0].Message())
	assert.Empty(t, h.runner.calls)
}

// TestRunGeneratorFails verifies progress lines precede one error and nothing converts.
func TestRunGeneratorFails(t *testing.T) {
	h := newHarness(t, &fakeRunner{
		lines:   []string{"a", "b", "c"},
		exitErr: &process.ExitError{Path: "bash", Code: 2},
		produce: []string{"partial.wav"},
	})
	req := baseRequest(domain.StemTypeFull)

	events, err := h.run(t, req)
	require.ErrorIs(t, err, ErrProcessFailed)

	var tail []jobs.EventKind
	for _, ev := range events {
		if ev.Kind == jobs.EventKindStatus {
			assert.NotEqual(t, "converting", ev.Payload["status"])
			continue
		}
		tail = append(tail, ev.Kind)
	}
	assert.Equal(t, []jobs.EventKind{
		jobs.EventKindProgress, jobs.EventKindProgress, jobs.EventKindProgress, jobs.EventKindError,
	}, tail)
	assert.Equal(t, "Generation failed. Check logs for details.", events[len(events)-1].Message())
	assert.Zero(t, h.exec.encodeCount())
	assert.Empty(t, h.songs.songs)

	_, statErr := os.Stat(filepath.Join(h.tempRoot, req.JobID))
	assert.True(t, os.IsNotExist(statErr), "temp dir must be removed after failure")
	_, statErr = os.Stat(filepath.Join(h.outRoot, req.SongID))
	assert.True(t, os.IsNotExist(statErr), "empty output dir must be removed after failure")

	job, _ := h.manager.Get(req.JobID)
	assert.Equal(t, domain.JobStateError, job.State)
}

// TestRunKeepFailedTempDir verifies failed temp dirs can be kept for diagnostics.
func TestRunKeepFailedTempDir(t *testing.T) {
	h := newHarness(t, &fakeRunner{exitErr: &process.ExitError{Code: 1}})
	h.orch.cfg.KeepFailed = true
	req := baseRequest(domain.StemTypeFull)

	_, err := h.run(t, req)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(h.tempRoot, req.JobID, "input.jsonl"))
	assert.NoError(t, statErr)
}

// TestRunLaunchError verifies a missing generator ends the job.
func TestRunLaunchError(t *testing.T) {
	h := newHarness(t, &fakeRunner{
		startErr: &process.LaunchError{Path: "bash", Err: os.ErrNotExist},
	})

	events, err := h.run(t, baseRequest(domain.StemTypeFull))
	require.ErrorIs(t, err, ErrLaunch)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, jobs.EventKindError, events[len(events)-1].Kind)
	assert.Equal(t, 1, terminalCount(events))
}

// TestRunNoOutputFiles verifies nothing is committed when every encode fails.
func TestRunNoOutputFiles(t *testing.T) {
	h := newHarness(t, &fakeRunner{produce: []string{"x.wav"}})
	h.exec.failFor = map[string]bool{"x.wav": true}

	events, err := h.run(t, baseRequest(domain.StemTypeFull))
	require.ErrorIs(t, err, ErrNoOutput)
	assert.Equal(t, "No output files generated", events[len(events)-1].Message())
	assert.Empty(t, h.songs.songs)
}

// TestRunFailureRemovesOnlyEmptyOutputDir verifies the output dir goes
// through the injected remove and survives when files were encoded into it.
func TestRunFailureRemovesOnlyEmptyOutputDir(t *testing.T) {
	h := newHarness(t, &fakeRunner{produce: []string{"x.wav"}})
	h.songs.err = errors.New("disk full")

	var removed []string
	h.orch.remove = func(path string) error {
		removed = append(removed, path)
		return os.Remove(path)
	}

	req := baseRequest(domain.StemTypeFull)
	_, err := h.run(t, req)
	require.ErrorIs(t, err, ErrCommit)

	outDir := filepath.Join(h.outRoot, req.SongID)
	assert.Equal(t, []string{outDir}, removed)
	assert.FileExists(t, filepath.Join(outDir, "x.mp3"))
}

// TestRunFailureRemovesEmptyOutputDir verifies nothing is left behind when no
// file was encoded.
func TestRunFailureRemovesEmptyOutputDir(t *testing.T) {
	h := newHarness(t, &fakeRunner{produce: []string{"x.wav"}})
	h.exec.failFor = map[string]bool{"x.wav": true}

	req := baseRequest(domain.StemTypeFull)
	_, err := h.run(t, req)
	require.ErrorIs(t, err, ErrNoOutput)

	assert.NoDirExists(t, filepath.Join(h.outRoot, req.SongID))
}

// TestRunCommitFailure verifies a catalog error yields a single error event.
func TestRunCommitFailure(t *testing.T) {
	h := newHarness(t, &fakeRunner{produce: []string{"x.wav"}})
	h.songs.err = errors.New("disk full")

	events, err := h.run(t, baseRequest(domain.StemTypeFull))
	require.ErrorIs(t, err, ErrCommit)
	assert.Equal(t, 1, terminalCount(events))
	assert.Equal(t, jobs.EventKindError, events[len(events)-1].Kind)
}

// TestRunWritesInputRecord verifies the generator input file and reference clip.
func TestRunWritesInputRecord(t *testing.T) {
	var record map[string]any
	runner := &fakeRunner{produce: []string{"x.wav"}}
	h := newHarness(t, runner)
	h.orch.cfg.KeepFailed = true
	h.songs.err = errors.New("stop before cleanup")

	req := baseRequest(domain.StemTypeVocal)
	req.Input.Title = "My Song"
	req.Input.AutoStyle = "Pop"
	req.Input.ReferenceAudio = []byte("RIFF")
	req.Input.ReferenceFilename = "clip.flac"

	_, _ = h.run(t, req)

	require.Len(t, runner.calls, 1)
	args := runner.calls[0].Args
	inputPath := args[1]
	assert.Equal(t, filepath.Join(h.orch.cfg.Generator.Dir, "models", "SongGeneration-base"), args[0])
	assert.Contains(t, args, "--vocal")

	content, err := os.ReadFile(inputPath)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(content), "\n"))
	require.NoError(t, json.Unmarshal(content, &record))
	assert.Equal(t, req.SongID, record["idx"])
	assert.Equal(t, req.Input.Lyrics, record["gt_lyric"])
	assert.Equal(t, req.Input.Description, record["descriptions"])
	assert.Equal(t, "Pop", record["auto_prompt_audio_type"])

	refPath, _ := record["prompt_audio_path"].(string)
	assert.Equal(t, "reference.flac", filepath.Base(refPath))
	reference, err := os.ReadFile(refPath)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(reference))
}

// TestRunDetachedSubscriberStillCommits verifies detach-and-finish behavior.
func TestRunDetachedSubscriberStillCommits(t *testing.T) {
	h := newHarness(t, &fakeRunner{
		lines:   []string{"one", "two"},
		produce: []string{"x.wav"},
	})
	req := baseRequest(domain.StemTypeFull)
	_, err := h.manager.Register(req.JobID, req.SongID, nil)
	require.NoError(t, err)

	history := jobs.NewEventBus(100)
	stream := jobs.NewStream(req.JobID, 1, history)
	stream.Detach()

	require.NoError(t, h.orch.Run(context.Background(), req, stream))
	require.Len(t, h.songs.songs, 1)

	recorded := history.ForJob(req.JobID, 0)
	require.NotEmpty(t, recorded)
	assert.Equal(t, jobs.EventKindDone, recorded[len(recorded)-1].Kind)
}

// TestClientMessage verifies unexpected errors are prefixed.
func TestClientMessage(t *testing.T) {
	assert.Equal(t, "Error: boom", ClientMessage(errors.New("boom")))
	assert.Equal(t, "No output files generated", ClientMessage(&JobError{Kind: ErrNoOutput, Message: "No output files generated"}))
}
