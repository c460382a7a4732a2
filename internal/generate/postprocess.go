package generate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/process"
)

const (
	encodeTimeout = 120 * time.Second
	probeTimeout  = 30 * time.Second
)

// Outputs are the transcoded files of one job, by role.
type Outputs struct {
	Main      string
	Vocal     string
	BGM       string
	Duration  *float64
	Artifacts []domain.Artifact
}

// Empty reports whether no role received an encoded file.
func (o Outputs) Empty() bool {
	return o.Main == "" && o.Vocal == "" && o.BGM == ""
}

// PostProcessor classifies raw generator files and transcodes them to mp3.
type PostProcessor struct {
	ffmpegPath  string
	ffprobePath string
	exec        process.Executor
	classify    Classifier
	logger      *slog.Logger
}

// NewPostProcessor builds a post-processor. A nil classifier uses Classify.
func NewPostProcessor(ffmpegPath, ffprobePath string, exec process.Executor, classify Classifier, logger *slog.Logger) *PostProcessor {
	if classify == nil {
		classify = Classify
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		exec:        exec,
		classify:    classify,
		logger:      logger,
	}
}

// Process encodes every raw file into outputDir. Files that fail to encode
// are dropped. When nothing was classified as main and stem is full, the
// first raw file stands in as the main mix.
func (p *PostProcessor) Process(ctx context.Context, rawFiles []string, outputDir string, stem domain.StemType) Outputs {
	files := append([]string(nil), rawFiles...)
	sort.Strings(files)

	var out Outputs
	encoded := make(map[string]string, len(files))

	for _, raw := range files {
		role := p.classify(raw)
		dest := filepath.Join(outputDir, encodedName(raw))
		if err := p.encode(ctx, raw, dest); err != nil {
			p.logger.Warn("encode failed, dropping file", "file", raw, "error", err)
			continue
		}
		encoded[raw] = dest
		p.assign(ctx, &out, role, raw, dest)
	}

	if out.Main == "" && len(files) > 0 && stem == domain.StemTypeFull {
		first := files[0]
		dest, ok := encoded[first]
		if !ok {
			dest = filepath.Join(outputDir, encodedName(first))
			if err := p.encode(ctx, first, dest); err != nil {
				p.logger.Warn("main fallback encode failed", "file", first, "error", err)
				return out
			}
		}
		p.assign(ctx, &out, domain.ArtifactRoleMain, first, dest)
	}

	return out
}

// assign records an encoded artifact under its role; later files replace
// earlier ones of the same role.
func (p *PostProcessor) assign(ctx context.Context, out *Outputs, role domain.ArtifactRole, raw, dest string) {
	artifact := domain.Artifact{RawPath: raw, Role: role, EncodedPath: dest}

	switch role {
	case domain.ArtifactRoleVocal:
		out.Vocal = dest
	case domain.ArtifactRoleBGM:
		out.BGM = dest
	default:
		out.Main = dest
		out.Duration = nil
		if duration, err := p.probe(ctx, dest); err != nil {
			p.logger.Warn("duration probe failed", "file", dest, "error", err)
		} else {
			out.Duration = &duration
			artifact.Duration = duration
		}
	}

	out.Artifacts = append(out.Artifacts, artifact)
}

func (p *PostProcessor) encode(ctx context.Context, src, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	_, err := p.exec.Run(ctx, p.ffmpegPath, buildEncodeArgs(src, dest)...)
	return err
}

func (p *PostProcessor) probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result, err := p.exec.Run(ctx, p.ffprobePath, buildProbeArgs(path)...)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(result.Stdout)
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, err)
	}
	return duration, nil
}
