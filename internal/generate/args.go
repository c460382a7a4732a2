package generate

import (
	"path/filepath"
	"strings"

	"songgen-studio/internal/domain"
)

// buildGenerateArgs appends job paths and settings-derived flags to the
// configured generator command arguments.
func buildGenerateArgs(base []string, modelPath, inputPath, outputDir string, settings domain.Settings, stem domain.StemType) []string {
	args := append([]string(nil), base...)
	args = append(args, modelPath, inputPath, outputDir)

	if settings.LowMem {
		args = append(args, "--low-mem")
	}
	if !settings.FlashAttn {
		args = append(args, "--no-flash-attn")
	}

	switch stem {
	case domain.StemTypeVocal:
		args = append(args, "--vocal")
	case domain.StemTypeBGM:
		args = append(args, "--bgm")
	case domain.StemTypeSeparate:
		args = append(args, "--separate")
	}
	return args
}

// buildEncodeArgs builds ffmpeg args for a VBR MP3 encode.
func buildEncodeArgs(inputPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		outPath,
	}
}

// buildProbeArgs builds ffprobe args printing only the duration in seconds.
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// encodedName maps a raw file to its mp3 name.
func encodedName(rawPath string) string {
	base := filepath.Base(rawPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".mp3"
}
