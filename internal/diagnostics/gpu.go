package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/process"
)

const gpuQueryTimeout = 10 * time.Second

// GPUProbe reads GPU details from nvidia-smi.
type GPUProbe struct {
	path string
	exec process.Executor
}

// NewGPUProbe builds a probe calling the nvidia-smi binary at path.
func NewGPUProbe(path string, exec process.Executor) *GPUProbe {
	if strings.TrimSpace(path) == "" {
		path = "nvidia-smi"
	}
	return &GPUProbe{path: path, exec: exec}
}

// Info returns the first GPU. Failures are reported through the name with
// zero memory values, never as an error.
func (p *GPUProbe) Info(ctx context.Context) domain.GPUInfo {
	ctx, cancel := context.WithTimeout(ctx, gpuQueryTimeout)
	defer cancel()

	result, err := p.exec.Run(ctx, p.path,
		"--query-gpu=name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		var launchErr *process.LaunchError
		if errors.As(err, &launchErr) {
			return domain.GPUInfo{Name: "nvidia-smi not found"}
		}
		return domain.GPUInfo{Name: "No GPU detected"}
	}

	info, err := parseGPULine(firstLine(result.Stdout))
	if err != nil {
		return domain.GPUInfo{Name: "Error: " + err.Error()}
	}

	driver, err := p.exec.Run(ctx, p.path, "--query-gpu=driver_version", "--format=csv,noheader")
	if err == nil {
		if version := firstLine(driver.Stdout); version != "" {
			info.CUDAVersion = &version
		}
	}
	return info
}

// parseGPULine parses "name, total, used, free" with sizes in MiB.
func parseGPULine(line string) (domain.GPUInfo, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return domain.GPUInfo{}, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}

	sizes := make([]float64, 3)
	for i := range sizes {
		value := strings.TrimSpace(parts[i+1])
		mib, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return domain.GPUInfo{}, fmt.Errorf("parse memory value %q: %w", value, err)
		}
		sizes[i] = mib / 1024
	}

	return domain.GPUInfo{
		Name:      strings.TrimSpace(parts[0]),
		VRAMTotal: sizes[0],
		VRAMUsed:  sizes[1],
		VRAMFree:  sizes[2],
	}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
