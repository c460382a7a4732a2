package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
)

// generate accepts the multipart song form and streams job events as SSE.
func (h *handler) generate(c echo.Context) error {
	input, err := h.parseGenerateForm(c)
	if err != nil {
		return err
	}

	job, stream, err := h.svc.StartGeneration(c.Request().Context(), input)
	if err != nil {
		return err
	}
	h.logger.Info("generation started", "job_id", job.ID, "song_id", job.SongID, "transport", "sse")
	return h.streamSSE(c, job.ID, stream)
}

func (h *handler) parseGenerateForm(c echo.Context) (domain.GenerationInput, error) {
	stem, err := domain.ParseStemType(c.FormValue("stem_type"))
	if err != nil {
		return domain.GenerationInput{}, err
	}

	input := domain.GenerationInput{
		Lyrics:      c.FormValue("lyrics"),
		Description: c.FormValue("description"),
		StemType:    stem,
		Title:       c.FormValue("title"),
		AutoStyle:   c.FormValue("auto_style"),
	}

	file, err := c.FormFile("reference_audio")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return domain.GenerationInput{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid reference audio upload")
	default:
		if file.Size > h.opts.MaxUploadBytes {
			return domain.GenerationInput{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Reference audio is too large")
		}
		src, err := file.Open()
		if err != nil {
			return domain.GenerationInput{}, fmt.Errorf("open reference audio: %w", err)
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, h.opts.MaxUploadBytes))
		if err != nil {
			return domain.GenerationInput{}, fmt.Errorf("read reference audio: %w", err)
		}
		input.ReferenceAudio = data
		input.ReferenceFilename = file.Filename
	}

	if err := input.Validate(); err != nil {
		return domain.GenerationInput{}, err
	}
	return input, nil
}

type jobStatusResponse struct {
	Job    domain.Job   `json:"job"`
	Events []jobs.Event `json:"events"`
}

// jobStatus returns a job snapshot and its recorded events after ?since.
func (h *handler) jobStatus(c echo.Context) error {
	var since int64
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = parsed
	}

	job, events, err := h.svc.JobStatus(c.Param("jobId"), since)
	if err != nil {
		return err
	}
	if events == nil {
		events = []jobs.Event{}
	}
	return c.JSON(http.StatusOK, jobStatusResponse{Job: job, Events: events})
}

func (h *handler) cancelJob(c echo.Context) error {
	if err := h.svc.CancelJob(c.Param("jobId")); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *handler) listJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Jobs())
}
