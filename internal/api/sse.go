package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"songgen-studio/internal/jobs"
)

// writeSSE writes one event frame and flushes it.
func writeSSE(res *echo.Response, kind jobs.EventKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// writeKeepalive writes an SSE comment that clients ignore.
func writeKeepalive(res *echo.Response) error {
	if _, err := io.WriteString(res, ": keepalive\n\n"); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// streamSSE relays stream to the client until the terminal event. When the
// client goes away the stream is detached and, for jobs under the
// kill-on-disconnect policy, the job is cancelled.
func (h *handler) streamSSE(c echo.Context, jobID string, stream *jobs.Stream) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		event, err := stream.Next(ctx, h.opts.IdleTimeout)
		switch {
		case err == nil:
			if err := writeSSE(res, event.Kind, event.Payload); err != nil {
				h.subscriberGone(jobID, stream, err)
				return nil
			}
		case errors.Is(err, jobs.ErrIdle):
			if err := writeKeepalive(res); err != nil {
				h.subscriberGone(jobID, stream, err)
				return nil
			}
		case errors.Is(err, io.EOF):
			return nil
		default:
			h.subscriberGone(jobID, stream, err)
			return nil
		}
	}
}

// subscriberGone detaches a stream whose consumer disconnected.
func (h *handler) subscriberGone(jobID string, stream *jobs.Stream, cause error) {
	stream.Detach()
	h.logger.Info("stream subscriber gone", "job_id", stream.JobID(), "cause", cause)

	if jobID == "" || !h.opts.CancelOnDisconnect {
		return
	}
	if err := h.svc.CancelJob(jobID); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		h.logger.Warn("cancel job after disconnect", "job_id", jobID, "error", err)
	}
}
