package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
)

const wsWriteTimeout = 10 * time.Second

// wsGenerateRequest is the first client message on /generate/ws.
type wsGenerateRequest struct {
	Lyrics            string `json:"lyrics"`
	Description       string `json:"description"`
	StemType          string `json:"stem_type"`
	Title             string `json:"title"`
	AutoStyle         string `json:"auto_style"`
	ReferenceAudio    string `json:"reference_audio"`
	ReferenceFilename string `json:"reference_filename"`
}

func (r wsGenerateRequest) input() (domain.GenerationInput, error) {
	stem, err := domain.ParseStemType(r.StemType)
	if err != nil {
		return domain.GenerationInput{}, err
	}
	input := domain.GenerationInput{
		Lyrics:            r.Lyrics,
		Description:       r.Description,
		StemType:          stem,
		Title:             r.Title,
		AutoStyle:         r.AutoStyle,
		ReferenceFilename: r.ReferenceFilename,
	}
	if r.ReferenceAudio != "" {
		data, err := base64.StdEncoding.DecodeString(r.ReferenceAudio)
		if err != nil {
			return domain.GenerationInput{}, errors.Join(domain.ErrInvalidInput, err)
		}
		input.ReferenceAudio = data
	}
	return input, input.Validate()
}

// wsFrame is one event sent to a WebSocket client.
type wsFrame struct {
	Seq   int64          `json:"seq,omitempty"`
	Event jobs.EventKind `json:"event"`
	Data  map[string]any `json:"data"`
	Sent  time.Time      `json:"timestamp"`
}

func (h *handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return true
			}
			return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
		},
	}
}

// generateWS runs one job per connection: the first message is the request,
// every following server frame is a job event.
func (h *handler) generateWS(c echo.Context) error {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()
	// base64 inflates the upload by 4/3, plus room for the text fields
	conn.SetReadLimit(h.opts.MaxUploadBytes/3*4 + 1<<20)

	var req wsGenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeWSError(conn, "Invalid generation request")
		return nil
	}
	input, err := req.input()
	if err != nil {
		h.writeWSError(conn, err.Error())
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	job, stream, err := h.svc.StartGeneration(ctx, input)
	if err != nil {
		_, detail := statusFor(err)
		h.writeWSError(conn, detail)
		return nil
	}
	h.logger.Info("generation started", "job_id", job.ID, "song_id", job.SongID, "transport", "websocket")

	// Reads only detect the peer closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		event, err := stream.Next(ctx, h.opts.IdleTimeout)
		switch {
		case err == nil:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			frame := wsFrame{Seq: event.Seq, Event: event.Kind, Data: event.Payload, Sent: event.Timestamp}
			if err := conn.WriteJSON(frame); err != nil {
				h.subscriberGone(job.ID, stream, err)
				return nil
			}
		case errors.Is(err, jobs.ErrIdle):
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				h.subscriberGone(job.ID, stream, err)
				return nil
			}
		case errors.Is(err, io.EOF):
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
				time.Now().Add(wsWriteTimeout))
			return nil
		default:
			h.subscriberGone(job.ID, stream, err)
			return nil
		}
	}
}

func (h *handler) writeWSError(conn *websocket.Conn, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(wsFrame{
		Event: jobs.EventKindError,
		Data:  map[string]any{"message": message},
		Sent:  time.Now().UTC(),
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(wsWriteTimeout))
}
