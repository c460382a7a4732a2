package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type modelRequest struct {
	Model string `json:"model"`
}

func (h *handler) setupStatus(c echo.Context) error {
	status, err := h.svc.SetupStatus()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// downloadModel streams huggingface-cli progress as SSE.
func (h *handler) downloadModel(c echo.Context) error {
	var req modelRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Model) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model is required")
	}

	stream, err := h.svc.StartModelDownload(strings.TrimSpace(req.Model))
	if err != nil {
		return err
	}
	return h.streamSSE(c, "", stream)
}

func (h *handler) selectModel(c echo.Context) error {
	var req modelRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Model) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model is required")
	}

	model := strings.TrimSpace(req.Model)
	if err := h.svc.SelectModel(model); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "current_model": model})
}
