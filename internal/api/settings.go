package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"songgen-studio/internal/domain"
)

// settingsResponse is the wire shape of user settings.
type settingsResponse struct {
	LowMem       bool    `json:"low_mem"`
	FlashAttn    bool    `json:"flash_attn"`
	OutputDir    string  `json:"output_dir"`
	CurrentModel *string `json:"current_model"`
}

func toSettingsResponse(s domain.Settings) settingsResponse {
	resp := settingsResponse{
		LowMem:    s.LowMem,
		FlashAttn: s.FlashAttn,
		OutputDir: s.OutputDir,
	}
	if s.CurrentModel != "" {
		model := s.CurrentModel
		resp.CurrentModel = &model
	}
	return resp
}

func (h *handler) getSettings(c echo.Context) error {
	settings, err := h.svc.Settings()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSettingsResponse(settings))
}

func (h *handler) updateSettings(c echo.Context) error {
	var update domain.SettingsUpdate
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	settings, err := h.svc.UpdateSettings(update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSettingsResponse(settings))
}

func (h *handler) gpu(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.GPUInfo(c.Request().Context()))
}

func (h *handler) diagnostics(c echo.Context) error {
	report, err := h.svc.Diagnostics()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *handler) fixDiagnostic(c echo.Context) error {
	report, err := h.svc.FixDiagnostic(context.WithoutCancel(c.Request().Context()), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"detail": err.Error(),
			"report": report,
		})
	}
	return c.JSON(http.StatusOK, report)
}
