package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"songgen-studio/internal/catalog"
	"songgen-studio/internal/domain"
)

var audioTypes = map[string]struct{}{"full": {}, "vocal": {}, "bgm": {}}

func (h *handler) listSongs(c echo.Context) error {
	q := catalog.ListQuery{
		Page:  1,
		Limit: catalog.DefaultLimit,
		Sort:  c.QueryParam("sort"),
		Order: c.QueryParam("order"),
	}
	var err error
	if q.Page, err = intQuery(c, "page", 1, 1, 0); err != nil {
		return err
	}
	if q.Limit, err = intQuery(c, "limit", catalog.DefaultLimit, 1, catalog.MaxLimit); err != nil {
		return err
	}

	page, err := h.svc.ListSongs(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if page.Songs == nil {
		page.Songs = []domain.Song{}
	}
	return c.JSON(http.StatusOK, page)
}

// intQuery parses an integer query value within [lo, hi]; hi 0 means
// unbounded.
func intQuery(c echo.Context, name string, fallback, lo, hi int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < lo || (hi > 0 && value > hi) {
		if hi > 0 {
			return 0, echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("%s must be between %d and %d", name, lo, hi))
		}
		return 0, echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("%s must be at least %d", name, lo))
	}
	return value, nil
}

func (h *handler) getSong(c echo.Context) error {
	song, err := h.svc.GetSong(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, song)
}

type songUpdateRequest struct {
	Title *string `json:"title"`
}

func (h *handler) updateSong(c echo.Context) error {
	var req songUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if req.Title == nil {
		song, err := h.svc.GetSong(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, song)
	}

	song, err := h.svc.UpdateSongTitle(ctx, id, strings.TrimSpace(*req.Title))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, song)
}

func (h *handler) deleteSong(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.DeleteSong(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (h *handler) audio(c echo.Context) error {
	path, name, err := h.resolveAudio(c)
	if err != nil {
		return err
	}
	return c.Inline(path, name)
}

func (h *handler) download(c echo.Context) error {
	path, name, err := h.resolveAudio(c)
	if err != nil {
		return err
	}
	return c.Attachment(path, name)
}

// resolveAudio finds the file for ?type= and its client file name.
func (h *handler) resolveAudio(c echo.Context) (string, string, error) {
	kind := c.QueryParam("type")
	if kind == "" {
		kind = "full"
	}
	if _, ok := audioTypes[kind]; !ok {
		return "", "", echo.NewHTTPError(http.StatusUnprocessableEntity, "type must be one of full, vocal, bgm")
	}

	song, err := h.svc.GetSong(c.Request().Context(), c.Param("id"))
	if err != nil {
		return "", "", err
	}

	path := song.AudioPath(kind)
	if path == "" {
		return "", "", echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("No %s audio available", kind))
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", echo.NewHTTPError(http.StatusNotFound, "Audio file not found")
	}

	title := song.Title
	if title == "" {
		title = song.ID
	}
	return path, fmt.Sprintf("%s_%s.mp3", title, kind), nil
}
