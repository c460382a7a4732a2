package bootstrap

import (
	"fmt"

	"songgen-studio/internal/domain"
	"songgen-studio/internal/jobs"
	"songgen-studio/internal/models"
)

// SetupStatus reports installed models, the runtime and the current choice.
func (a *App) SetupStatus() (domain.SetupStatus, error) {
	settings, err := a.settings.Load()
	if err != nil {
		return domain.SetupStatus{}, fmt.Errorf("load settings: %w", err)
	}
	return a.models.Status(settings.CurrentModel), nil
}

// StartModelDownload begins fetching a preset in the background. Only one
// download runs at a time; it outlives the requesting connection.
func (a *App) StartModelDownload(name string) (*jobs.Stream, error) {
	if _, ok := models.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownModel, name)
	}

	release, err := a.downloader.Acquire()
	if err != nil {
		return nil, err
	}

	stream := jobs.NewStream("download_"+name, streamBuffer, a.events)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer release()
		a.downloader.Download(a.baseCtx, name, stream)
	}()
	return stream, nil
}

// SelectModel makes an installed model the one used for new jobs.
func (a *App) SelectModel(name string) error {
	if _, ok := models.Lookup(name); !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownModel, name)
	}
	if !a.models.IsInstalled(name) {
		return fmt.Errorf("%w: %s", models.ErrNotInstalled, name)
	}
	_, err := a.settings.Update(func(s *domain.Settings) { s.CurrentModel = name })
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	a.logger.Info("model selected", "model", name)
	return nil
}
