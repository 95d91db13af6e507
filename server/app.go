package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"interview-room/auth"
	"interview-room/backend"
	"interview-room/config"
	"interview-room/constant"
	"interview-room/device"
	"interview-room/repository"
	"interview-room/service"
	"interview-room/storage"
)

// App holds the wired components shared by the server and the CLI commands.
type App struct {
	Store   *storage.Store
	Session *auth.Session
	Client  *backend.Client
	Devices *device.Manager
	Repo    repository.ResultRepository
	Media   *storage.MediaArchive
	Room    *service.Room
	Roster  *service.Roster
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := zerolog.Ctx(ctx)

	store, err := storage.Open(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	app := &App{Store: store}

	app.Session = auth.NewSession(store)
	if err := app.Session.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to restore credential")
	}
	app.Client = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, cfg.Backend.UploadTimeout, app.Session)

	dev, err := newDevice(cfg.Device)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.Devices = device.NewManager(dev, cfg.Device.AcquireRetries)

	var archive service.SessionArchiver
	var results service.ResultArchive
	if cfg.DB != nil {
		repo, err := repository.NewRepo(cfg.DB, cfg.App.Environment == constant.EnvironmentDevelop.String())
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate result archive: %w", err)
		}
		app.Repo = repo
		archive, results = repo, repo
	}

	var media service.MediaArchiver
	var mediaStore service.RosterMedia
	if cfg.Storage != nil {
		app.Media = storage.NewMediaArchive(cfg.Storage, cfg.MinIOBucket)
		media, mediaStore = app.Media, app.Media
	}

	submitter := service.NewSubmitter(app.Client, store, media)
	app.Room = service.NewRoom(app.Client, app.Devices, submitter, archive, service.RoomConfig{
		PollInterval:    cfg.Poller.Interval,
		MaxPollFailures: cfg.Poller.MaxConsecutiveFailures,
	})
	app.Roster = service.NewRoster(app.Client, results, mediaStore)
	app.Session.OnTerminate(app.Room.Terminate)

	logger.Info().
		Bool("archive", app.Repo != nil).
		Bool("media", app.Media != nil).
		Str("backend", cfg.Backend.BaseURL).
		Msg("interview room wired")
	return app, nil
}

func newDevice(cfg config.Device) (device.Device, error) {
	switch cfg.Kind {
	case "file":
		return &device.FileDevice{
			Path:          cfg.MediaPath,
			MimeType:      cfg.MimeType,
			ChunkSize:     cfg.ChunkSize,
			ChunkInterval: cfg.ChunkInterval,
		}, nil
	case "memory":
		return device.NewMemoryDevice(), nil
	}
	return nil, fmt.Errorf("unknown device kind %q", cfg.Kind)
}

// Login implements AuthService.
func (a *App) Login(ctx context.Context, email, password string) (auth.Credential, error) {
	return a.Session.Login(ctx, a.Client, email, password)
}

// Logout leaves the room and forgets the credential.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Room.Leave(ctx); err != nil {
		return err
	}
	return a.Session.Clear(ctx)
}

func (a *App) Close(ctx context.Context) {
	if err := a.Room.Leave(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close room")
	}
	if err := a.Store.Close(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close data store")
	}
}
