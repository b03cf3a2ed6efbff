// Package app wires configuration, storage, caches and services into one
// running postcms instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postcms/internal/cache"
	"postcms/internal/config"
	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/embed"
	"postcms/internal/events"
	"postcms/internal/logging"
	mcpserver "postcms/internal/mcp"
	"postcms/internal/service"
	"postcms/internal/storage"
)

// Options carries process-level collaborators that do not come from config.
type Options struct {
	Logger  *zap.Logger
	Emitter events.EventEmitter
	Version string
}

// App owns every long-lived component. Exported services are safe to use
// until Close.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	emitter events.EventEmitter
	version string

	db    *storage.DB
	mongo *storage.MongoPostStore
	cache cache.Cache

	Posts    *service.PostService
	Media    *service.MediaService
	Sessions *service.Sessions

	sweeper *service.Sweeper
	watcher *postWatcher
}

// New opens storage and builds the services. Background jobs are not
// started; see Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := logging.OrNop(opts.Logger)
	a := &App{
		cfg:     cfg,
		logger:  logger,
		emitter: events.OrNop(opts.Emitter),
		version: opts.Version,
	}
	if err := a.init(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	sqlOpts := storage.Options{
		Driver:   storage.Driver(a.cfg.DB.Driver),
		DSN:      a.cfg.DB.DSN,
		Path:     a.cfg.DB.Path,
		Host:     a.cfg.DB.Host,
		Port:     a.cfg.DB.Port,
		User:     a.cfg.DB.User,
		Password: a.cfg.DB.Password,
		Database: a.cfg.DB.Name,
		SSLMode:  a.cfg.DB.SSLMode,
		Logger:   a.logger,
	}
	// Mongo holds posts only; revisions and the media index stay in SQLite.
	if a.cfg.DB.Driver == "mongo" {
		sqlOpts = storage.Options{Driver: storage.DriverSQLite, Path: a.cfg.DB.Path, Logger: a.logger}
	}
	db, err := storage.Open(ctx, sqlOpts)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db

	var posts domain.PostStore = storage.NewPostStore(db)
	if a.cfg.DB.Driver == "mongo" {
		m, err := storage.OpenMongo(ctx, a.cfg.DB.DSN, "", a.logger)
		if err != nil {
			return err
		}
		a.mongo = m
		posts = m
	}

	if a.cache, err = openCache(ctx, a.cfg.Cache); err != nil {
		return err
	}

	mediaStore, err := storage.NewFileMediaStore(a.cfg.Media.Dir, a.cfg.Media.BaseURL, db)
	if err != nil {
		return err
	}

	a.Posts = service.NewPostService(service.PostServiceDeps{
		Posts:     posts,
		Revisions: storage.NewRevisionStore(db),
		Cache:     a.cache,
		Emitter:   a.emitter,
		Logger:    a.logger,
	})
	a.Media = service.NewMediaService(service.MediaServiceDeps{
		Store:   mediaStore,
		Posts:   posts,
		MaxSize: a.cfg.Media.MaxSize,
		Grace:   a.cfg.Media.SweepGrace,
		Emitter: a.emitter,
		Logger:  a.logger,
	})
	a.Sessions = service.NewSessions(service.SessionDeps{
		Posts:       a.Posts,
		Uploader:    a.Media,
		Classifier:  embed.NewClassifier(a.cfg.Editor.MediaHost),
		Emitter:     a.emitter,
		Logger:      a.logger,
		Viewport:    editor.Viewport{Width: a.cfg.Editor.ViewportWidth, Height: a.cfg.Editor.ViewportHeight},
		ExternalDir: a.cfg.Editor.ExternalDir,
	})

	if a.sweeper, err = service.NewSweeper(a.Media, a.cfg.Media.SweepSchedule); err != nil {
		return err
	}
	a.watcher = newPostWatcher(a.Posts, a.Sessions, a.emitter, a.logger)
	return nil
}

func openCache(ctx context.Context, c config.Cache) (cache.Cache, error) {
	switch c.Backend {
	case "memory":
		return cache.NewMemoryCache(c.MaxItems, c.TTL), nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:       c.RedisAddr,
			Password:   c.RedisPass,
			DB:         c.RedisDB,
			DefaultTTL: c.TTL,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	return nil, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Start launches the media sweeper and the post watcher.
func (a *App) Start(ctx context.Context) error {
	if err := a.sweeper.Start(); err != nil {
		return err
	}
	a.watcher.Start(ctx)
	return nil
}

// Sweep runs one media sweep now.
func (a *App) Sweep(ctx context.Context) (*service.SweepResult, error) {
	return a.Media.Sweep(ctx)
}

// MCP builds the MCP server over the app's services.
func (a *App) MCP() *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Posts:    a.Posts,
		Media:    a.Media,
		Sessions: a.Sessions,
		Emitter:  a.emitter,
		Logger:   a.logger,
		Version:  a.version,
	})
}

// Close stops background work, waits for in-flight saves and uploads, and
// releases storage. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.sweeper != nil {
		a.sweeper.Stop(ctx)
	}
	if a.Sessions != nil {
		errs = append(errs, a.Sessions.Close(ctx))
	}
	if a.Posts != nil {
		a.Posts.WaitSaves(ctx)
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Close(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
