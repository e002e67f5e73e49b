// Package app wires the client components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/config"
	"github.com/pageza/pantrycam/internal/auth"
	"github.com/pageza/pantrycam/internal/gateway"
	"github.com/pageza/pantrycam/internal/imagestore"
	"github.com/pageza/pantrycam/internal/logging"
	"github.com/pageza/pantrycam/internal/notify"
	"github.com/pageza/pantrycam/internal/observability"
	"github.com/pageza/pantrycam/internal/pipeline"
	"github.com/pageza/pantrycam/internal/saved"
	"github.com/pageza/pantrycam/internal/savedview"
	"github.com/pageza/pantrycam/internal/session"
	"github.com/pageza/pantrycam/internal/types"
)

const redisSessionPrefix = "pantrycam:session"

type options struct {
	store      session.Store
	images     imagestore.Store
	log        *zerolog.Logger
	httpClient *http.Client
}

type Option func(*options)

// WithSessionStore uses store instead of the configured session backend.
func WithSessionStore(store session.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithImageStore uses s instead of the configured image archive.
func WithImageStore(s imagestore.Store) Option {
	return func(o *options) {
		o.images = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = &l
	}
}

// WithHTTPClient makes the gateway use hc. The configured request timeout is
// not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// App holds the process-wide client state shared by every view.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	API      *gateway.Client
	Auth     *auth.Manager
	Saved    *saved.Recipes
	Notices  *notify.Emitter
	Images   imagestore.Store
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	closers     []func() error
	unsubscribe func()
}

// New builds the client from cfg and restores any persisted session.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	if o.log != nil {
		a.Log = *o.log
	} else {
		a.Log = logging.New("pantrycam", cfg)
	}
	a.Metrics = observability.NewMetrics(a.Registry)

	store := o.store
	if store == nil {
		s, closer, err := OpenSessionStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.Auth = auth.NewManager(store, a.Log.With().Str("component", "auth").Logger())
	gwOpts := []gateway.Option{
		gateway.WithTokenSource(a.Auth),
		gateway.WithUnauthorizedHandler(a.Auth.HandleUnauthorized),
		gateway.WithLogger(a.Log.With().Str("component", "gateway").Logger()),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	} else {
		gwOpts = append(gwOpts, gateway.WithTimeout(cfg.RequestTimeout))
	}
	a.API = gateway.New(cfg.APIBaseURL, gwOpts...)
	a.Auth.SetAPI(a.API)

	if err := a.Auth.Restore(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	a.Saved = saved.New(a.API, a.Log)
	// A different account has a different collection.
	a.unsubscribe = a.Auth.Subscribe(func(u *types.User) {
		if u != nil {
			a.Saved.Invalidate()
		}
	})
	a.Notices = notify.New(cfg.NotifyDuration, a.Log.With().Str("component", "notify").Logger())

	a.Images = o.images
	if a.Images == nil {
		images, err := newImageStore(ctx, cfg, a.Log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Images = images
	}
	return a, nil
}

// NewPipeline opens a recognition view.
func (a *App) NewPipeline() *pipeline.Pipeline {
	return pipeline.New(a.API, a.Saved, a.Notices,
		pipeline.WithImageStore(a.Images),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithLogger(a.Log.With().Str("component", "pipeline").Logger()),
	)
}

// NewSavedView opens the saved-recipes view.
func (a *App) NewSavedView() *savedview.View {
	return savedview.New(a.API, a.Saved, a.Notices,
		savedview.WithMetrics(a.Metrics),
		savedview.WithLogger(a.Log.With().Str("component", "savedview").Logger()),
	)
}

// Close stops background work and releases the session backend.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Notices != nil {
		a.Notices.Close()
	}
	if a.Saved != nil {
		a.Saved.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenSessionStore opens the backend named by cfg.SessionBackend. The returned
// func, when non-nil, releases it.
func OpenSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func() error, error) {
	switch cfg.SessionBackend {
	case config.SessionMemory:
		return session.NewMemoryStore(), nil, nil
	case config.SessionRedis:
		s, err := session.NewRedisStore(ctx, cfg.RedisURL, redisSessionPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis session store: %w", err)
		}
		return s, s.Close, nil
	case config.SessionSQL:
		s, err := session.OpenSQLStore(cfg.SQLDriver, cfg.SQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func newImageStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (imagestore.Store, error) {
	if cfg.S3Bucket == "" {
		return imagestore.NewMemoryStore(), nil
	}
	s3cfg, err := cfg.NewS3Config(ctx)
	if err != nil {
		return nil, err
	}
	return imagestore.NewS3Store(s3cfg, log.With().Str("component", "imagestore").Logger()), nil
}
