package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/five82/marquee/internal/account"
	"github.com/five82/marquee/internal/api"
	"github.com/five82/marquee/internal/config"
	"github.com/five82/marquee/internal/logging"
	"github.com/five82/marquee/internal/movies"
	"github.com/five82/marquee/internal/prefs"
	"github.com/five82/marquee/internal/profile"
	"github.com/five82/marquee/internal/query"
	"github.com/five82/marquee/internal/rating"
	"github.com/five82/marquee/internal/session"
	"github.com/five82/marquee/internal/ui"
)

// Options configure the marquee application. Non-empty fields override the
// config file and environment.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/marquee/prefs.toml
	EnvFile    string // empty uses ./.env
	APIBaseURL string
	LogLevel   string
	Ephemeral  bool // keep the session in memory only
}

// Services is the wired client data layer shared by the UI.
type Services struct {
	Config          config.Config
	Client          *api.Client
	Session         *session.Holder
	Cache           *query.Cache
	Account         *account.Service
	Movies          *movies.List
	Catalog         *movies.Catalog
	Recommendations *movies.Recommendations
	Rating          *rating.Controller
	Profile         *profile.Controller

	changes     *notifier
	unsubscribe func()
	store       session.Store
}

// Changes delivers a coalesced signal whenever cached data, list state or
// the session changes.
func (s *Services) Changes() <-chan struct{} {
	return s.changes.C()
}

// Close releases the session store.
func (s *Services) Close() error {
	s.unsubscribe()
	s.Movies.CancelSearch()
	if closer, ok := s.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// NewServices wires the client data layer against store. A nil store keeps
// the session in memory.
func NewServices(cfg config.Config, store session.Store) (*Services, error) {
	if store == nil {
		store = session.NewMemoryStore()
	}
	holder := session.NewHolder(store)
	if err := holder.Load(); err != nil {
		logging.Warn().Err(err).Msg("stored session unreadable; starting signed out")
	}

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Tokens:  holder,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	changes := newNotifier()
	cache := query.NewCache()
	cache.OnChange(func(query.Key) { changes.Notify() })

	s := &Services{
		Config:  cfg,
		Client:  client,
		Session: holder,
		Cache:   cache,
		Account: account.NewService(client, holder, cache),
		Movies: movies.NewList(movies.Options{
			Source:   client,
			Cache:    cache,
			PageSize: cfg.PageSize,
			Notify:   changes.Notify,
		}),
		Catalog:         movies.NewCatalog(client, cache),
		Recommendations: movies.NewRecommendations(client, cache, holder),
		Rating:          rating.NewController(client, cache, holder),
		Profile:         profile.NewController(client, cache, holder),
		changes:         changes,
		store:           store,
	}

	// A cleared token (logout or a 401 anywhere) drops every cached query so
	// nothing from the old session is shown to the next user.
	s.unsubscribe = holder.Subscribe(func(sess session.Session) {
		if sess.Token == "" {
			cache.Clear()
		}
		changes.Notify()
	})
	return s, nil
}

// Run boots the marquee TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(opts.APIBaseURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := logging.OpenFile(cfg.LogPath())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json", Output: logFile})

	var store session.Store
	if !opts.Ephemeral {
		badgerStore, err := session.OpenBadgerStore(cfg.SessionDir())
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		store = badgerStore
	}

	svc, err := NewServices(cfg, store)
	if err != nil {
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logging.Warn().Err(err).Msg("close session store")
		}
	}()

	logging.Info().
		Str("api", cfg.APIBaseURL).
		Bool("signed_in", svc.Session.Authenticated()).
		Bool("ephemeral", opts.Ephemeral).
		Msg("marquee starting")

	StartRevalidator(ctx, svc.Cache, cfg.RevalidateEvery)

	userPrefs := prefs.Load(opts.PrefsPath)
	err = ui.Run(ui.Options{
		Context:         ctx,
		Images:          svc.Client,
		Session:         svc.Session,
		Account:         svc.Account,
		Movies:          svc.Movies,
		Catalog:         svc.Catalog,
		Recommendations: svc.Recommendations,
		Rating:          svc.Rating,
		Profile:         svc.Profile,
		Changes:         svc.Changes(),
		APIBaseURL:      cfg.APIBaseURL,
		ThemeName:       userPrefs.Theme,
		LastEmail:       userPrefs.LastEmail,
		LastTab:         userPrefs.LastTab,
		PrefsPath:       opts.PrefsPath,
		LogPath:         cfg.LogPath(),
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
