package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/cache"
	"corrade/internal/commands"
	"corrade/internal/config"
	"corrade/internal/delivery"
	"corrade/internal/filter"
	"corrade/internal/membership"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/obs"
	"corrade/internal/pool"
	"corrade/internal/ratelimit"
	"corrade/internal/rlv"
	"corrade/internal/scheduler"
	"corrade/internal/session"
	"corrade/internal/storage/repos"
	"corrade/internal/wire"
)

var (
	ErrNoSession = errors.New("session is required")
	ErrStarted   = errors.New("already started")
)

const (
	senderIdle = 10 * time.Minute
	dialogIdle = 10 * time.Minute
)

type Options struct {
	Config  config.Config
	Store   *repos.Store
	Session session.Session
	Logger  *slog.Logger
	Metrics *obs.Metrics
	Client  *http.Client
}

// App wires the session, the command dispatcher, notifications, rule
// engine and delivery loops together.
type App struct {
	Config        *config.Live
	Store         *repos.Store
	Session       session.Session
	Logger        *slog.Logger
	Metrics       *obs.Metrics
	Groups        *auth.Groups
	Masters       []model.Master
	Pipeline      *filter.Pipeline
	Budget        *pool.Budget
	Resolver      *cache.Resolver
	Registry      *notify.Registry
	Notify        *notify.Engine
	RLV           *rlv.Engine
	Commands      *commands.Registry
	Offers        *Offers
	Dialogs       *Dialogs
	Callbacks     *delivery.Queue
	Notifications *delivery.Queue
	// Clients rate-limits HTTP callers by remote host.
	Clients *ratelimit.Keyed

	env       *commands.Env
	senders   *ratelimit.Keyed
	scheduler *scheduler.Scheduler
	sweeper   *membership.Sweeper
	loops     []*delivery.Loop
	client    *http.Client

	workersMu sync.Mutex
	workers   map[string]int

	ctx         context.Context
	cancel      context.CancelFunc
	bg          sync.WaitGroup
	startMu     sync.Mutex
	started     bool
	unsubscribe func()
}

// New builds the application and restores persisted state from the store
// when one is given.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	cfg := opts.Config
	groups, err := config.Groups(cfg)
	if err != nil {
		return nil, err
	}
	pipeline, err := config.Pipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("filters: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = obs.NewMetrics()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	a := &App{
		Config:        config.NewLive(cfg),
		Store:         opts.Store,
		Session:       opts.Session,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		Groups:        auth.NewGroups(groups),
		Masters:       config.Masters(cfg),
		Pipeline:      pipeline,
		Budget:        pool.New(opts.Logger, opts.Metrics),
		Resolver:      cache.New(opts.Session),
		Commands:      commands.Default(),
		Offers:        NewOffers(),
		Dialogs:       NewDialogs(),
		Callbacks:     delivery.NewQueue(delivery.QueueCallback, cfg.Limits.CallbackQueueLength, opts.Metrics),
		Notifications: delivery.NewQueue(delivery.QueueNotification, cfg.Limits.NotificationQueueLength, opts.Metrics),
		Clients:       ratelimit.New(cfg.Server.RatePerMin, cfg.Server.RateBurst),
		senders:       ratelimit.New(cfg.Limits.SenderRatePerMin, cfg.Limits.SenderRateBurst),
		scheduler:     scheduler.New(opts.Logger),
		client:        opts.Client,
		workers:       map[string]int{},
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	var (
		regs  []model.Registration
		rules []model.RLVRule
	)
	if a.Store != nil {
		if regs, err = a.Store.ListRegistrations(ctx); err != nil {
			return nil, fmt.Errorf("load notifications: %w", err)
		}
		if rules, err = a.Store.ListRLVRules(ctx); err != nil {
			return nil, fmt.Errorf("load rlv rules: %w", err)
		}
		snap, err := a.Store.LoadCaches(ctx)
		if err != nil {
			return nil, fmt.Errorf("load caches: %w", err)
		}
		a.Resolver.Restore(snap)
	}
	a.Registry = notify.NewRegistry(regs)
	purged := a.Registry.Purge(func(group string) bool {
		_, ok := a.Groups.ByName(group)
		return ok
	})
	if purged > 0 {
		a.Logger.Info("dropped registrations of unconfigured groups", "count", purged)
	}

	a.Notify = notify.NewEngine(notify.Options{
		Groups:   a.Groups,
		Registry: a.Registry,
		Queue:    a.Notifications,
		Pipeline: a.Pipeline,
		Budget:   a.Budget,
		Threads:  func() int { return a.Config.Get().Limits.NotificationThreads },
		Logger:   a.Logger,
		Recorder: a.Metrics,
	})

	var rlvStore rlv.Store
	if a.Store != nil {
		rlvStore = a.Store
	}
	a.RLV = rlv.NewEngine(rlv.Options{
		Session:  a.Session,
		Rules:    rlv.NewRules(rules),
		Store:    rlvStore,
		Logger:   a.Logger,
		Version:  cfg.Agent.Version,
		Timeout:  config.ServicesTimeout(cfg),
		Recorder: a.Metrics,
	})

	var regStore commands.RegistrationStore
	if a.Store != nil {
		regStore = a.Store
	}
	a.env = &commands.Env{
		Session:  a.Session,
		Resolver: a.Resolver,
		Config:   a.Config,
		Groups:   a.Groups,
		Registry: a.Registry,
		Store:    regStore,
		Effects:  a.Notify.Effects,
		Offers:   a.Offers,
		Dialogs:  a.Dialogs,
		Logger:   a.Logger,
	}

	a.sweeper = membership.New(membership.Options{
		Groups:   a.Groups,
		Session:  a.Session,
		Resolver: a.Resolver,
		Notifier: a.Notify,
		Timeout:  func() time.Duration { return config.DataTimeout(a.Config.Get()) },
		Logger:   a.Logger,
	})
	return a, nil
}

// Start subscribes to the session, resumes pending offers and starts the
// delivery loops and periodic jobs.
func (a *App) Start(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if a.started {
		return ErrStarted
	}
	a.started = true

	if a.Store != nil {
		pending, err := a.Store.ListOffers(ctx, model.OfferPending)
		if err != nil {
			return fmt.Errorf("load inventory offers: %w", err)
		}
		for _, o := range pending {
			a.trackOffer(o)
		}
	}

	a.unsubscribe = a.Session.Subscribe(a.handleEvent)

	cfg := a.Config.Get()
	a.loops = []*delivery.Loop{
		{
			Queue:  a.Callbacks,
			Client: a.client,
			Settings: func() delivery.Options {
				c := a.Config.Get()
				return a.deliveryOptions(c, c.Limits.CallbackTimeout, c.Limits.CallbackThrottle)
			},
			Logger:   a.Logger,
			Recorder: a.Metrics,
		},
		{
			Queue:  a.Notifications,
			Client: a.client,
			Settings: func() delivery.Options {
				c := a.Config.Get()
				return a.deliveryOptions(c, c.Limits.NotificationTimeout, c.Limits.NotificationThrottle)
			},
			Logger:   a.Logger,
			Recorder: a.Metrics,
		},
	}
	for _, l := range a.loops {
		l.Start(a.ctx)
	}

	jobs := []struct {
		name     string
		interval time.Duration
		job      scheduler.Job
	}{
		{"membership", config.Duration(cfg.Limits.MembershipSweep, time.Minute), func(ctx context.Context) { a.sweeper.Sweep(ctx) }},
		{"effects", config.Duration(cfg.Limits.EffectExpiry, time.Second), func(context.Context) { a.Notify.Effects.Expire() }},
		{"prune", senderIdle, func(context.Context) { a.prune() }},
	}
	for _, j := range jobs {
		if err := a.scheduler.Every(j.name, j.interval, j.job); err != nil {
			return err
		}
	}
	a.scheduler.Start()

	a.Logger.Info("agent started",
		"groups", len(a.Groups.All()),
		"registrations", len(a.Registry.List("")),
		"rlv_rules", a.RLV.Rules().Len(),
		"pending_offers", len(a.Offers.Pending()))
	return nil
}

// Shutdown stops taking events, declines pending offers, waits for running
// work up to the configured grace period and saves state.
func (a *App) Shutdown(ctx context.Context) {
	cfg := a.Config.Get()
	grace := config.Duration(cfg.Limits.ShutdownGrace, 5*time.Second)

	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.scheduler.Stop(grace)

	if n := a.Offers.DeclineAll(); n > 0 {
		a.Logger.Info("declined pending inventory offers", "count", n)
	}
	waitFor(a.Logger, "background tasks", grace, a.bg.Wait)
	waitFor(a.Logger, "worker pools", grace, a.Budget.Wait)

	a.cancel()
	for _, l := range a.loops {
		l.Stop(grace)
	}
	a.persist(ctx)
	a.Logger.Info("agent stopped")
}

func (a *App) persist(ctx context.Context) {
	if a.Store == nil {
		return
	}
	if err := a.Store.SaveRegistrations(ctx, a.Registry.List("")); err != nil {
		a.Logger.Error("save notifications", "error", err)
	}
	if err := a.Store.SaveRLVRules(ctx, a.RLV.Rules().List(uuid.Nil)); err != nil {
		a.Logger.Error("save rlv rules", "error", err)
	}
	if err := a.Store.SaveCaches(ctx, a.Resolver.Snapshot()); err != nil {
		a.Logger.Error("save caches", "error", err)
	}
}

func (a *App) deliveryOptions(cfg config.Config, timeout, throttle string) delivery.Options {
	return delivery.Options{
		Timeout:     config.Duration(timeout, 5*time.Second),
		Throttle:    config.Duration(throttle, 0),
		ContentType: a.ContentType(),
		Compression: cfg.Server.Compression,
	}
}

// prune drops idle rate limiter entries and unanswered script dialogs.
func (a *App) prune() {
	a.senders.Prune(senderIdle)
	a.Clients.Prune(senderIdle)
	if n := a.Dialogs.Prune(dialogIdle); n > 0 {
		a.Logger.Debug("forgot unanswered script dialogs", "count", n)
	}
}

// ContentType is the content type of every outgoing wire body.
func (a *App) ContentType() string {
	return wire.ContentType(a.Pipeline)
}

// applyLimits pushes runtime-tunable limits into the components that
// copied them at startup.
func (a *App) applyLimits() {
	cfg := a.Config.Get()
	a.Callbacks.SetCapacity(cfg.Limits.CallbackQueueLength)
	a.Notifications.SetCapacity(cfg.Limits.NotificationQueueLength)
}

// background runs fn on its own goroutine, tracked for shutdown.
func (a *App) background(name string, fn func()) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.Logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}

func waitFor(logger *slog.Logger, what string, grace time.Duration, wait func()) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		logger.Warn("shutdown grace period expired", "waiting_for", what, "grace", grace)
		return false
	}
}
