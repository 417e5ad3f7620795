// Package container builds the application object graph.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/config"
	"github.com/jordanlanch/leaddesk/pkg/api/handlers"
	"github.com/jordanlanch/leaddesk/pkg/assignmentlog"
	"github.com/jordanlanch/leaddesk/pkg/audit"
	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/email"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/export"
	"github.com/jordanlanch/leaddesk/pkg/hooks"
	importpkg "github.com/jordanlanch/leaddesk/pkg/import"
	"github.com/jordanlanch/leaddesk/pkg/jobs"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/notify"
	"github.com/jordanlanch/leaddesk/pkg/phone"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/jordanlanch/leaddesk/pkg/sla"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/jordanlanch/leaddesk/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger logger.Logger

	// Infrastructure
	DB       *database.Client
	Cache    *cache.Client // nil when Redis is disabled
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Hooks    *hooks.Runner

	// Services
	Users         *users.Service
	Rules         *rules.Service
	AssignmentLog *assignmentlog.Service
	AuditLogger   *audit.Service
	SLA           *sla.Registry
	Engine        *leadassignment.Engine
	Enquiries     *enquiries.Service
	Exporter      *export.Service
	Importer      *importpkg.CSVImportService
	Notifier      *notify.Dispatcher

	// Jobs
	CronManager *jobs.CronManager

	// Handlers
	EnquiryHandler       *handlers.EnquiryHandler
	RuleHandler          *handlers.RuleHandler
	AssignmentLogHandler *handlers.AssignmentLogHandler
	UserHandler          *handlers.UserHandler
	SLAHandler           *handlers.SLAHandler
	AuditHandler         *handlers.AuditHandler
	JobsHandler          *handlers.JobsHandler
	HealthHandler        *handlers.HealthHandler
}

// New connects to the database and, when enabled, Redis, then wires everything.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Container, error) {
	db, err := database.NewClient(ctx, database.Options{
		Driver: cfg.Database.Driver,
		URL:    cfg.Database.URL,
		Pool: database.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		},
		SSL: &database.SSLConfig{
			Mode:         cfg.Database.SSLMode,
			CertPath:     cfg.Database.SSLCert,
			KeyPath:      cfg.Database.SSLKey,
			RootCertPath: cfg.Database.SSLRootCert,
		},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return nil, err
	}

	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			_ = db.Close()
			log.Error("failed to connect to cache", "error", err)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	c, err := Wire(cfg, log, db, cacheClient)
	if err != nil {
		_ = db.Close()
		if cacheClient != nil {
			_ = cacheClient.Close()
		}
		return nil, err
	}

	log.Info("container initialized",
		"environment", cfg.API.Environment,
		"database", cfg.Database.Driver,
		"cache", cacheClient != nil)
	return c, nil
}

// Wire builds services and handlers on top of already opened infrastructure.
// cacheClient may be nil.
func Wire(cfg *config.Config, log logger.Logger, db *database.Client, cacheClient *cache.Client) (*Container, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &Container{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Cache:    cacheClient,
		Registry: prometheus.NewRegistry(),
	}
	c.Metrics = metrics.New(c.Registry)

	if err := c.initServices(); err != nil {
		return nil, err
	}
	if err := c.initJobs(); err != nil {
		return nil, err
	}
	c.initHandlers()
	return c, nil
}

func (c *Container) initServices() error {
	cfg := c.Config

	c.Hooks = hooks.NewRunner(c.Logger, cfg.Hooks.Async,
		hooks.WithTimeout(30*time.Second),
		hooks.WithErrorHandler(func(name string, _ error) {
			c.Metrics.RecordSideEffectFailure(name)
		}),
	)

	policy := sla.Policy{
		Response: sla.Hours{
			High:   cfg.SLA.ResponseHigh,
			Medium: cfg.SLA.ResponseMedium,
			Low:    cfg.SLA.ResponseLow,
		},
		Resolution: sla.Hours{
			High:   cfg.SLA.ResolutionHigh,
			Medium: cfg.SLA.ResolutionMedium,
			Low:    cfg.SLA.ResolutionLow,
		},
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("sla config: %w", err)
	}
	c.SLA = sla.NewRegistry(policy)

	c.Users = users.NewService(c.DB)
	c.Rules = rules.NewService(c.DB, c.Users)
	c.AssignmentLog = assignmentlog.NewService(c.DB)
	c.AuditLogger = audit.NewService(c.DB)

	// Notifications are always logged. Email and Slack are added when configured.
	channels := []notify.Channel{notify.NewLogChannel(c.Logger)}
	if cfg.Notifications.SendGridAPIKey != "" {
		mailer := email.NewService(
			cfg.Notifications.FromEmail,
			cfg.Notifications.FromName,
			cfg.Notifications.SendGridAPIKey,
			c.Logger,
		)
		channels = append(channels, notify.NewEmailChannel(mailer))
	}
	if cfg.Notifications.SlackWebhook != "" {
		team := slack.NewService(slack.NewWebhookClient(cfg.Notifications.SlackWebhook))
		channels = append(channels, notify.NewSlackChannel(team))
	}
	c.Notifier = notify.NewDispatcher(c.Users, c.Logger, channels...)

	var cursors leadassignment.CursorStore = c.Rules
	var optionsCache enquiries.OptionsCache
	if c.Cache != nil {
		cursors = cache.NewCursorStore(c.Cache)
		optionsCache = c.Cache
	}

	store := enquiries.NewStore(c.DB)
	c.Engine = leadassignment.NewEngine(leadassignment.Deps{
		Store:    store,
		Rules:    c.Rules,
		Users:    c.Users,
		Recorder: c.AssignmentLog,
		Cursors:  cursors,
		Loads:    leadassignment.NewSQLLoadCounter(c.DB, c.AssignmentLog),
		Hooks:    c.Hooks,
		Notifier: c.Notifier,
		Metrics:  c.Metrics,
		Logger:   c.Logger.With("component", "leadassignment"),
	})

	c.Enquiries = enquiries.NewService(enquiries.Deps{
		DB:              c.DB,
		Store:           store,
		Assigner:        c.Engine,
		Users:           c.Users,
		SLA:             c.SLA,
		Phones:          phone.NewNormalizer(cfg.Enquiry.PhoneRegion),
		Hooks:           c.Hooks,
		Notifier:        c.Notifier,
		Cache:           optionsCache,
		Metrics:         c.Metrics,
		Logger:          c.Logger.With("component", "enquiries"),
		DuplicateWindow: time.Duration(cfg.Enquiry.DuplicateWindowDays) * 24 * time.Hour,
	})

	c.Exporter = export.NewService(c.Enquiries, c.Metrics)
	c.Importer = importpkg.NewCSVImportService(c.Enquiries, c.Logger)

	c.Logger.Info("services initialized",
		"hooks_async", cfg.Hooks.Async,
		"email", cfg.Notifications.SendGridAPIKey != "",
		"slack", cfg.Notifications.SlackWebhook != "",
		"phone_region", cfg.Enquiry.PhoneRegion)
	return nil
}

func (c *Container) initJobs() error {
	monitor := jobs.NewSLAMonitor(enquiries.NewStore(c.DB), c.Notifier, c.Metrics, c.Logger)
	c.CronManager = jobs.NewCronManager(monitor, c.Logger)
	if !c.Config.Jobs.Enabled {
		return nil
	}
	return c.CronManager.SetupJobs(c.Config.Jobs.SLAScanSpec)
}

func (c *Container) initHandlers() {
	c.EnquiryHandler = handlers.NewEnquiryHandler(
		c.Enquiries,
		c.AssignmentLog,
		c.Importer,
		c.Exporter,
		c.AuditLogger,
		c.Logger,
	)
	c.RuleHandler = handlers.NewRuleHandler(c.Rules, c.Enquiries, c.AuditLogger, c.Logger)
	c.AssignmentLogHandler = handlers.NewAssignmentLogHandler(c.AssignmentLog, c.Logger)
	c.UserHandler = handlers.NewUserHandler(c.Users, c.AuditLogger, c.Logger)
	c.SLAHandler = handlers.NewSLAHandler(c.SLA, c.AuditLogger, c.Logger)
	c.AuditHandler = handlers.NewAuditHandler(c.AuditLogger, c.Logger)
	c.JobsHandler = handlers.NewJobsHandler(c.CronManager.GetMonitor(), c.AuditLogger, c.Logger)

	// a nil *cache.Client must not become a non-nil Pinger
	if c.Cache != nil {
		c.HealthHandler = handlers.NewHealthHandler(c.DB, c.Cache, c.Metrics)
	} else {
		c.HealthHandler = handlers.NewHealthHandler(c.DB, nil, c.Metrics)
	}
}

// Close drains pending side effects and releases connections.
func (c *Container) Close(ctx context.Context) error {
	if err := c.Hooks.Drain(ctx); err != nil {
		c.Logger.Warn("side effects still running at shutdown", "error", err)
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.Logger.Warn("cache close failed", "error", err)
		}
	}
	return c.DB.Close()
}
