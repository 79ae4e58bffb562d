package factory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	"github.com/bakkerme/relaypipe/internal/outputs/email"
	"github.com/bakkerme/relaypipe/internal/outputs/email/smtp"
	"github.com/bakkerme/relaypipe/internal/processors/output"
	"github.com/bakkerme/relaypipe/internal/processors/rule"
	"github.com/bakkerme/relaypipe/internal/processors/source"
	"github.com/bakkerme/relaypipe/internal/processors/trigger"
	"github.com/bakkerme/relaypipe/internal/remote/memory"
	"github.com/bakkerme/relaypipe/internal/remote/postgres"
	"github.com/bakkerme/relaypipe/internal/retry"
	"github.com/bakkerme/relaypipe/internal/sources/rss"
	rssimpl "github.com/bakkerme/relaypipe/internal/sources/rss/impl"
)

const defaultRemoteRetryAttempts = 3

// Factory builds pipeline components from a parsed document. Fields left nil
// are constructed from configuration; tests inject fakes through them.
type Factory struct {
	Logger       *slog.Logger
	SMTPDefaults config.SMTPEnvConfig
	RSSFetcher   rss.Fetcher
	EmailSender  email.Sender
}

var _ config.ProcessorFactory = (*Factory)(nil)

func NewFromEnvConfig(logger *slog.Logger, env config.EnvConfig) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		Logger:       logger,
		SMTPDefaults: env.SMTP,
		RSSFetcher:   rssimpl.NewFetcher(env.RSS.HTTPTimeout, env.RSS.UserAgent),
		// Leave EmailSender nil so each notifier builds its own sender from the
		// merged document and env settings.
		EmailSender: nil,
	}
}

func (f *Factory) NewIntervalTrigger(interval time.Duration) (core.TriggerProcessor, error) {
	return trigger.NewIntervalProcessor(interval), nil
}

func (f *Factory) NewCronTrigger(cfg *config.CronTrigger) (core.TriggerProcessor, error) {
	return trigger.NewCronProcessor(cfg.Schedule, cfg.Timezone), nil
}

func (f *Factory) NewSQLiteSource(cfg *config.SQLiteSource) (core.SourceReader, error) {
	return source.NewSQLiteProcessor(cfg)
}

func (f *Factory) NewRSSSource(cfg *config.RSSSource) (core.SourceReader, error) {
	return source.NewRSSProcessor(cfg, f.RSSFetcher)
}

func (f *Factory) NewFileSource(cfg *config.FileSource) (core.SourceReader, error) {
	return source.NewFileProcessor(cfg)
}

func (f *Factory) NewItemRule(cfg *config.ItemRule) (core.ItemRule, error) {
	return rule.NewRuleProcessor(cfg)
}

func (f *Factory) NewSeenStore(cfg *config.SeenStore) (core.SeenStore, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("seen store config is required")
	case cfg.Memory != nil:
		return dedupe.NewMemoryStore(), nil
	case cfg.SQLite != nil:
		ttl, err := cfg.SQLite.SQLiteTTL()
		if err != nil {
			return nil, err
		}
		return dedupe.NewSQLiteStore(cfg.SQLite.DSN, cfg.SQLite.Table, ttl)
	case cfg.Badger != nil:
		return dedupe.NewBadgerStore(cfg.Badger.Path)
	default:
		return nil, fmt.Errorf("no seen store backend configured")
	}
}

func (f *Factory) NewRemoteStore(cfg *config.Remote) (core.RemoteStore, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("remote config is required")
	case cfg.Memory != nil:
		return memory.NewStore(), nil
	case cfg.Postgres != nil:
		attempts := cfg.Postgres.RetryAttempts
		if attempts <= 0 {
			attempts = defaultRemoteRetryAttempts
		}
		logger := f.logger()
		return postgres.NewStore(cfg.Postgres.DSN, cfg.Postgres.Table, retry.Config{
			Attempts:  attempts,
			BaseDelay: 200 * time.Millisecond,
			MaxDelay:  2 * time.Second,
			OnRetry: func(attempt int, err error) {
				logger.Warn("postgres remote operation failed, retrying", "attempt", attempt, "error", err)
			},
		})
	default:
		return nil, fmt.Errorf("no remote backend configured")
	}
}

func (f *Factory) NewEmailNotifier(cfg *config.EmailNotify) (core.Notifier, error) {
	merged := f.mergeEmailConfig(cfg)
	sender := f.EmailSender
	if sender == nil {
		smtpSender, err := smtp.NewSender(smtp.Config{
			Host:               merged.SMTPHost,
			Port:               merged.SMTPPort,
			Username:           merged.SMTPUser,
			Password:           merged.SMTPPassword,
			TLSMode:            merged.TLSMode,
			InsecureSkipVerify: f.SMTPDefaults.InsecureSkipVerify,
			Logger:             f.logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		sender = smtpSender
	}
	return output.NewEmailProcessor(merged, sender)
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Factory) mergeEmailConfig(cfg *config.EmailNotify) *config.EmailNotify {
	if cfg == nil {
		return &config.EmailNotify{}
	}
	merged := *cfg
	if merged.SMTPHost == "" {
		merged.SMTPHost = f.SMTPDefaults.Host
	}
	if merged.SMTPPort == 0 {
		merged.SMTPPort = f.SMTPDefaults.Port
	}
	if merged.SMTPUser == "" {
		merged.SMTPUser = f.SMTPDefaults.User
	}
	if merged.SMTPPassword == "" {
		merged.SMTPPassword = f.SMTPDefaults.Password
	}
	if merged.TLSMode == "" {
		merged.TLSMode = f.SMTPDefaults.TLSMode
	}
	return &merged
}
