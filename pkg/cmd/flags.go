package cmd

import (
	"time"

	"github.com/dukex/actiond/pkg/executors/email"
	"github.com/dukex/actiond/pkg/persistence/cache"
	"github.com/dukex/actiond/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are shared by every actiond binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Persistence URL (postgres://... or file:///path)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "cache-url",
			Usage:   "Redis URL for the action definition cache (disabled when empty)",
			Sources: cli.EnvVars("CACHE_URL"),
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "How long cached action definitions live",
			Value:   cache.DefaultTTL,
			Sources: cli.EnvVars("CACHE_TTL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing executor plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.DurationFlag{
			Name:    "executor-timeout",
			Usage:   "Upper bound for a single executor call",
			Value:   services.DefaultExecutorTimeout,
			Sources: cli.EnvVars("EXECUTOR_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-retry-count",
			Usage:   "Retries allowed per failed execution chain",
			Value:   services.DefaultMaxRetryCount,
			Sources: cli.EnvVars("MAX_RETRY_COUNT"),
		},
		&cli.IntFlag{
			Name:    "max-concurrency",
			Usage:   "Mapped actions run at once per dispatch (1 keeps execution order)",
			Value:   1,
			Sources: cli.EnvVars("MAX_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "stale-after",
			Usage:   "Allow retrying executions stuck in Running for longer than this (0 disables)",
			Sources: cli.EnvVars("STALE_AFTER"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for the SendEmail executor",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for outgoing email",
			Sources: cli.EnvVars("SMTP_FROM"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Sources: cli.EnvVars("SMTP_FROM_NAME"),
		},
		&cli.BoolFlag{
			Name:    "smtp-ssl",
			Usage:   "Use implicit TLS instead of STARTTLS",
			Sources: cli.EnvVars("SMTP_SSL"),
		},
		&cli.StringFlag{
			Name:    "email-templates",
			Usage:   "Directory or YAML file holding email templates",
			Sources: cli.EnvVars("EMAIL_TEMPLATES"),
		},
		&cli.StringFlag{
			Name:    "code-runner-url",
			Usage:   "Remote code runner for RunScript actions (local Lua only when empty)",
			Sources: cli.EnvVars("CODE_RUNNER_URL"),
		},
		&cli.StringFlag{
			Name:    "code-runner-token",
			Sources: cli.EnvVars("CODE_RUNNER_TOKEN"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// OptionsFromCommand reads CommonFlags back into Options.
func OptionsFromCommand(command *cli.Command) Options {
	return Options{
		DatabaseURL: command.String("database-url"),
		CacheURL:    command.String("cache-url"),
		CacheTTL:    command.Duration("cache-ttl"),
		Registry: RegistryConfig{
			PluginsPath: command.String("plugins-path"),
			SMTP: email.SMTPConfig{
				Host:     command.String("smtp-host"),
				Port:     int(command.Int("smtp-port")),
				Username: command.String("smtp-username"),
				Password: command.String("smtp-password"),
				From:     command.String("smtp-from"),
				FromName: command.String("smtp-from-name"),
				SSL:      command.Bool("smtp-ssl"),
			},
			EmailTemplates:  command.String("email-templates"),
			CodeRunnerURL:   command.String("code-runner-url"),
			CodeRunnerToken: command.String("code-runner-token"),
		},
		ExecutorTimeout: durationOr(command.Duration("executor-timeout"), services.DefaultExecutorTimeout),
		MaxRetryCount:   int(command.Int("max-retry-count")),
		MaxConcurrency:  int(command.Int("max-concurrency")),
		StaleAfter:      command.Duration("stale-after"),
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}

	return d
}
