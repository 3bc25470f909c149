// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/actiond/pkg/executors/email"
	"github.com/dukex/actiond/pkg/executors/httpapi"
	"github.com/dukex/actiond/pkg/executors/script"
	"github.com/dukex/actiond/pkg/registry"
)

// RegistryConfig configures the native executors.
type RegistryConfig struct {
	PluginsPath string

	SMTP           email.SMTPConfig
	EmailTemplates string

	CodeRunnerURL   string
	CodeRunnerToken string
}

func registerExecutorPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) error {
	_, err := reg.LoadExecutorPlugins(ctx, pluginsPath)

	return err
}

func registerNativeExecutors(ctx context.Context, log *slog.Logger, reg *registry.Registry, config RegistryConfig) error {
	reg.Register(httpapi.NewExecutorFactory(&http.Client{}))

	var remote script.Runner
	if config.CodeRunnerURL != "" {
		remote = script.NewRemoteRunner(config.CodeRunnerURL, config.CodeRunnerToken,
			&http.Client{Timeout: 30 * time.Second}, log)
	}

	reg.Register(script.NewExecutorFactory(remote))

	var (
		store  email.TemplateStore
		sender email.Sender
	)

	if config.EmailTemplates != "" {
		fileStore, err := email.NewFileTemplateStore(config.EmailTemplates)
		if err != nil {
			return err
		}

		store = fileStore
	}

	if config.SMTP.Host != "" {
		sender = email.NewSMTPSender(config.SMTP)
	}

	if store == nil || sender == nil {
		log.WarnContext(ctx, "SendEmail executor is not configured; email actions will fail",
			"templates", config.EmailTemplates != "", "smtp", config.SMTP.Host != "")
	}

	reg.Register(email.NewExecutorFactory(store, sender))

	return nil
}

// NewRegistry registers plugins first so a native executor wins on a clash.
func NewRegistry(ctx context.Context, log *slog.Logger, config RegistryConfig) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if err := registerExecutorPlugins(ctx, reg, config.PluginsPath); err != nil {
		return nil, fmt.Errorf("failed to load executor plugins: %w", err)
	}

	if err := registerNativeExecutors(ctx, log, reg, config); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "Executor registry ready", "action_types", reg.Types())

	return reg, nil
}
