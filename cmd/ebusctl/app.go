package main

import (
	"fmt"

	"github.com/danmuck/ebusctl/internal/bus"
	"github.com/danmuck/ebusctl/internal/catalog"
	"github.com/danmuck/ebusctl/internal/config"
	"github.com/danmuck/ebusctl/internal/logging"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

type app struct {
	cfg     config.Config
	handler *bus.Handler
}

func newApp(configPath, logLevel string) (*app, error) {
	logging.ConfigureRuntime()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	templates := datafield.NewTemplates()
	registry := message.NewRegistry()
	var reports []catalog.Report
	if cfg.Templates != "" {
		report, err := catalog.LoadTemplates(cfg.Templates, templates)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	loaded, err := catalog.Load(cfg.Catalog, templates, registry)
	reports = append(reports, loaded...)
	if err != nil {
		return nil, err
	}
	skipped := 0
	for _, r := range reports {
		skipped += len(r.Skipped)
	}
	log.Info().
		Int("files", len(reports)).
		Int("templates", templates.Len()).
		Int("messages", registry.Len()).
		Int("skipped", skipped).
		Msg("catalog loaded")

	handler, err := bus.NewHandler(registry, bus.Config{Address: cfg.Address, Separator: cfg.Separator})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, handler: handler}, nil
}
