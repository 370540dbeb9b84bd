// Package reports is the bounded context for report composition and
// publishing: the wizard session flow, AI section generation, and the save
// and send pipeline.
package reports

import (
	"fmt"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	apphttp "reportflow_backend/internal/http"
	"reportflow_backend/internal/reports/agent"
	"reportflow_backend/internal/reports/handler"
	"reportflow_backend/internal/reports/publish"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/logger"
	"reportflow_backend/platform/validator"
)

// Config is the slice of application configuration the module needs.
type Config interface {
	config.AIConfig
	config.MinIOConfig
	config.WizardConfig
}

// Module is the reports bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	store   *wizard.Store
}

// NewModule wires the wizard service, section generator, and publish
// pipeline. The thumbnailer, object store, and mail sender may be nil when
// the matching infrastructure is not configured.
func NewModule(
	cfg Config,
	crmClient *crm.Client,
	thumbs publish.Thumbnailer,
	objStore publish.ObjectStore,
	mail publish.EmailSender,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) (*Module, error) {
	store := wizard.NewStore(cfg.GetWizardSessionTTL(), log)
	wizardSvc := wizard.NewService(store, crmClient, bus, log)

	generator, err := agent.NewSectionGenerator(cfg, crmClient, bus, log)
	if err != nil {
		return nil, fmt.Errorf("reports module: %w", err)
	}

	pipeline := publish.New(crmClient, thumbs, objStore, mail, cfg, bus, log)

	return &Module{
		handler: handler.New(wizardSvc, generator, pipeline, val),
		store:   store,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reports"
}

// RegisterRoutes mounts report routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/reports")
	m.handler.RegisterRoutes(group)
}

// Close stops the session store's eviction loop.
func (m *Module) Close() {
	m.store.Close()
}

var _ apphttp.Module = (*Module)(nil)
