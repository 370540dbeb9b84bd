// Package agent generates report section content with the Kimi model through
// the ADK runner. When no API key is configured, generation falls back to the
// CRM backend's content endpoint so the wizard keeps working either way.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	"reportflow_backend/internal/reports/content"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/ai/moonshot"
	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/logger"
	"reportflow_backend/platform/sanitize"
)

const appName = "section-generator"

// FallbackClient is the CRM content endpoint used when no model is configured.
type FallbackClient interface {
	GenerateContent(ctx context.Context, req crm.GenerateContentRequest) (string, error)
}

// SectionGenerator produces AI text for one report section at a time.
type SectionGenerator struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	fallback       FallbackClient
	eventBus       events.Bus
	log            *logger.Logger
	runMu          sync.Mutex
}

// NewSectionGenerator creates the generator. With AI disabled the ADK agent is
// not built and every run goes through the fallback client.
func NewSectionGenerator(cfg config.AIConfig, fallback FallbackClient, eventBus events.Bus, log *logger.Logger) (*SectionGenerator, error) {
	g := &SectionGenerator{
		fallback: fallback,
		eventBus: eventBus,
		log:      log,
	}
	if !cfg.IsAIEnabled() {
		log.Info("section generator running without model, using crm fallback")
		return g, nil
	}

	kimi := moonshot.NewModel(moonshot.Config{
		APIKey: cfg.GetMoonshotAPIKey(),
		Model:  cfg.GetMoonshotModel(),
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "SectionGenerator",
		Model:       kimi,
		Description: "Writes customer-facing report section content.",
		Instruction: sectionSystemPrompt(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create section generator agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create section generator runner: %w", err)
	}

	g.agent = adkAgent
	g.runner = r
	g.sessionService = sessionService
	return g, nil
}

// Generate produces content for one section of the wizard session and stores
// it on success. Only one generation runs at a time; a second request while
// one is in flight is rejected with a conflict instead of queueing.
func (g *SectionGenerator) Generate(ctx context.Context, ws *wizard.Session, sectionID, customPrompt string) (content.AIEntry, error) {
	cfg := ws.Config()
	if cfg.Type == "" {
		return content.AIEntry{}, apperr.Validation("choose a report type before generating content")
	}
	section, err := content.SectionFor(cfg.Type, sectionID)
	if err != nil {
		return content.AIEntry{}, apperr.Wrap(apperr.KindValidation, "unknown section", err)
	}
	lead, ok := ws.Directory().Selected()
	if !ok {
		return content.AIEntry{}, apperr.Validation("select a lead before generating content")
	}

	if !g.runMu.TryLock() {
		return content.AIEntry{}, apperr.Conflict("a generation is already running, wait for it to finish")
	}
	defer g.runMu.Unlock()

	prompt := buildSectionPrompt(section.Prompt, customPrompt, lead)

	text, err := g.run(ctx, ws.ID, cfg, sectionID, prompt, lead)
	if err != nil {
		g.log.UpstreamError("model", "section.generate", err)
		g.eventBus.Publish(ctx, events.SectionGenerationFailed{
			BaseEvent: events.NewBaseEvent(),
			SessionID: ws.ID,
			UserID:    ws.UserID,
			SectionID: sectionID,
			Reason:    err.Error(),
		})
		return content.AIEntry{}, apperr.Wrap(apperr.KindUnavailable, "content generation failed", err)
	}

	text = sanitize.Text(text)
	if text == "" {
		err := fmt.Errorf("model returned empty content for section %s", sectionID)
		g.eventBus.Publish(ctx, events.SectionGenerationFailed{
			BaseEvent: events.NewBaseEvent(),
			SessionID: ws.ID,
			UserID:    ws.UserID,
			SectionID: sectionID,
			Reason:    err.Error(),
		})
		return content.AIEntry{}, apperr.Wrap(apperr.KindUnavailable, "content generation failed", err)
	}

	entry := content.AIEntry{Text: text, AIGenerated: true}
	ws.SetAIEntry(sectionID, entry)

	g.eventBus.Publish(ctx, events.SectionGenerated{
		BaseEvent: events.NewBaseEvent(),
		SessionID: ws.ID,
		UserID:    ws.UserID,
		SectionID: sectionID,
	})
	return entry, nil
}

func (g *SectionGenerator) run(ctx context.Context, wizardID uuid.UUID, cfg content.Config, sectionID, prompt string, lead crm.Lead) (string, error) {
	if g.runner == nil {
		return g.fallback.GenerateContent(ctx, crm.GenerateContentRequest{
			ReportType:      cfg.Type,
			SectionID:       sectionID,
			Prompt:          prompt,
			PropertyAddress: propertyAddress(lead),
			PropertyType:    propertyType(lead),
		})
	}

	sessionID := uuid.New().String()
	userID := "section-" + wizardID.String()

	_, err := g.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("section generator: create session: %w", err)
	}
	defer func() {
		_ = g.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{{
			Text: prompt,
		}},
	}

	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var outputText strings.Builder
	for event, err := range g.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("section generator: run failed: %w", err)
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			outputText.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(outputText.String()), nil
}
