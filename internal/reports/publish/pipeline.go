// Package publish persists and delivers finished reports: save to the CRM,
// render the PDF, issue a share link, and send to the lead. Stages are
// ordered by how much their failure matters; cosmetic stages degrade, the
// save, render, and delivery stages abort.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	"reportflow_backend/internal/pdf"
	"reportflow_backend/internal/reports/content"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/logger"
	"reportflow_backend/platform/phone"
)

// CRMClient is the slice of the CRM backend the pipeline needs.
type CRMClient interface {
	CreateReport(ctx context.Context, req crm.SaveReportRequest) (*crm.Report, error)
	UpdateReport(ctx context.Context, id string, req crm.SaveReportRequest) (*crm.Report, error)
	GeneratePDF(ctx context.Context, id string) ([]byte, error)
	CreateShareLink(ctx context.Context, id string) (*crm.ShareLink, error)
	SendReport(ctx context.Context, id string, req crm.SendRequest) error
}

// Thumbnailer captures a PNG snapshot of the report preview HTML.
type Thumbnailer interface {
	Screenshot(ctx context.Context, indexHTML []byte, opts pdf.ScreenshotOpts) ([]byte, error)
}

// ObjectStore persists report artifacts.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, folder, fileName, contentType string, data []byte) (string, error)
}

// EmailSender delivers the finished report by email.
type EmailSender interface {
	SendReportEmail(ctx context.Context, toEmail, leadName, companyName, reportTitle, shareURL string, pdfData []byte) error
}

// Delivery methods accepted by Send.
const (
	MethodEmail = "email"
	MethodSMS   = "sms"
)

// Result summarizes a completed send.
type Result struct {
	ReportID  string `json:"reportId"`
	Method    string `json:"method"`
	Recipient string `json:"recipient"`
	ShareURL  string `json:"shareUrl,omitempty"`
}

// Pipeline runs the save and send flows. Thumbnailer, ObjectStore, and
// EmailSender are optional; a nil dependency disables its stage.
type Pipeline struct {
	crm      CRMClient
	thumbs   Thumbnailer
	store    ObjectStore
	mail     EmailSender
	buckets  config.MinIOConfig
	eventBus events.Bus
	log      *logger.Logger
}

// New creates the publish pipeline.
func New(crmClient CRMClient, thumbs Thumbnailer, store ObjectStore, mail EmailSender, buckets config.MinIOConfig, eventBus events.Bus, log *logger.Logger) *Pipeline {
	return &Pipeline{
		crm:      crmClient,
		thumbs:   thumbs,
		store:    store,
		mail:     mail,
		buckets:  buckets,
		eventBus: eventBus,
		log:      log,
	}
}

// Save persists the session's current document to the CRM. The first save
// creates the report and records the assigned ID on the session; later saves
// update in place. The thumbnail is cosmetic: its stage never fails a save.
// No network call is made before the session passes validation.
func (p *Pipeline) Save(ctx context.Context, ws *wizard.Session) (*crm.Report, error) {
	return p.save(ctx, ws, false)
}

func (p *Pipeline) save(ctx context.Context, ws *wizard.Session, silent bool) (*crm.Report, error) {
	lead, ok := ws.Directory().Selected()
	if !ok {
		return nil, apperr.Validation("select a lead before saving")
	}

	doc, err := ws.Resolve()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "report is not ready to save", err)
	}

	cfg := ws.Config()
	req := crm.SaveReportRequest{
		LeadID:          lead.Key(),
		Type:            doc.Type,
		Title:           doc.Title,
		Sections:        make([]crm.ReportSection, 0, len(doc.Sections)),
		Content:         make(map[string]string, len(doc.Sections)),
		BusinessProfile: ws.Profile(),
		Branding:        cfg.Branding,
		LayoutStyle:     cfg.LayoutStyle,
	}
	if req.Branding == nil && req.BusinessProfile != nil {
		req.Branding = &req.BusinessProfile.Branding
	}
	for _, section := range doc.Sections {
		req.Sections = append(req.Sections, crm.ReportSection{
			ID:      section.ID,
			Title:   section.Title,
			Body:    section.Body,
			Enabled: true,
		})
		req.Content[section.ID] = section.Body
	}

	if key := p.captureThumbnail(ctx, ws, doc); key != "" {
		req.ThumbnailData = &key
	}

	var report *crm.Report
	created := ws.ReportID() == ""
	if created {
		report, err = p.crm.CreateReport(ctx, req)
	} else {
		report, err = p.crm.UpdateReport(ctx, ws.ReportID(), req)
	}
	if err != nil {
		p.log.PipelineStage("save", ws.ReportID(), err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "saving the report failed", err)
	}
	if created && report.ID != "" {
		ws.SetReportID(report.ID)
	}
	p.log.PipelineStage("save", report.ID, nil)

	if !silent {
		p.eventBus.Publish(ctx, events.ReportSaved{
			BaseEvent: events.NewBaseEvent(),
			SessionID: ws.ID,
			UserID:    ws.UserID,
			ReportID:  report.ID,
			LeadID:    lead.Key(),
			Title:     doc.Title,
			Created:   created,
		})
	}
	return report, nil
}

// captureThumbnail renders the preview and stores a PNG snapshot, returning
// the object key or empty when the stage is disabled or fails.
func (p *Pipeline) captureThumbnail(ctx context.Context, ws *wizard.Session, doc content.Document) string {
	if p.thumbs == nil || p.store == nil {
		return ""
	}

	branding := ws.Config().Branding
	if branding == nil {
		if profile := ws.Profile(); profile != nil {
			branding = &profile.Branding
		}
	}

	html, err := content.RenderHTML(doc, branding)
	if err != nil {
		p.log.PipelineStage("thumbnail", ws.ReportID(), err)
		return ""
	}
	png, err := p.thumbs.Screenshot(ctx, []byte(html), pdf.ThumbnailOpts())
	if err != nil {
		p.log.PipelineStage("thumbnail", ws.ReportID(), err)
		return ""
	}
	key, err := p.store.Upload(ctx, p.buckets.GetMinioBucketReportThumbnails(), ws.ID.String(), "thumbnail.png", "image/png", png)
	if err != nil {
		p.log.PipelineStage("thumbnail", ws.ReportID(), err)
		return ""
	}
	p.log.PipelineStage("thumbnail", ws.ReportID(), nil)
	return key
}

// Send runs the full publish flow: save, render the PDF, issue a share link,
// and deliver. Save, render, and delivery failures abort; the share link and
// artifact copies degrade with a warning.
func (p *Pipeline) Send(ctx context.Context, ws *wizard.Session, method, recipient string) (*Result, error) {
	lead, ok := ws.Directory().Selected()
	if !ok {
		return nil, apperr.Validation("select a lead before sending")
	}
	method, recipient, err := resolveDelivery(method, recipient, lead)
	if err != nil {
		return nil, err
	}

	report, err := p.save(ctx, ws, true)
	if err != nil {
		p.publishSendFailed(ctx, ws, "save", err)
		return nil, err
	}

	pdfBytes, err := p.crm.GeneratePDF(ctx, report.ID)
	if err != nil {
		p.log.PipelineStage("render", report.ID, err)
		p.publishSendFailed(ctx, ws, "render", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "rendering the report PDF failed", err)
	}
	p.log.PipelineStage("render", report.ID, nil)
	p.archivePDF(ctx, ws, report.ID, pdfBytes)

	shareURL := p.createShareLink(ctx, ws, report.ID)

	if err := p.deliver(ctx, ws, report, lead, method, recipient, shareURL, pdfBytes); err != nil {
		p.log.PipelineStage("deliver", report.ID, err)
		p.publishSendFailed(ctx, ws, "deliver", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "delivering the report failed", err)
	}
	p.log.PipelineStage("deliver", report.ID, nil)

	p.eventBus.Publish(ctx, events.ReportSent{
		BaseEvent: events.NewBaseEvent(),
		SessionID: ws.ID,
		UserID:    ws.UserID,
		ReportID:  report.ID,
		LeadID:    lead.Key(),
		Method:    method,
		ShareURL:  shareURL,
	})

	return &Result{
		ReportID:  report.ID,
		Method:    method,
		Recipient: recipient,
		ShareURL:  shareURL,
	}, nil
}

// resolveDelivery validates the method and fills the recipient from the lead
// when none was given. Phone numbers are normalized to E.164.
func resolveDelivery(method, recipient string, lead crm.Lead) (string, string, error) {
	switch method {
	case "", MethodEmail:
		if recipient == "" {
			recipient = lead.Email
		}
		if recipient == "" {
			return "", "", apperr.Validation("the lead has no email address on file")
		}
		return MethodEmail, recipient, nil
	case MethodSMS:
		if recipient == "" {
			recipient = lead.Phone
		}
		if recipient == "" {
			return "", "", apperr.Validation("the lead has no phone number on file")
		}
		return MethodSMS, phone.NormalizeE164(recipient), nil
	default:
		return "", "", apperr.Validation(fmt.Sprintf("unsupported delivery method %q", method))
	}
}

// archivePDF keeps a copy of the rendered PDF in object storage. Best effort.
func (p *Pipeline) archivePDF(ctx context.Context, ws *wizard.Session, reportID string, pdfBytes []byte) {
	if p.store == nil {
		return
	}
	if _, err := p.store.Upload(ctx, p.buckets.GetMinioBucketReportPDFs(), reportID, "report.pdf", "application/pdf", pdfBytes); err != nil {
		p.log.PipelineStage("archive", reportID, err)
		return
	}
	p.log.PipelineStage("archive", reportID, nil)
}

// createShareLink asks the CRM for a public link and stores its QR code.
// Failures leave the send flow intact; the report just ships without a link.
func (p *Pipeline) createShareLink(ctx context.Context, ws *wizard.Session, reportID string) string {
	share, err := p.crm.CreateShareLink(ctx, reportID)
	if err != nil {
		p.log.PipelineStage("share", reportID, err)
		return ""
	}
	p.log.PipelineStage("share", reportID, nil)

	qrKey := p.storeQRCode(ctx, reportID, share.ShareURL)

	p.eventBus.Publish(ctx, events.ShareLinkCreated{
		BaseEvent: events.NewBaseEvent(),
		SessionID: ws.ID,
		UserID:    ws.UserID,
		ReportID:  reportID,
		ShareURL:  share.ShareURL,
		QRCodeKey: qrKey,
	})
	return share.ShareURL
}

// storeQRCode renders the share URL as a QR code image in object storage.
func (p *Pipeline) storeQRCode(ctx context.Context, reportID, shareURL string) string {
	if p.store == nil || shareURL == "" {
		return ""
	}
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		p.log.PipelineStage("qrcode", reportID, err)
		return ""
	}
	key, err := p.store.Upload(ctx, p.buckets.GetMinioBucketShareQRCodes(), reportID, "share-qr.png", "image/png", png)
	if err != nil {
		p.log.PipelineStage("qrcode", reportID, err)
		return ""
	}
	return key
}

// deliver sends the report. Email goes through our own SMTP sender when one
// is configured; everything else is delegated to the CRM's send endpoint.
func (p *Pipeline) deliver(ctx context.Context, ws *wizard.Session, report *crm.Report, lead crm.Lead, method, recipient, shareURL string, pdfBytes []byte) error {
	if method == MethodEmail && p.mail != nil {
		companyName := ""
		if profile := ws.Profile(); profile != nil {
			companyName = profile.CompanyName
		}
		return p.mail.SendReportEmail(ctx, recipient, firstName(lead.Name), companyName, report.Title, shareURL, pdfBytes)
	}

	return p.crm.SendReport(ctx, report.ID, crm.SendRequest{
		LeadID:    lead.Key(),
		Method:    method,
		Recipient: recipient,
	})
}

func (p *Pipeline) publishSendFailed(ctx context.Context, ws *wizard.Session, stage string, err error) {
	p.eventBus.Publish(ctx, events.ReportSendFailed{
		BaseEvent: events.NewBaseEvent(),
		SessionID: ws.ID,
		UserID:    ws.UserID,
		ReportID:  ws.ReportID(),
		Stage:     stage,
		Reason:    err.Error(),
	})
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
