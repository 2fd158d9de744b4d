package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

// Sender delivers a composed digest: it always writes the HTML and
// Markdown copies to the output directory when one is configured, and
// emails the digest when SMTP settings are present. Returning nil means
// the digest reached at least one configured channel.
type Sender struct {
	cfg      config.EmailConfig
	renderer *Renderer
	dryRun   bool
	logger   *slog.Logger

	// Seam for tests; production uses smtp.SendMail (STARTTLS when the
	// server advertises it).
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.DigestDeliverer = (*Sender)(nil)

// NewSender wires delivery from config.
func NewSender(cfg config.EmailConfig, renderer *Renderer, log *slog.Logger) *Sender {
	return &Sender{
		cfg:      cfg,
		renderer: renderer,
		logger:   log,
		sendMail: smtp.SendMail,
	}
}

// SetDryRun suppresses email delivery. File copies are still written when
// an output directory is configured.
func (s *Sender) SetDryRun(v bool) {
	s.dryRun = v
}

// Deliver renders the digest and hands it to every configured channel.
func (s *Sender) Deliver(ctx context.Context, digest domain.Digest) error {
	if digest.PaperCount() == 0 {
		return fmt.Errorf("refusing to deliver an empty digest")
	}

	subject := s.renderer.Subject(digest)
	html, err := s.renderer.RenderHTML(digest)
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	markdown := s.renderer.RenderMarkdown(digest)

	wrote := ""
	if s.cfg.OutputDir != "" {
		wrote, err = s.writeFiles(digest.GeneratedAt, html, markdown)
		if err != nil {
			return err
		}
		s.debug("digest written", "path", wrote)
	}

	if s.dryRun {
		s.info("dry run, skipping email delivery", "subject", subject)
		return nil
	}
	if !s.smtpConfigured() {
		if wrote == "" {
			return fmt.Errorf("digest delivery is not configured: set email.smtpHost or email.outputDir")
		}
		s.debug("smtp not configured, digest written to file only")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("digest delivery cancelled: %w", err)
	}
	if err := s.send(subject, markdown, html); err != nil {
		return fmt.Errorf("send digest email: %w", err)
	}
	s.info("digest emailed", "to", s.cfg.To, "subject", subject)
	return nil
}

func (s *Sender) smtpConfigured() bool {
	return s.cfg.SMTPHost != "" && s.cfg.From != "" && s.cfg.To != ""
}

func (s *Sender) writeFiles(at time.Time, html, markdown string) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	stamp := at.Format("2006-01-02")

	htmlPath := filepath.Join(s.cfg.OutputDir, "digest_"+stamp+".html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write digest html: %w", err)
	}
	mdPath := filepath.Join(s.cfg.OutputDir, "digest_"+stamp+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("write digest markdown: %w", err)
	}
	return htmlPath, nil
}

func (s *Sender) send(subject, text, html string) error {
	recipients := splitRecipients(s.cfg.To)
	msg, err := buildMessage(s.cfg.From, s.cfg.To, subject, text, html)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	return s.sendMail(addr, auth, s.cfg.From, recipients, msg)
}

func splitRecipients(to string) []string {
	var recipients []string
	for _, part := range strings.Split(to, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

// buildMessage assembles a multipart/alternative MIME message with a
// Markdown text part and the HTML part, both quoted-printable so long
// abstract lines survive SMTP line limits.
func buildMessage(from, to, subject, text, html string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	}
	for _, part := range parts {
		pw, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("encode mime part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("close mime part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", w.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func (s *Sender) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Sender) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
