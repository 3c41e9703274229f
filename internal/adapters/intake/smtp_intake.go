package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// SMTPIntake is a mail gateway: it analyzes receipt images attached to
// incoming messages and relays the messages downstream with verdict headers
type SMTPIntake struct {
	analyzer ports.ReceiptAnalyzer
	logger   *zap.Logger
	cfg      config.SMTPIntakeConfig
	timeout  time.Duration
	server   *smtp.Server
	relay    func(sender string, recipients []string, data []byte) error
}

// NewSMTPIntake creates a new mail gateway. timeout bounds the analysis of
// one message.
func NewSMTPIntake(analyzer ports.ReceiptAnalyzer, logger *zap.Logger, cfg config.SMTPIntakeConfig, timeout time.Duration) *SMTPIntake {
	s := &SMTPIntake{
		analyzer: analyzer,
		logger:   logger,
		cfg:      cfg,
		timeout:  timeout,
	}
	s.relay = s.sendToRelay
	return s
}

// Start starts the SMTP server
func (s *SMTPIntake) Start() error {
	s.server = smtp.NewServer(&smtpBackend{intake: s})
	s.server.Addr = s.cfg.ListenAddress
	s.server.Domain = s.cfg.Domain
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = 30 * 1024 * 1024
	s.server.MaxRecipients = 50

	s.logger.Info("SMTP intake starting",
		zap.String("address", s.cfg.ListenAddress),
		zap.String("relay", s.cfg.RelayAddress))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop stops the SMTP server
func (s *SMTPIntake) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// summary is the verdict stamped on a relayed message
type summary struct {
	score   int
	verdict core.Verdict
	issues  int
	reports int
}

var verdictRank = map[core.Verdict]int{
	core.VerdictAuthentic:  0,
	core.VerdictUnclear:    1,
	core.VerdictSuspicious: 2,
	core.VerdictFraudulent: 3,
}

// summarize keeps the worst verdict and lowest score across attachments
func summarize(reports []*core.AnalysisReport) summary {
	sum := summary{score: 100, verdict: core.VerdictAuthentic}
	for _, r := range reports {
		a := r.Assessment
		sum.score = min(sum.score, a.TrustScore)
		if verdictRank[a.Verdict] > verdictRank[sum.verdict] {
			sum.verdict = a.Verdict
		}
		sum.issues += len(a.Issues)
		sum.reports++
	}
	return sum
}

// process analyzes every image in raw and returns the message to relay
func (s *SMTPIntake) process(ctx context.Context, raw []byte) ([]byte, *summary, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse message: %w", err)
	}

	images, err := extractImages(msg)
	if err != nil {
		s.logger.Warn("Failed to walk message parts", zap.Error(err))
	}
	s.logger.Debug("Received message",
		zap.String("subject", decodeHeader(msg.Header.Get("Subject"))),
		zap.Int("images", len(images)))

	var reports []*core.AnalysisReport
	for _, img := range images {
		report, err := s.analyzer.AnalyzeImage(ctx, core.ImageInput{
			ReceiptID: uuid.NewString(),
			Path:      img.Filename,
			Data:      img.Data,
			MimeType:  img.MimeType,
		})
		if err != nil {
			s.logger.Error("Failed to analyze attachment",
				zap.String("filename", img.Filename),
				zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}

	var out bytes.Buffer
	var sum *summary
	if len(reports) > 0 {
		v := summarize(reports)
		sum = &v
		fmt.Fprintf(&out, "%s: %d\r\n", s.cfg.Headers.Score, v.score)
		fmt.Fprintf(&out, "%s: %s\r\n", s.cfg.Headers.Verdict, v.verdict)
		fmt.Fprintf(&out, "%s: %d\r\n", s.cfg.Headers.Issues, v.issues)
	}
	for key, values := range msg.Header {
		if isOwnHeader(key, s.cfg.Headers) {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&out, "%s: %s\r\n", key, value)
		}
	}
	out.WriteString("\r\n")
	out.Write(splitHeaderBody(raw))

	return out.Bytes(), sum, nil
}

// isOwnHeader reports whether key is one of the verdict headers, which are
// never trusted from upstream
func isOwnHeader(key string, h config.SMTPHeaders) bool {
	return strings.EqualFold(key, h.Score) || strings.EqualFold(key, h.Verdict) || strings.EqualFold(key, h.Issues)
}

// sendToRelay hands the processed message to the downstream MTA
func (s *SMTPIntake) sendToRelay(sender string, recipients []string, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", s.cfg.RelayAddress, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			s.logger.Warn("RCPT TO failed for recipient", zap.String("recipient", rcpt), zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

type smtpBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.intake.timeout)
	defer cancel()

	out, sum, err := s.intake.process(ctx, raw)
	if err != nil {
		s.intake.logger.Error("Failed to process message", zap.String("sender", s.sender), zap.Error(err))
		return err
	}

	if sum != nil && sum.verdict == core.VerdictFraudulent && s.intake.cfg.RejectFraudulent {
		s.intake.logger.Info("Rejecting message with fraudulent receipt",
			zap.String("sender", s.sender),
			zap.Int("trust_score", sum.score))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Rejected: fraudulent receipt (trust score " + strconv.Itoa(sum.score) + ")",
		}
	}

	if err := s.intake.relay(s.sender, s.recipients, out); err != nil {
		s.intake.logger.Error("Failed to relay message", zap.String("sender", s.sender), zap.Error(err))
		return err
	}

	fields := []zap.Field{zap.String("sender", s.sender)}
	if sum != nil {
		fields = append(fields,
			zap.Int("receipts", sum.reports),
			zap.Int("trust_score", sum.score),
			zap.String("verdict", string(sum.verdict)))
	}
	s.intake.logger.Info("Processed message", fields...)
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
