package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-taskpulse/internal/config"
	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/infrastructure/metrics"
	"github.com/go-taskpulse/internal/pkg/secret"
	"github.com/sony/gobreaker/v2"
)

// Server is one outbound SMTP endpoint.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Secure selects implicit TLS (usually port 465). Otherwise STARTTLS is used when offered.
	Secure bool
}

func (s Server) addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// deliverFunc performs the SMTP conversation. Tests replace it.
type deliverFunc func(ctx context.Context, srv Server, to string, msg []byte) error

// Mailer sends emails through the default server, guarded by a circuit
// breaker, or through the recipient's own server when they configured one.
type Mailer struct {
	def     Server
	breaker *gobreaker.CircuitBreaker[struct{}]
	box     *secret.Box
	deliver deliverFunc
	logger  *slog.Logger
}

// NewMailer builds the mailer. box opens sealed override passwords; a nil or
// keyless box makes every override send fail with secret.ErrNoKey.
func NewMailer(cfg *config.Config, box *secret.Box, logger *slog.Logger) *Mailer {
	port, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		port = 25
	}
	return newMailer(Server{
		Host:     cfg.SMTPHost,
		Port:     port,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Secure:   port == 465,
	}, box, deliver, logger)
}

func newMailer(def Server, box *secret.Box, d deliverFunc, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mailer")
	return &Mailer{
		def: def,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "smtp-default",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("smtp circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		box:     box,
		deliver: d,
		logger:  logger,
	}
}

// Send delivers e. It does not retry.
func (m *Mailer) Send(ctx context.Context, e domain.Email) error {
	if e.Override != nil {
		err := m.sendOverride(ctx, e)
		metrics.RecordEmail(true, err)
		return err
	}
	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.deliver(ctx, m.def, e.To, buildMessage(m.def.From, e))
	})
	metrics.RecordEmail(false, err)
	return err
}

func (m *Mailer) sendOverride(ctx context.Context, e domain.Email) error {
	o := e.Override
	password, err := m.box.Open(o.SealedPassword)
	if err != nil {
		return fmt.Errorf("open smtp override password: %w", err)
	}
	srv := Server{
		Host:     o.Host,
		Port:     o.Port,
		Username: o.Username,
		Password: password,
		From:     o.From,
		Secure:   o.Secure,
	}
	return m.deliver(ctx, srv, e.To, buildMessage(srv.From, e))
}

func buildMessage(from string, e domain.Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + e.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", e.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(e.HTML)
	return []byte(b.String())
}

// deliver speaks SMTP to srv. Implicit TLS is used when srv.Secure is set.
func deliver(ctx context.Context, srv Server, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	var conn net.Conn
	var err error
	if srv.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: srv.Host}}).DialContext(ctx, "tcp", srv.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", srv.addr())
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", srv.addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, srv.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !srv.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: srv.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if srv.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", srv.Username, srv.Password, srv.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(srv.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}
