package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true, Port: 587}); err == nil {
		t.Fatal("expected error for missing host")
	}

	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error for missing port")
	}

	if _, err := NewSMTPMailer(SMTPSettings{Enabled: false}); err != nil {
		t.Fatalf("disabled mailer should not validate host/port: %v", err)
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	impl, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected *smtpMailer, got %T", mailer)
	}
	if impl.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout of 10s, got %v", impl.cfg.Timeout)
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{To: "a@x.com", Subject: "hi", Body: "body"})
	if !errors.Is(err, ErrSMTPDisabled) {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	mailer := &smtpMailer{cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}}

	if err := mailer.Send(context.Background(), Message{Subject: "hi"}); err == nil {
		t.Fatal("expected error for missing recipient")
	}

	mailer.cfg.From = ""
	if err := mailer.Send(context.Background(), Message{To: "a@x.com"}); err == nil {
		t.Fatal("expected error for missing sender")
	}

	mailer.cfg.From = "not an address"
	if err := mailer.Send(context.Background(), Message{To: "a@x.com"}); err == nil {
		t.Fatal("expected error for malformed from address")
	}

	mailer.cfg.From = "noreply@example.com"
	if err := mailer.Send(context.Background(), Message{To: "not an address"}); err == nil {
		t.Fatal("expected error for malformed recipient address")
	}
}

type fakeSMTPClient struct {
	mailFrom string
	rcptTo   []string
	data     bytes.Buffer
	quit     bool
	authed   bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTPClient) Mail(from string) error { f.mailFrom = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error   { f.rcptTo = append(f.rcptTo, to); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}
func (f *fakeSMTPClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                    { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { f.authed = true; return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func TestSMTPMailerSendWritesMessage(t *testing.T) {
	fake := &fakeSMTPClient{}
	server, client := net.Pipe()
	defer server.Close()

	mailer := &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com", Username: "user"},
		dialFn: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			return client, fake, nil
		},
		authFn: defaultAuthFunc,
	}

	err := mailer.Send(context.Background(), Message{
		To:      "a@x.com",
		Subject: "Email Verification",
		Body:    "click the link",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if fake.mailFrom != "noreply@example.com" {
		t.Fatalf("unexpected mail from: %q", fake.mailFrom)
	}
	if len(fake.rcptTo) != 1 || fake.rcptTo[0] != "a@x.com" {
		t.Fatalf("unexpected rcpt to: %v", fake.rcptTo)
	}
	if !fake.authed {
		t.Fatal("expected auth to run when username is configured")
	}
	if !fake.quit {
		t.Fatal("expected Quit after delivery")
	}

	raw := fake.data.String()
	for _, want := range []string{
		"From: noreply@example.com",
		"To: a@x.com",
		"Subject: Email Verification",
		"\r\n\r\nclick the link",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSMTPMailerSkipsAuthWithoutUsername(t *testing.T) {
	fake := &fakeSMTPClient{}
	server, client := net.Pipe()
	defer server.Close()

	mailer := &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com"},
		dialFn: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			return client, fake, nil
		},
		authFn: defaultAuthFunc,
	}

	if err := mailer.Send(context.Background(), Message{To: "a@x.com", Subject: "hi", Body: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fake.authed {
		t.Fatal("auth should be skipped when no username is configured")
	}
}

func TestFormatMessage(t *testing.T) {
	raw := formatMessage("noreply@example.com", "a@x.com", "Subject\r\nBreak", "hello")

	if !strings.Contains(raw, "Subject: Subject  Break") {
		t.Fatalf("subject header not sanitised:\n%s", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nhello") {
		t.Fatalf("body not separated from headers:\n%s", raw)
	}
}
