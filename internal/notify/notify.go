// Package notify sends operator mail for pipeline milestones. Delivery is
// best-effort: the pipeline never blocks or fails on a mail error.
package notify

import (
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// Mailer sends plain-text notifications over SMTP.
type Mailer struct {
	addr   string
	from   string
	to     []string
	logger *slog.Logger
}

func NewMailer(host, port, from string, to []string, logger *slog.Logger) *Mailer {
	return &Mailer{
		addr:   net.JoinHostPort(host, port),
		from:   from,
		to:     to,
		logger: logger,
	}
}

// ProcessFinished announces a completed upload cycle, naming the extract that
// was applied and the snapshot that became the new baseline.
func (m *Mailer) ProcessFinished(extract, snapshot string) error {
	body := fmt.Sprintf(
		"The registry synchronization run has finished.\n\nApplied extract: %s\nNew baseline snapshot: %s\n",
		orNone(extract), orNone(snapshot))
	return m.send("Registry synchronization finished", body)
}

// InterruptionDetected announces that a prior run died before serializing its
// baseline and is being replayed.
func (m *Mailer) InterruptionDetected(extract, snapshot string) error {
	body := fmt.Sprintf(
		"An interrupted synchronization run was detected at startup and is being resumed.\n\nPending extract: %s\nLast baseline snapshot: %s\n",
		orNone(extract), orNone(snapshot))
	return m.send("Registry synchronization interrupted", body)
}

func (m *Mailer) send(subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(m.to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, nil, m.from, m.to, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail %q: %w", subject, err)
	}
	m.logger.Info("notification sent", "subject", subject, "recipients", len(m.to))
	return nil
}

func orNone(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}
