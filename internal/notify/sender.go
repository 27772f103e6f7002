// Package notify defines the outbound mail boundary. Actual transport is an
// external collaborator; the core only ever calls through Sender.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender delivers security mail. Implementations must not be called from
// inside authorization decisions; callers treat delivery failures as
// non-fatal except for OTP issuance, where the user cannot proceed without
// the code.
type Sender interface {
	// SendOTP delivers a one-time code for the given purpose.
	SendOTP(ctx context.Context, email, code, purpose string) error
	// SendLoginAlert notifies the account of a new login.
	SendLoginAlert(ctx context.Context, email, ip, userAgent string, at time.Time) error
	// SendShareNotice notifies a recipient that a file was shared with them.
	SendShareNotice(ctx context.Context, toEmail, fromEmail string) error
}

// LogSender writes mail to the log instead of sending it. Development and
// test transport; mirrors the console fallback of real deployments.
type LogSender struct{ log *zap.Logger }

// NewLogSender constructs a log-backed sender.
func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) SendOTP(_ context.Context, email, code, purpose string) error {
	s.log.Info("otp mail",
		zap.String("to", email),
		zap.String("purpose", purpose),
		zap.String("code", code),
	)
	return nil
}

func (s *LogSender) SendLoginAlert(_ context.Context, email, ip, userAgent string, at time.Time) error {
	s.log.Info("login alert mail",
		zap.String("to", email),
		zap.String("ip", ip),
		zap.String("user_agent", userAgent),
		zap.Time("at", at),
	)
	return nil
}

func (s *LogSender) SendShareNotice(_ context.Context, toEmail, fromEmail string) error {
	s.log.Info("share notice mail",
		zap.String("to", toEmail),
		zap.String("from", fromEmail),
	)
	return nil
}
