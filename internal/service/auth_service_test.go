package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"snipchat/internal/feed"
	"snipchat/internal/model"
)

type recordingMailer struct {
	emails []EmailNotification
}

func (m *recordingMailer) PublishEmail(_ context.Context, n EmailNotification) {
	m.emails = append(m.emails, n)
}

func TestSignUpSendsWelcomeEmail(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{}}
	mailer := &recordingMailer{}
	svc := NewAuthService(users, nil, feed.New(zap.NewNop()), mailer, AuthConfig{OtpIssuer: "Snipchat"}, zap.NewNop())

	user, err := svc.SignUp(context.Background(), "mel@example.com", "correct horse battery", "Mel", "Ortiz")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.OtpSecret == "" {
		t.Fatal("otp secret not provisioned at sign-up")
	}

	if len(mailer.emails) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(mailer.emails))
	}
	if mailer.emails[0].To != "mel@example.com" {
		t.Fatalf("email to = %q, want mel@example.com", mailer.emails[0].To)
	}
	if mailer.emails[0].Subject == "" || mailer.emails[0].Body == "" {
		t.Fatalf("empty welcome email: %+v", mailer.emails[0])
	}
}

func TestSignUpWithoutMailer(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{}}
	svc := NewAuthService(users, nil, feed.New(zap.NewNop()), nil, AuthConfig{OtpIssuer: "Snipchat"}, zap.NewNop())

	if _, err := svc.SignUp(context.Background(), "noa@example.com", "correct horse battery", "Noa", "Kim"); err != nil {
		t.Fatalf("SignUp without a mailer: %v", err)
	}
}
