package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"snipchat/internal/feed"
	"snipchat/internal/model"
	"snipchat/internal/repo"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOtpCode     = errors.New("invalid one-time code")
	ErrOtpRequired        = errors.New("one-time code verification required")
)

const bcryptCost = 14

// AuthConfig carries the auth service's signing material and token
// lifetimes. Keys come from the environment, never the config file.
type AuthConfig struct {
	AccessKey  []byte
	RefreshKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	OtpIssuer  string
}

// AuthService implements sign-up, sign-in, sign-out, session lookup and
// one-time-code verification. Refresh tokens are held in Redis keyed by
// user id; auth state changes are published on the change feed.
type AuthService struct {
	users   repo.UserRepository
	rdb     *redis.Client
	changes *feed.Feed
	mailer  Mailer
	cfg     AuthConfig
	logger  *zap.Logger
}

func NewAuthService(users repo.UserRepository, rdb *redis.Client, changes *feed.Feed, mailer Mailer, cfg AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:   users,
		rdb:     rdb,
		changes: changes,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
	}
}

func refreshKey(userID string) string {
	return "refresh:" + userID
}

// SignUp provisions a new account: bcrypt password hash plus a TOTP secret
// minted up front so the user can enable 2FA later without re-enrollment.
func (s *AuthService) SignUp(ctx context.Context, email, password, firstName, lastName string) (*model.User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.OtpIssuer,
		AccountName: email,
		SecretSize:  15,
	})
	if err != nil {
		return nil, fmt.Errorf("generate otp secret: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		OtpSecret:    key.Secret(),
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		s.mailer.PublishEmail(ctx, EmailNotification{
			To:      user.Email,
			Subject: "Welcome to Snipchat",
			Body:    fmt.Sprintf("Hi %s, your Snipchat account is ready.", user.FirstName),
		})
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return user, nil
}

// SignIn checks credentials and issues a token pair. When the account has
// 2FA enabled the pair carries the otp-pending claim and the caller must
// follow with VerifyOtp before the session is usable.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Tokens, *model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, user.ID, user.OtpEnabled)
	if err != nil {
		return nil, nil, err
	}

	if !user.OtpEnabled {
		s.changes.Insert(feed.RelationAuth, user.ID, model.AuthEvent{UserID: user.ID, Event: model.AuthEventSignIn})
	}
	s.logger.Info("user signed in", zap.String("user_id", user.ID), zap.Bool("otp_pending", user.OtpEnabled))
	return tokens, user, nil
}

// VerifyOtp validates a one-time code for an otp-pending session and issues
// the full token pair.
func (s *AuthService) VerifyOtp(ctx context.Context, userID, code string) (*Tokens, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !totp.Validate(code, user.OtpSecret) {
		return nil, ErrInvalidOtpCode
	}

	tokens, err := s.issueTokens(ctx, user.ID, false)
	if err != nil {
		return nil, err
	}

	s.changes.Insert(feed.RelationAuth, user.ID, model.AuthEvent{UserID: user.ID, Event: model.AuthEventSignIn})
	return tokens, nil
}

// Refresh exchanges a valid, still-registered refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	meta, err := ParseToken(refreshToken, s.cfg.RefreshKey)
	if err != nil {
		return nil, err
	}

	stored, err := s.rdb.Get(ctx, refreshKey(meta.UserID)).Result()
	if err != nil || stored != refreshToken {
		return nil, ErrInvalidToken
	}

	return s.issueTokens(ctx, meta.UserID, meta.Otp)
}

// SignOut revokes the refresh token and announces the sign-out so every
// open session for the user winds down.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, refreshKey(userID)).Err(); err != nil {
		s.logger.Warn("failed to revoke refresh token", zap.String("user_id", userID), zap.Error(err))
	}
	s.changes.Insert(feed.RelationAuth, userID, model.AuthEvent{UserID: userID, Event: model.AuthEventSignOut})
	return nil
}

// CurrentSession resolves an access token to its user. An otp-pending
// token is not a session yet.
func (s *AuthService) CurrentSession(ctx context.Context, accessToken string) (*model.User, error) {
	meta, err := ParseToken(accessToken, s.cfg.AccessKey)
	if err != nil {
		return nil, err
	}
	if meta.Otp {
		return nil, ErrOtpRequired
	}
	return s.users.Get(ctx, meta.UserID)
}

// Authenticate parses an access token without the user lookup; the
// websocket handshake uses this cheap path.
func (s *AuthService) Authenticate(accessToken string) (*TokenMetadata, error) {
	meta, err := ParseToken(accessToken, s.cfg.AccessKey)
	if err != nil {
		return nil, err
	}
	if meta.Otp {
		return nil, ErrOtpRequired
	}
	return meta, nil
}

func (s *AuthService) issueTokens(ctx context.Context, userID string, otpPending bool) (*Tokens, error) {
	access, err := generateToken(userID, otpPending, s.cfg.AccessTTL, s.cfg.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := generateToken(userID, otpPending, s.cfg.RefreshTTL, s.cfg.RefreshKey)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.rdb.Set(ctx, refreshKey(userID), refresh, s.cfg.RefreshTTL).Err(); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Tokens{Access: access, Refresh: refresh}, nil
}
