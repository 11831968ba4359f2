package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"snipchat/internal/db"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, userID, firstName, lastName, avatarURL string) (*model.User, error)
	SetOtpEnabled(ctx context.Context, userID string, enabled bool) error
	Search(ctx context.Context, query string, limit int64) ([]model.User, error)
}

type userRepository struct {
	users   *db.Repository[model.User]
	changes *feed.Feed
	logger  *zap.Logger
}

func NewUserRepository(users *db.Repository[model.User], changes *feed.Feed, logger *zap.Logger) UserRepository {
	return &userRepository{
		users:   users,
		changes: changes,
		logger:  logger,
	}
}

func (r *userRepository) Get(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user failed: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.users.FindOne(ctx, db.NewFilter().Eq("email", email).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user failed: %w", err)
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.users.Create(ctx, *user); err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}

	r.logger.Info("user created", zap.String("user_id", user.ID))
	return nil
}

// UpdateProfile mutates the owner-editable profile fields and notifies the
// user's stream so open sessions pick the change up.
func (r *userRepository) UpdateProfile(ctx context.Context, userID, firstName, lastName, avatarURL string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now()
	update := bson.M{
		"first_name": firstName,
		"last_name":  lastName,
		"updated_at": now,
	}
	if avatarURL != "" {
		update["avatar_url"] = avatarURL
	}

	if _, err := r.users.UpdateByID(ctx, userID, update); err != nil {
		r.logger.Error("failed to update profile", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("update profile failed: %w", err)
	}

	user, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("profile updated", zap.String("user_id", userID))
	r.changes.Update(feed.RelationUsers, userID, user)
	return user, nil
}

func (r *userRepository) SetOtpEnabled(ctx context.Context, userID string, enabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.users.UpdateByID(ctx, userID, bson.M{"otp_enabled": enabled}); err != nil {
		return fmt.Errorf("update otp flag failed: %w", err)
	}
	return nil
}

// Search matches users by name or email for the new-conversation picker.
func (r *userRepository) Search(ctx context.Context, query string, limit int64) ([]model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	if limit <= 0 || limit > 50 {
		limit = 20
	}

	filter := db.NewFilter().Or(
		db.NewFilter().Contains("first_name", query).Build(),
		db.NewFilter().Contains("last_name", query).Build(),
		db.NewFilter().Contains("email", query).Build(),
	).Build()

	result, err := r.users.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     1,
		PageSize: limit,
		SortBy:   "first_name",
	})
	if err != nil {
		return nil, fmt.Errorf("search users failed: %w", err)
	}
	return result.Data, nil
}
