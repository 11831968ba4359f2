package configuration

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"snipchat/internal/db"
	"snipchat/internal/feed"
	"snipchat/internal/handler"
	"snipchat/internal/hub"
	"snipchat/internal/metrics"
	"snipchat/internal/model"
	"snipchat/internal/repo"
	"snipchat/internal/service"
	viewsync "snipchat/internal/sync"
)

type Container struct {
	AuthHandler         handler.AuthHandler
	UserHandler         handler.UserHandler
	ConversationHandler handler.ConversationHandler
	MonitorHandler      handler.MonitorHandler
	AuthService         *service.AuthService
	Avatars             *service.AvatarStore
	Hub                 *hub.Hub
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
	notifier    *service.NotificationService
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	metrics.MustRegister()

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	changes := feed.New(logger)

	userStore := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)
	conversationStore := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	messageStore := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	receiptStore := db.NewRepository[model.MessageReceipt](con, config.ChatDatabase.ReceiptsCollection)
	callStore := db.NewRepository[model.Call](con, config.ChatDatabase.CallsCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := repo.EnsureMessageIndexes(ctx, messageStore, receiptStore); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	userRepo := repo.NewUserRepository(userStore, changes, logger)
	conversationRepo := repo.NewConversationRepository(conversationStore, changes, logger)
	messageRepo := repo.NewMessageRepository(messageStore, receiptStore, changes, logger)
	callRepo := repo.NewCallRepository(callStore, changes, logger)
	typingRepo := repo.NewTypingRepository(rdb, changes, logger)

	// The notification broker is optional; without it push and email
	// dispatch are no-ops.
	var notifier *service.NotificationService
	if config.Rabbit.Url != "" {
		notifier, err = service.NewNotificationService(config.Rabbit.Url, logger)
		if err != nil {
			logger.Warn("notification broker unavailable, push dispatch disabled", zap.Error(err))
			notifier = nil
		}
	}

	authService := service.NewAuthService(userRepo, rdb, changes, notifier, service.AuthConfig{
		AccessKey:  []byte(config.Auth.AccessKey),
		RefreshKey: []byte(config.Auth.RefreshKey),
		AccessTTL:  time.Duration(config.Auth.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(config.Auth.RefreshTTLHours) * time.Hour,
		OtpIssuer:  config.Auth.OtpIssuer,
	}, logger)

	conversationService := service.NewConversationService(
		conversationRepo, messageRepo, callRepo, typingRepo, userRepo, logger)

	callLinks := service.NewCallLinkService(
		config.Calls.ApiKey, config.Calls.ApiSecret, config.Calls.BaseURL, logger)

	avatars, err := service.NewAvatarStore(config.Avatars.Dir, config.Avatars.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open avatar store: %w", err)
	}

	stores := viewsync.Stores{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Typing:        typingRepo,
		Calls:         callRepo,
		Admin:         conversationService,
		Links:         callLinks,
	}

	wsHub := hub.NewHub(changes, stores, conversationRepo, notifier, config.Server.AllowedOrigins, logger)

	monitorService := hub.NewMonitorService(wsHub)

	return &Container{
		AuthHandler:         handler.NewAuthHandler(authService),
		UserHandler:         handler.NewUserHandler(userRepo, avatars),
		ConversationHandler: handler.NewConversationHandler(conversationService, conversationRepo, messageRepo),
		MonitorHandler:      handler.NewMonitorHandler(monitorService),
		AuthService:         authService,
		Avatars:             avatars,
		Hub:                 wsHub,
		Config:              *config,
		Logger:              logger,
		mongoClient:         con,
		redisClient:         rdb,
		notifier:            notifier,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.notifier != nil {
		c.notifier.Close()
	}

	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
