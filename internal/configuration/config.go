package configuration

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	UsersCollection         string `json:"usersCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	MessagesCollection      string `json:"messagesCollection"`
	ReceiptsCollection      string `json:"receiptsCollection"`
	CallsCollection         string `json:"callsCollection"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type RabbitConfig struct {
	Url string `json:"url"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type AuthSettings struct {
	AccessKey        string `json:"-"`
	RefreshKey       string `json:"-"`
	AccessTTLMinutes int    `json:"access_ttl_minutes"`
	RefreshTTLHours  int    `json:"refresh_ttl_hours"`
	OtpIssuer        string `json:"otp_issuer"`
}

type CallConfig struct {
	ApiKey    string `json:"-"`
	ApiSecret string `json:"-"`
	BaseURL   string `json:"base_url"`
}

type AvatarConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Redis        RedisConfig  `json:"redis"`
	Rabbit       RabbitConfig `json:"rabbit"`
	Server       ServerConfig `json:"server"`
	Auth         AuthSettings `json:"auth"`
	Calls        CallConfig   `json:"calls"`
	Avatars      AvatarConfig `json:"avatars"`
}

// LoadConfig reads the JSON config file, then layers secrets from the
// environment on top. A .env file is honored when present; missing is
// fine in deployed environments where the variables come from the
// platform.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.Auth.AccessKey = envOr("SNIPCHAT_ACCESS_KEY", config.Auth.AccessKey)
	config.Auth.RefreshKey = envOr("SNIPCHAT_REFRESH_KEY", config.Auth.RefreshKey)
	config.Calls.ApiKey = envOr("LIVEKIT_API_KEY", config.Calls.ApiKey)
	config.Calls.ApiSecret = envOr("LIVEKIT_API_SECRET", config.Calls.ApiSecret)
	config.ChatDatabase.Uri = envOr("SNIPCHAT_MONGO_URI", config.ChatDatabase.Uri)
	config.Redis.Addr = envOr("SNIPCHAT_REDIS_ADDR", config.Redis.Addr)
	config.Rabbit.Url = envOr("SNIPCHAT_RABBIT_URL", config.Rabbit.Url)

	return &config, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
