package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Storage StorageConfig
	S3      S3Config
	App     AppConfig
	Profile ProfileConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxAttempts            int
	RetryDelay             time.Duration
	ReconnectInterval      time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	SocketTimeout          time.Duration
	OperationTimeout       time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

type StorageConfig struct {
	Backend   string
	UploadDir string
	URLPrefix string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	MaxUploadSize int64
	ImageSize     int
	JPEGQuality   int
	CORSOrigins   []string
}

type ProfileConfig struct {
	DefaultFirstName string
	DefaultLastName  string
	DefaultImage     string
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "3001")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)

	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017/photoshare")
	v.SetDefault("MONGODB_DATABASE", "photoshare")
	v.SetDefault("MONGODB_MAX_ATTEMPTS", 3)
	v.SetDefault("MONGODB_RETRY_DELAY", 5*time.Second)
	v.SetDefault("MONGODB_RECONNECT_INTERVAL", 30*time.Second)
	v.SetDefault("MONGODB_CONNECT_TIMEOUT", 30*time.Second)
	v.SetDefault("MONGODB_SERVER_SELECTION_TIMEOUT", 30*time.Second)
	v.SetDefault("MONGODB_SOCKET_TIMEOUT", 45*time.Second)
	v.SetDefault("MONGODB_OPERATION_TIMEOUT", 10*time.Second)
	v.SetDefault("MONGODB_MAX_POOL_SIZE", 10)
	v.SetDefault("MONGODB_MIN_POOL_SIZE", 1)

	v.SetDefault("STORAGE_BACKEND", StorageLocal)
	v.SetDefault("APP_UPLOAD_DIR", "./public/uploads")
	v.SetDefault("APP_UPLOAD_URL_PREFIX", "/uploads")

	v.SetDefault("S3_ENDPOINT", "localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "profile-images")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("APP_MAX_UPLOAD_SIZE", 5*1024*1024) // 5MB
	v.SetDefault("APP_IMAGE_SIZE", 400)
	v.SetDefault("APP_JPEG_QUALITY", 85)
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:4173"})

	v.SetDefault("PROFILE_DEFAULT_FIRST_NAME", "Kheepo")
	v.SetDefault("PROFILE_DEFAULT_LAST_NAME", "Motsinoi")
	v.SetDefault("PROFILE_DEFAULT_IMAGE", "/kheepo-profile.jpg")

	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		Mongo: MongoConfig{
			URI:                    v.GetString("MONGODB_URI"),
			Database:               v.GetString("MONGODB_DATABASE"),
			MaxAttempts:            v.GetInt("MONGODB_MAX_ATTEMPTS"),
			RetryDelay:             v.GetDuration("MONGODB_RETRY_DELAY"),
			ReconnectInterval:      v.GetDuration("MONGODB_RECONNECT_INTERVAL"),
			ConnectTimeout:         v.GetDuration("MONGODB_CONNECT_TIMEOUT"),
			ServerSelectionTimeout: v.GetDuration("MONGODB_SERVER_SELECTION_TIMEOUT"),
			SocketTimeout:          v.GetDuration("MONGODB_SOCKET_TIMEOUT"),
			OperationTimeout:       v.GetDuration("MONGODB_OPERATION_TIMEOUT"),
			MaxPoolSize:            v.GetUint64("MONGODB_MAX_POOL_SIZE"),
			MinPoolSize:            v.GetUint64("MONGODB_MIN_POOL_SIZE"),
		},
		Storage: StorageConfig{
			Backend:   v.GetString("STORAGE_BACKEND"),
			UploadDir: v.GetString("APP_UPLOAD_DIR"),
			URLPrefix: v.GetString("APP_UPLOAD_URL_PREFIX"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		App: AppConfig{
			MaxUploadSize: v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			ImageSize:     v.GetInt("APP_IMAGE_SIZE"),
			JPEGQuality:   v.GetInt("APP_JPEG_QUALITY"),
			CORSOrigins:   splitList(v.GetStringSlice("CORS_ALLOWED_ORIGINS")),
		},
		Profile: ProfileConfig{
			DefaultFirstName: v.GetString("PROFILE_DEFAULT_FIRST_NAME"),
			DefaultLastName:  v.GetString("PROFILE_DEFAULT_LAST_NAME"),
			DefaultImage:     v.GetString("PROFILE_DEFAULT_IMAGE"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == StorageLocal {
		if err := os.MkdirAll(cfg.Storage.UploadDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Storage.UploadDir, err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Mongo.MaxAttempts < 1 {
		return fmt.Errorf("MONGODB_MAX_ATTEMPTS must be at least 1, got %d", c.Mongo.MaxAttempts)
	}
	if c.App.MaxUploadSize <= 0 {
		return errors.New("APP_MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

// splitList accepts both space and comma separated env values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
