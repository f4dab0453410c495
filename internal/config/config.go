// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	PublicLink PublicLinkConfig `mapstructure:"public_link"`
	Bulk       BulkConfig       `mapstructure:"bulk"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Tika       TikaConfig       `mapstructure:"tika"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
	// UploadMemoryMB 是 multipart 表单在内存中缓存的上限，超出部分写入临时文件。
	UploadMemoryMB int64 `mapstructure:"upload_memory_mb" validate:"gte=1"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 选择目录存储的实现：mysql 用于生产，sqlite 用于单机部署与测试。
	Driver string      `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	DSN    string      `mapstructure:"dsn" validate:"required"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret" validate:"required"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours" validate:"gte=1"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days" validate:"gte=1"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// StorageConfig 存储卷相关的配置。
type StorageConfig struct {
	// VolumesTempDir 存放压缩任务产生的临时 zip 文件。
	VolumesTempDir string `mapstructure:"volumes_temp_dir" validate:"required"`
}

// JobsConfig 存储后台任务队列的配置。
type JobsConfig struct {
	Workers        int `mapstructure:"workers" validate:"gte=1"`
	PollIntervalMS int `mapstructure:"poll_interval_ms" validate:"gte=10"`
}

// PublicLinkConfig 存储快速访问链接的配置。
type PublicLinkConfig struct {
	ExpiryMinutes int `mapstructure:"expiry_minutes" validate:"gte=1"`
}

// BulkConfig 存储批量更新的配置。
type BulkConfig struct {
	BatchSize int `mapstructure:"batch_size" validate:"gte=1"`
}

// IndexerConfig 存储定时索引的配置。PeriodMinutes 为 0 时关闭定时索引。
type IndexerConfig struct {
	PeriodMinutes int `mapstructure:"period_minutes" validate:"gte=0"`
	// Watch 开启后监听卷目录的变化并自动安排索引。
	Watch           bool `mapstructure:"watch"`
	WatchDebounceMS int  `mapstructure:"watch_debounce_ms" validate:"gte=0"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布任务事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。ServerURL 为空时不提取文档元数据。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

var validate = validator.New()

// setDefaults 为所有可选项设置默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.upload_memory_mb", 32)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "homedrive.db")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jobs.workers", 1)
	v.SetDefault("jobs.poll_interval_ms", 1000)
	v.SetDefault("public_link.expiry_minutes", 60)
	v.SetDefault("bulk.batch_size", 500)
	v.SetDefault("indexer.period_minutes", 0)
	v.SetDefault("indexer.watch", false)
	v.SetDefault("indexer.watch_debounce_ms", 5000)
	v.SetDefault("kafka.topic", "homedrive-jobs")
}

// Load 从指定路径读取 YAML 文件，叠加环境变量 (HOMEDRIVE_*) 与默认值，并完成校验。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HOMEDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 使用 struct tag 校验配置。
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &validationErrs); ok && len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("配置校验失败 %s: '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}
