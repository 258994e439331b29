package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Polling   PollingConfig   `mapstructure:"polling"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Retention RetentionConfig `mapstructure:"retention"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Languages []Language      `mapstructure:"languages"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// RemoteConfig points at the analysis service the portal fronts.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite (default) or mysql
	Path   string `mapstructure:"path"`   // sqlite file path

	// MySQL fields, only read when driver == "mysql"
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// PollingConfig controls the tracker's per-job poll cadence.
type PollingConfig struct {
	BatchInterval  time.Duration `mapstructure:"batch_interval"`
	SingleInterval time.Duration `mapstructure:"single_interval"`
	CancelSettle   time.Duration `mapstructure:"cancel_settle"`
	ReconcileEvery time.Duration `mapstructure:"reconcile_every"`
}

// ArchiveConfig configures where result exports are kept.
// When the OSS fields are set, exports go to the bucket; otherwise LocalDir.
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
	LocalDir        string `mapstructure:"local_dir"`
}

type RetentionConfig struct {
	TerminalJobDays int `mapstructure:"terminal_job_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // max spreadsheet size in bytes
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // .xlsx, .xls
}

// Language is one transcription/translation option offered by the UI.
type Language struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

func Load(configPath string) (*Config, error) {
	// Prefer config.local.yaml (real endpoints/keys, not committed)
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	// Environment variable override
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("remote.timeout", "30s")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "portal.db")
	viper.SetDefault("polling.batch_interval", "5s")
	viper.SetDefault("polling.single_interval", "3s")
	viper.SetDefault("polling.cancel_settle", "5s")
	viper.SetDefault("polling.reconcile_every", "10m")
	viper.SetDefault("retention.terminal_job_days", 30)
	viper.SetDefault("archive.local_dir", "archives")
	viper.SetDefault("upload.max_size", 10*1024*1024)
	viper.SetDefault("upload.allowed_extensions", []string{".xlsx", ".xls"})
}

// DefaultLanguages mirrors the language menu the dealer UI offers.
var DefaultLanguages = []Language{
	{Code: "auto", Name: "Auto Detect"},
	{Code: "en", Name: "English"},
	{Code: "as", Name: "Assamese"},
	{Code: "bn", Name: "Bengali"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "hi", Name: "Hindi"},
	{Code: "kn", Name: "Kannada"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "mr", Name: "Marathi"},
	{Code: "ne", Name: "Nepali"},
	{Code: "or", Name: "Odia"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "sa", Name: "Sanskrit"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "ur", Name: "Urdu"},
}
