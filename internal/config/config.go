// Package config はアプリケーション設定の読み込みとバリデーションを提供する。
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"sgi/internal/slack"
)

// LogLevel はログ出力レベルを表す。
type LogLevel = string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// SteamConfig はSteam Web API認証設定。
type SteamConfig struct {
	APIKey string `mapstructure:"apiKey"`
}

// SlackConfig はSlack Webhookとbot表示設定。
type SlackConfig struct {
	WebhookURL  string `mapstructure:"webhookUrl"`
	Channel     string `mapstructure:"channel"`
	BotUsername string `mapstructure:"botUsername"`
	BotIconURL  string `mapstructure:"botIconUrl"`
}

// PollingConfig はポーリング間隔設定。
type PollingConfig struct {
	IntervalSeconds int `mapstructure:"intervalSeconds"`
}

// ServerConfig はコマンドAPIサーバー設定。
type ServerConfig struct {
	ListenAddr        string `mapstructure:"listenAddr"`
	VerificationToken string `mapstructure:"verificationToken"`
}

// DatabaseConfig はSQLiteデータベース設定。
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig はログ設定。
type LogConfig struct {
	Level LogLevel `mapstructure:"level"`
}

// Config はアプリケーション全体の設定。
type Config struct {
	Steam    SteamConfig    `mapstructure:"steam"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load は設定ファイルとSGI_環境変数から設定を読み込みバリデーションする。
// pathが空の場合はカレントディレクトリのconfig.yamlを探す。
// ファイルが無くても環境変数だけで設定できる。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SGI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshalは既知のキーしか拾わないため、環境変数だけで
	// 設定できるよう必須キーにも空のデフォルトを入れておく
	v.SetDefault("steam.apiKey", "")
	v.SetDefault("slack.webhookUrl", "")
	v.SetDefault("slack.channel", "")
	v.SetDefault("slack.botIconUrl", "")
	v.SetDefault("server.verificationToken", "")
	v.SetDefault("polling.intervalSeconds", 60)
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("database.path", "./sgi.db")
	v.SetDefault("log.level", LogInfo)
	v.SetDefault("slack.botUsername", "Game Interface")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate は設定のバリデーションを行う。
func (c *Config) Validate() error {
	if c.Steam.APIKey == "" {
		return fmt.Errorf("steam.apiKeyは必須です")
	}
	if c.Slack.WebhookURL == "" {
		return fmt.Errorf("slack.webhookUrlは必須です")
	}
	if !strings.HasPrefix(c.Slack.WebhookURL, slack.WebhookURLPrefix) {
		return fmt.Errorf("slack.webhookUrl: Slack Webhook URLの形式が無効です")
	}
	if c.Polling.IntervalSeconds < 10 {
		return fmt.Errorf("polling.intervalSecondsは10以上で設定してください")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.pathは必須です")
	}

	validLevels := map[string]bool{
		LogDebug: true, LogInfo: true, LogWarn: true, LogError: true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.levelは debug/info/warn/error のいずれかを設定してください")
	}

	return nil
}
