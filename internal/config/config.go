package config

import (
	"log"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type KafkaConfig struct {
	Brokers     []string `toml:"brokers"`
	ClientID    string   `toml:"clientID"`
	ActionTopic string   `toml:"actionTopic"`
}

// WorkflowConfig 外部工作流引擎相关配置
type WorkflowConfig struct {
	// CallbackToken 回调接口的静态令牌，留空则不校验
	CallbackToken         string `toml:"callbackToken"`
	DefaultTimeoutSeconds int    `toml:"defaultTimeoutSeconds"`
}

// StreamConfig 推送通道相关配置
type StreamConfig struct {
	HeartbeatSeconds        int `toml:"heartbeatSeconds"`
	CountsRefreshSeconds    int `toml:"countsRefreshSeconds"`
	SweepSeconds            int `toml:"sweepSeconds"`
	ReconnectBackoffSeconds int `toml:"reconnectBackoffSeconds"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type Config struct {
	MainConfig     `toml:"mainConfig"`
	MysqlConfig    `toml:"mysqlConfig"`
	JwtConfig      `toml:"jwtConfig"`
	KafkaConfig    `toml:"kafkaConfig"`
	WorkflowConfig `toml:"workflowConfig"`
	StreamConfig   `toml:"streamConfig"`
	LogConfig      `toml:"logConfig"`
	RedisConfig    `toml:"redisConfig"`
}

var config *Config

func LoadConfig() error {
	configPath := "configs/config_local.toml"
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
		config.applyDefaults()
	}
	return config
}

// applyDefaults 核心定时参数缺省值，配置缺失时也要保证可用
func (c *Config) applyDefaults() {
	if c.WorkflowConfig.DefaultTimeoutSeconds <= 0 {
		c.WorkflowConfig.DefaultTimeoutSeconds = 60
	}
	if c.StreamConfig.HeartbeatSeconds <= 0 {
		c.StreamConfig.HeartbeatSeconds = 30
	}
	if c.StreamConfig.CountsRefreshSeconds <= 0 {
		c.StreamConfig.CountsRefreshSeconds = 60
	}
	if c.StreamConfig.SweepSeconds <= 0 {
		c.StreamConfig.SweepSeconds = 5
	}
	if c.StreamConfig.ReconnectBackoffSeconds <= 0 {
		c.StreamConfig.ReconnectBackoffSeconds = 5
	}
	if c.KafkaConfig.ActionTopic == "" {
		c.KafkaConfig.ActionTopic = "formalink.actions"
	}
}
