package config

import (
	"time"

	"PPRelay/logger"
	"PPRelay/tools/errs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "PPRELAY"

// AppConfig 服务全部配置，环境变量前缀 PPRELAY_，例如 PPRELAY_HTTP_PORT。
type AppConfig struct {
	NodeID   string `envconfig:"NODE_ID" default:"relay-1"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"4000"`
	GrpcPort int    `envconfig:"GRPC_PORT" default:"50052"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Mode     string `envconfig:"MODE" default:"debug"` // debug | release
	IDNode   int64  `envconfig:"ID_NODE" default:"1"`   // snowflake 节点号 0..1023，多节点部署时必须不同

	JwtSecret string        `envconfig:"JWT_SECRET"`
	JwtTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	MongoURI         string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase    string `envconfig:"MONGO_DATABASE" default:"chat"`
	MongoUsername    string `envconfig:"MONGO_USERNAME"`
	MongoPassword    string `envconfig:"MONGO_PASSWORD"`
	MongoMaxPoolSize int    `envconfig:"MONGO_MAX_POOL_SIZE" default:"20"`

	RedisAddr     string `envconfig:"REDIS_ADDR"` // 为空则关闭 presence 镜像和限流
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NatsServers []string `envconfig:"NATS_SERVERS"` // 为空则不发布事件

	PresenceShards int `envconfig:"PRESENCE_SHARDS" default:"32"`
	SendQueueSize  int `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	FanoutWorkers  int `envconfig:"FANOUT_WORKERS" default:"4"`
	FanoutQueue    int `envconfig:"FANOUT_QUEUE" default:"1024"`

	SendRateLimit  int           `envconfig:"SEND_RATE_LIMIT" default:"100"`
	SendRateWindow time.Duration `envconfig:"SEND_RATE_WINDOW" default:"15m"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"` // 为空则不校验 Origin
}

func (c *AppConfig) IsRelease() bool { return c.Mode == "release" }

// Validate 只校验启动必需项，其余都有默认值。
func (c *AppConfig) Validate() error {
	if c.JwtSecret == "" {
		if c.IsRelease() {
			return errs.New("jwt secret is required in release mode", "env", envPrefix+"_JWT_SECRET")
		}
		c.JwtSecret = devJwtSecret
		logger.Warn("PPRELAY_JWT_SECRET not set, using development secret")
	}
	if c.HTTPPort <= 0 || c.GrpcPort <= 0 {
		return errs.New("ports must be positive", "http", c.HTTPPort, "grpc", c.GrpcPort)
	}
	if c.PresenceShards <= 0 {
		c.PresenceShards = 32
	}
	return nil
}

const devJwtSecret = "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="

// Load 先读 .env（可选），再读环境变量。
func Load(files ...string) (*AppConfig, error) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("no .env file loaded, using environment only")
	}
	var cfg AppConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errs.WrapMsg(err, "process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
