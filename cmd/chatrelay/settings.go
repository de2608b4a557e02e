package main

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/chatrelay"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	APIKeys        string `env:"API_KEYS"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL,default=1h"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT,default=chatrelay.events"`

	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDBDatabase string `env:"MONGODB_DATABASE,default=chat"`

	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	FanoutConcurrency int           `env:"FANOUT_CONCURRENCY,default=32"`
	ReadLimit         int64         `env:"READ_LIMIT,default=65536"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL,default=5m"`
}

func (s Settings) apiKeys() []string {
	return splitList(s.APIKeys)
}

func (s Settings) allowedOrigins() []string {
	return splitList(s.AllowedOrigins)
}

func splitList(value string) []string {
	return lo.FilterMap(strings.Split(value, ","), func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)

		return item, item != ""
	})
}
