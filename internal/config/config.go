package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel     string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort     string        `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	JWTSecretKey string        `yaml:"jwt-secret-key" env:"JWT_SECRET_KEY" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token-ttl" env:"TOKEN_TTL" env-default:"24h"`
	PasswordCost int           `yaml:"password-cost" env:"PASSWORD_COST" env-default:"10"`
	Redis        Redis         `yaml:"redis"`
	Match        Match         `yaml:"match"`
	CORS         CORS          `yaml:"cors"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Match struct {
	CodeLength     int           `yaml:"code-length" env:"MATCH_CODE_LENGTH" env-default:"6"`
	CodeAttempts   int           `yaml:"code-attempts" env:"MATCH_CODE_ATTEMPTS" env-default:"5"`
	UpdateAttempts int           `yaml:"update-attempts" env:"MATCH_UPDATE_ATTEMPTS" env-default:"10"`
	FinishedTTL    time.Duration `yaml:"finished-ttl" env:"MATCH_FINISHED_TTL" env-default:"24h"`
}

type CORS struct {
	AllowOrigins []string `yaml:"allow-origins" env:"CORS_ALLOW_ORIGINS" env-default:"*"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
