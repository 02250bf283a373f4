package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "CHATRELAY_"

var lookupEnv = os.LookupEnv

type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func duration(dst func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"HTTP_ADDR", str(func(c *Config) *string { return &c.HTTPAddr })},
	{"GRPC_ADDR", str(func(c *Config) *string { return &c.GRPCAddr })},
	{"STORAGE", str(func(c *Config) *string { return &c.StorageBackend })},
	{"DATA_DIR", str(func(c *Config) *string { return &c.DataDir })},
	{"DATABASE_DSN", str(func(c *Config) *string { return &c.DatabaseDSN })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.RedisAddr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.RedisPassword })},
	{"REDIS_PREFIX", str(func(c *Config) *string { return &c.RedisPrefix })},
	{"S3_USER", str(func(c *Config) *string { return &c.S3RootUser })},
	{"S3_PASSWORD", str(func(c *Config) *string { return &c.S3RootPassword })},
	{"S3_BUCKET", str(func(c *Config) *string { return &c.S3Bucket })},
	{"S3_REGION", str(func(c *Config) *string { return &c.S3Region })},
	{"S3_ENDPOINT", str(func(c *Config) *string { return &c.S3BaseEndpoint })},
	{"S3_PREFIX", str(func(c *Config) *string { return &c.S3Prefix })},
	{"SECRET_KEY", str(func(c *Config) *string { return &c.SecretKey })},
	{"SESSION_VALIDITY", duration(func(c *Config) *time.Duration { return &c.SessionValidityDuration })},
	{"MAX_MESSAGE_LENGTH", integer(func(c *Config) *int { return &c.MaxMessageLength })},
	{"MAX_FRAME_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.MaxFrameSize = n
		return nil
	}},
	{"SEND_BUFFER_SIZE", integer(func(c *Config) *int { return &c.SendBufferSize })},
	{"WRITE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.WriteTimeout })},
	{"PONG_WAIT", duration(func(c *Config) *time.Duration { return &c.PongWait })},
	{"RATE_LIMIT_BURST", integer(func(c *Config) *int { return &c.RateLimitBurst })},
	{"RATE_LIMIT_INTERVAL", duration(func(c *Config) *time.Duration { return &c.RateLimitInterval })},
	{"ALLOWED_ORIGINS", func(c *Config, v string) error {
		c.AllowedOrigins = splitList(v)
		return nil
	}},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
}

// parseEnv loads envFile (if it exists) into the process environment without
// overriding variables that are already set, then applies every CHATRELAY_*
// variable to config. A malformed value panics, like a malformed flag.
func parseEnv(config *Config, envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(fmt.Errorf("load %s: %w", envFile, err))
		}
	}

	for _, b := range envBindings {
		v, ok := lookupEnv(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(config, strings.TrimSpace(v)); err != nil {
			panic(fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
