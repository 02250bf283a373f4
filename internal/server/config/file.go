package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/chatrelay/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the config file. It is decoded from
// JSON, or from YAML when the file extension is .yaml or .yml. Durations use
// timex.Duration so "30s" and integer nanoseconds are both accepted.
// Only fields present with a non-zero value override earlier layers.
type FileConfig struct {
	HTTPAddr       string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr       string `json:"grpc_addr" yaml:"grpc_addr"`
	StorageBackend string `json:"storage" yaml:"storage"`
	DataDir        string `json:"data_dir" yaml:"data_dir"`

	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`

	S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`

	SecretKey               string         `json:"secret_key" yaml:"secret_key"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration" yaml:"session_validity_duration"`

	MaxMessageLength  int            `json:"max_message_length" yaml:"max_message_length"`
	MaxFrameSize      int64          `json:"max_frame_size" yaml:"max_frame_size"`
	SendBufferSize    int            `json:"send_buffer_size" yaml:"send_buffer_size"`
	WriteTimeout      timex.Duration `json:"write_timeout" yaml:"write_timeout"`
	PongWait          timex.Duration `json:"pong_wait" yaml:"pong_wait"`
	RateLimitBurst    int            `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	RateLimitInterval timex.Duration `json:"rate_limit_interval" yaml:"rate_limit_interval"`
	AllowedOrigins    []string       `json:"allowed_origins" yaml:"allowed_origins"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// parseFile overlays values from the config file at path onto config. An
// empty path means no file. If the file cannot be read or decoded, the
// function panics.
func parseFile(config *Config, path string) {
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DataDir, c.DataDir)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.RedisPrefix, c.RedisPrefix)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)

	if c.SessionValidityDuration.Duration > 0 {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.WriteTimeout.Duration > 0 {
		config.WriteTimeout = c.WriteTimeout.Duration
	}
	if c.PongWait.Duration > 0 {
		config.PongWait = c.PongWait.Duration
	}
	if c.RateLimitInterval.Duration > 0 {
		config.RateLimitInterval = c.RateLimitInterval.Duration
	}
	if c.MaxMessageLength > 0 {
		config.MaxMessageLength = c.MaxMessageLength
	}
	if c.MaxFrameSize > 0 {
		config.MaxFrameSize = c.MaxFrameSize
	}
	if c.SendBufferSize > 0 {
		config.SendBufferSize = c.SendBufferSize
	}
	if c.RateLimitBurst > 0 {
		config.RateLimitBurst = c.RateLimitBurst
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
