package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/flagx"
)

var allowedFlags = []string{
	"-a", "-g", "-storage", "-data", "-d", "-redis", "-redis-prefix",
	"-s", "-t", "-u", "-p", "-b", "-region", "-e", "-max-len", "-origins", "-l",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        HTTP bind address (e.g., ":8080")
//	-g string        gRPC bind address; "" disables gRPC
//	-storage string  storage backend: file, memory, postgres, redis, s3
//	-data string     data directory of the file backend
//	-d string        PostgreSQL DSN
//	-redis string    Redis address
//	-redis-prefix    Redis key prefix
//	-s string        session token HMAC secret key
//	-t int           session validity, minutes
//	-u / -p string   S3 root user / password
//	-b string        S3 bucket name
//	-region string   S3 region
//	-e string        S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-max-len int     maximum message length in characters
//	-origins string  comma-separated allowed WebSocket origins, "*" allows all
//	-l string        log level: debug, info, warn, error
//
// args is filtered with flagx.FilterArgs first so flags owned by other
// layers do not collide. Invalid values panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, allowedFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "storage backend")
	fs.StringVar(&config.DataDir, "data", config.DataDir, "data directory")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPrefix, "redis-prefix", config.RedisPrefix, "redis key prefix")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.IntVar(&config.MaxMessageLength, "max-len", config.MaxMessageLength, "max message length")

	origins := fs.String("origins", strings.Join(config.AllowedOrigins, ","), "allowed origins")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Only flags actually given override earlier layers; a minute-granular
	// default would otherwise truncate a finer value from env or file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
		case "origins":
			config.AllowedOrigins = splitList(*origins)
		}
	})
}
