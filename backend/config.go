package backend

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto/snowflake"
)

// Config is the configuration of the running server. Flags registered with
// RegisterFlags write into it; LoadFromFile overwrites it.
var Config = DefaultConfig()

// Blob drivers.
const (
	BlobFile   = "file"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

type ServerConfig struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Session SessionConfig  `yaml:"session"`
	Auth    AuthConfig     `yaml:"auth"`
	Blob    BlobConfig     `yaml:"blob"`
	DB      DatabaseConfig `yaml:"database"`
	Log     LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Listen          string `yaml:"listen"`
	Path            string `yaml:"path"`
	ReadBuffer      int    `yaml:"read-buffer"`
	WriteBuffer     int    `yaml:"write-buffer"`
	MaxMessageBytes int64  `yaml:"max-message-bytes"`
}

type SessionConfig struct {
	KeyPrefix       string        `yaml:"key-prefix"`
	RestartPolicy   RestartPolicy `yaml:"restart-policy"`
	KeepAlive       time.Duration `yaml:"keepalive"`
	KeepAliveMisses int           `yaml:"keepalive-misses"`

	// NodeID is stamped into session ids. Negative derives it from the
	// hostname.
	NodeID int64 `yaml:"node-id"`
}

type AuthConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	AccessTTL time.Duration `yaml:"access-ttl"`
}

type BlobConfig struct {
	Driver string `yaml:"driver"`

	File struct {
		Root    string `yaml:"root"`
		BaseURL string `yaml:"base-url"`
	} `yaml:"file,omitempty"`

	S3 struct {
		Region    string `yaml:"region"`
		Bucket    string `yaml:"bucket"`
		Endpoint  string `yaml:"endpoint,omitempty"`
		PathStyle bool   `yaml:"path-style,omitempty"`
		AccessKey string `yaml:"access-key,omitempty"`
		SecretKey string `yaml:"secret-key,omitempty"`
	} `yaml:"s3,omitempty"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func DefaultConfig() ServerConfig {
	c := ServerConfig{
		HTTP: HTTPConfig{
			Listen:          ":8080",
			Path:            "/driving",
			ReadBuffer:      4096,
			WriteBuffer:     4096,
			MaxMessageBytes: 16 << 20,
		},
		Session: SessionConfig{
			KeyPrefix:       "driving",
			RestartPolicy:   RestartOverwrite,
			KeepAlive:       20 * time.Second,
			KeepAliveMisses: 3,
			NodeID:          -1,
		},
		Auth: AuthConfig{
			Issuer:    "drivingcoach",
			AccessTTL: time.Hour,
		},
		Blob: BlobConfig{Driver: BlobFile},
		Log:  LogConfig{Level: "info"},
	}
	c.Blob.File.Root = "blobs"
	c.Blob.File.BaseURL = "http://localhost:8080/blobs/"
	return c
}

// RegisterFlags binds the fields of c to flags in fs, using the current
// values of c as defaults.
func (c *ServerConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.HTTP.Listen, "http", c.HTTP.Listen, "address to serve http on")
	fs.StringVar(&c.HTTP.Path, "path", c.HTTP.Path, "path of the streaming endpoint")
	fs.Int64Var(&c.HTTP.MaxMessageBytes, "max-message-bytes", c.HTTP.MaxMessageBytes, "largest inbound frame accepted")

	fs.StringVar(&c.Session.KeyPrefix, "key-prefix", c.Session.KeyPrefix, "prefix of stored chunk keys")
	fs.Var(&c.Session.RestartPolicy, "restart-policy", "START while recording: overwrite or reject")
	fs.DurationVar(&c.Session.KeepAlive, "keepalive", c.Session.KeepAlive, "interval between keepalive pings")
	fs.IntVar(&c.Session.KeepAliveMisses, "keepalive-misses", c.Session.KeepAliveMisses,
		"unanswered pings before a connection is dropped (0 disables pings)")
	fs.Int64Var(&c.Session.NodeID, "node-id", c.Session.NodeID,
		"node id stamped into session ids, 0-1023 (default: derived from the hostname)")

	fs.StringVar(&c.Auth.Secret, "auth-secret", c.Auth.Secret, "base64 HS256 token secret")
	fs.StringVar(&c.Auth.Issuer, "auth-issuer", c.Auth.Issuer, "expected token issuer")

	fs.StringVar(&c.Blob.Driver, "blob", c.Blob.Driver, "blob store driver: file, s3 or memory")
	fs.StringVar(&c.Blob.File.Root, "blob-root", c.Blob.File.Root, "directory of the file blob store")
	fs.StringVar(&c.Blob.File.BaseURL, "blob-base-url", c.Blob.File.BaseURL, "public base url of the file blob store")
	fs.StringVar(&c.Blob.S3.Region, "s3-region", c.Blob.S3.Region, "")
	fs.StringVar(&c.Blob.S3.Bucket, "s3-bucket", c.Blob.S3.Bucket, "")
	fs.StringVar(&c.Blob.S3.Endpoint, "s3-endpoint", c.Blob.S3.Endpoint, "")

	fs.StringVar(&c.DB.DSN, "psql", c.DB.DSN, "postgres dsn (default: in-memory record store)")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "")
	fs.BoolVar(&c.Log.Console, "log-console", c.Log.Console, "human readable log output")
}

// LoadFromFile replaces the fields of c that are present in the YAML file
// at path.
func (c *ServerConfig) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return c.LoadFromBytes(data)
}

func (c *ServerConfig) LoadFromBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: yaml: %w", err)
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.HTTP.Path, "/") {
		errs = append(errs, fmt.Errorf("http.path must begin with /"))
	}
	if c.HTTP.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max-message-bytes must be positive"))
	}
	if c.Session.KeyPrefix == "" || strings.Trim(c.Session.KeyPrefix, "/") != c.Session.KeyPrefix {
		errs = append(errs, fmt.Errorf("session.key-prefix must be non-empty without leading or trailing /"))
	}
	if !c.Session.RestartPolicy.Valid() {
		errs = append(errs, fmt.Errorf("session.restart-policy: invalid value %q", c.Session.RestartPolicy))
	}
	if c.Session.KeepAliveMisses < 0 {
		errs = append(errs, fmt.Errorf("session.keepalive-misses must not be negative"))
	}
	if c.Session.KeepAliveMisses > 0 && c.Session.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("session.keepalive must be positive"))
	}
	if c.Session.NodeID >= 0 && !snowflake.ValidNode(c.Session.NodeID) {
		errs = append(errs, fmt.Errorf("session.node-id must be between 0 and 1023"))
	}
	switch c.Blob.Driver {
	case BlobFile:
		if c.Blob.File.Root == "" {
			errs = append(errs, fmt.Errorf("blob.file.root must be specified"))
		}
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.s3.bucket must be specified"))
		}
	case BlobMemory:
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
