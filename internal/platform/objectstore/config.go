package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sg-labs/events-validator-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketSchemas string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("EV_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("EV_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("EV_MINIO_ACCESS_KEY", "events"),
		SecretKey:     env.String("EV_MINIO_SECRET_KEY", "eventsminio"),
		Region:        env.String("EV_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketSchemas: env.String("EV_MINIO_BUCKET_SCHEMAS", "schemas"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketSchemas) == "" {
		return errors.New("schemas bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
