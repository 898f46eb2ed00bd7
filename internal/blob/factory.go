package blob

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config selects and parameterizes the archive backend.
type Config struct {
	Driver      Driver `env:"VIVARIUM_BLOB_DRIVER" envDefault:"fs"`
	FSRoot      string `env:"VIVARIUM_BLOB_FS_ROOT" envDefault:"./archive"`
	S3Bucket    string `env:"VIVARIUM_BLOB_S3_BUCKET"`
	S3Region    string `env:"VIVARIUM_BLOB_S3_REGION"`
	S3Endpoint  string `env:"VIVARIUM_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"VIVARIUM_BLOB_S3_PATH_STYLE"`
}

// ParseConfig loads archive configuration from environment variables.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse blob env: %w", err)
	}
	return cfg, nil
}
