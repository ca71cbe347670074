package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// JobConfig holds the settings shared by every batch pass.
// Precedence: defaults, then the YAML file (if any), then environment variables.
type JobConfig struct {
	Levels          []int         `yaml:"levels" validate:"required,min=1,dive,oneof=0 1 2 3 5"`
	InsertChunkSize int           `yaml:"insert_chunk_size" validate:"min=1,max=10000"`
	CrmURL          string        `yaml:"crm_url" validate:"omitempty,url"`
	SSCC            SSCCConfig    `yaml:"sscc"`
	RunLock         RunLockConfig `yaml:"run_lock"`
	Report          ReportConfig  `yaml:"report"`
	Notify          NotifyConfig  `yaml:"notify"`
}

type SSCCConfig struct {
	Prefix         string        `yaml:"prefix" validate:"required,number,max=15"`
	ExtensionDigit int           `yaml:"extension_digit" validate:"min=0,max=9"`
	TxTimeout      time.Duration `yaml:"tx_timeout" validate:"gt=0"`
}

type RunLockConfig struct {
	KeyPrefix string        `yaml:"key_prefix" validate:"required"`
	TTL       time.Duration `yaml:"ttl" validate:"gt=0"`
}

type ReportConfig struct {
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
}

type NotifyConfig struct {
	Topic string `yaml:"topic"`
}

func DefaultJobConfig() JobConfig {
	return JobConfig{
		Levels:          []int{0, 1, 2, 3, 5},
		InsertChunkSize: 1000,
		SSCC: SSCCConfig{
			Prefix:         "89041349",
			ExtensionDigit: 3,
			TxTimeout:      10 * time.Minute,
		},
		RunLock: RunLockConfig{
			KeyPrefix: "codepool:run",
			TTL:       time.Minute,
		},
		Report: ReportConfig{
			Dir: "reports",
		},
	}
}

// LoadJobConfig builds and validates the job settings. path may be empty.
func LoadJobConfig(path string) (JobConfig, error) {
	cfg := DefaultJobConfig()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read job config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse job config %s: %w", path, err)
		}
	}
	if err := applyJobEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := ValidateJobConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

func ValidateJobConfig(cfg JobConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid job config %v: %w", utils.ProcessValidationErrors(err), err)
	}
	return nil
}

func applyJobEnv(cfg *JobConfig) error {
	if v := strings.TrimSpace(os.Getenv("SSCC_PREFIX")); v != "" {
		cfg.SSCC.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("SSCC_EXTENSION_DIGIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SSCC_EXTENSION_DIGIT: %w", err)
		}
		cfg.SSCC.ExtensionDigit = n
	}
	if v := strings.TrimSpace(os.Getenv("SSCC_TX_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SSCC_TX_TIMEOUT: %w", err)
		}
		cfg.SSCC.TxTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("INSERT_CHUNK_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INSERT_CHUNK_SIZE: %w", err)
		}
		cfg.InsertChunkSize = n
	}
	if v := strings.TrimSpace(os.Getenv("RUN_LOCK_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RUN_LOCK_TTL: %w", err)
		}
		cfg.RunLock.TTL = d
	}
	if v := strings.TrimSpace(os.Getenv("CRM_URL")); v != "" {
		cfg.CrmURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REPORT_DIR")); v != "" {
		cfg.Report.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("REPORT_BUCKET")); v != "" {
		cfg.Report.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("CODE_REQUEST_TOPIC")); v != "" {
		cfg.Notify.Topic = v
	}
	return nil
}
