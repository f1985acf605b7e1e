// Package config loads the per-server profile the CLI and engine run
// against: object store endpoint, bucket/prefix, credentials
// indirection, and the default retention policy.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ResourceMetadata names one server profile, mirroring the
// name/labels envelope the apply subcommand's resources share.
type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// ServerProfileSpec holds the settings a server profile configures.
type ServerProfileSpec struct {
	// Endpoint is the object store's host:port (or URL for s3 backends).
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL   bool   `yaml:"useSSL" mapstructure:"usessl"`

	// CredentialsEnv names the environment variable pair
	// (CredentialsEnv_ACCESS_KEY/CredentialsEnv_SECRET_KEY) that holds
	// the object store credentials — the profile never carries a
	// credential value itself.
	CredentialsEnv string `yaml:"credentialsEnv" mapstructure:"credentialsenv"`

	// RetentionPolicy is a policy string in either "REDUNDANCY n" or
	// "RECOVERY WINDOW OF n {DAYS,WEEKS,MONTHS}" form. apply checks that
	// it parses; backup-delete takes its policy from --retention-policy
	// and does not read this field.
	RetentionPolicy string `yaml:"retentionPolicy" mapstructure:"retentionpolicy"`

	MinimumRedundancy int `yaml:"minimumRedundancy" mapstructure:"minimumredundancy"`

	// SkipWalCleanupIfStandalone mirrors the same-named deletion option.
	// No command reads it: backup-delete takes the value from its
	// --skip-wal-cleanup-if-standalone flag.
	SkipWalCleanupIfStandalone bool `yaml:"skipWalCleanupIfStandalone" mapstructure:"skipwalcleanupifstandalone"`

	// DeleteBatchSize caps the number of keys removed per batched
	// DeleteObjects call; zero means use the backend's own default.
	DeleteBatchSize int `yaml:"deleteBatchSize" mapstructure:"deletebatchsize"`
}

// ServerProfile is the YAML envelope a profile file is written in,
// following the apply subcommand's generic resource shape.
type ServerProfile struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   ResourceMetadata  `yaml:"metadata"`
	Spec       ServerProfileSpec `yaml:"spec"`
}

const expectedKind = "ServerProfile"

// LoadProfile reads a ServerProfile from a YAML file and applies any
// CUSTODIAN_-prefixed environment variable overrides on top of it.
func LoadProfile(path string) (*ServerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading profile %q: %w", path, err)
	}

	var profile ServerProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parsing profile %q: %w", path, err)
	}
	if profile.Kind != "" && profile.Kind != expectedKind {
		return nil, fmt.Errorf("config: %q has kind %q, want %q", path, profile.Kind, expectedKind)
	}

	if err := applyEnvOverrides(&profile.Spec); err != nil {
		return nil, fmt.Errorf("config: applying environment overrides: %w", err)
	}
	return &profile, nil
}

// applyEnvOverrides binds CUSTODIAN_-prefixed environment variables on
// top of a spec already populated from YAML. The key is the variable
// name with the prefix stripped and lower-cased, nothing more, so
// CUSTODIAN_MINIMUMREDUNDANCY overrides minimumRedundancy while
// CUSTODIAN_MINIMUM_REDUNDANCY matches no field.
func applyEnvOverrides(spec *ServerProfileSpec) error {
	v := viper.New()
	v.SetConfigType("yaml")

	existing, err := yaml.Marshal(spec)
	if err != nil {
		return err
	}
	if err := v.ReadConfig(strings.NewReader(string(existing))); err != nil {
		return err
	}

	const prefix = "CUSTODIAN_"
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		propKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		v.Set(propKey, value)
	}

	return v.Unmarshal(spec)
}
