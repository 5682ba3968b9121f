// Package config resolves video-analyze settings from defaults, an optional
// YAML file, VIDEO_ANALYZE_* environment variables and command flags, in
// increasing order of precedence. Account settings missing from all of those
// can be read from SSM Parameter Store.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FileName is the config file base name searched in the working directory.
	FileName = "video-analyze"

	// EnvPrefix prefixes every environment variable. Nested keys join with
	// underscores: VIDEO_ANALYZE_AZUREVIDEOINDEXER_ACCOUNTID.
	EnvPrefix = "VIDEO_ANALYZE"
)

// Keys referenced outside this package (flag binding, SSM).
const (
	KeyLocation        = "azureVideoIndexer.location"
	KeyAccountID       = "azureVideoIndexer.accountId"
	KeySubscriptionID  = "azureVideoIndexer.subscriptionId"
	KeyResourceGroup   = "azureVideoIndexer.resourceGroup"
	KeyAccountName     = "azureVideoIndexer.accountName"
	KeyPollInterval    = "analysis.pollInterval"
	KeyOutputPath      = "analysis.outputPath"
	KeySourceBackend   = "source.backend"
	KeySourceURL       = "source.url"
	KeySSMPrefix       = "ssmPrefix"
	KeyLedgerTable     = "ledger.table"
	KeyEventsBusName   = "events.busName"
	KeyManagedIdentity = "azureVideoIndexer.managedIdentityDownload"
)

// requiredKeys are the account settings without defaults.
var requiredKeys = []string{
	KeyLocation,
	KeyAccountID,
	KeySubscriptionID,
	KeyResourceGroup,
	KeyAccountName,
}

// VideoIndexer holds the Azure Video Indexer account settings.
type VideoIndexer struct {
	Location                string `mapstructure:"location"`
	AccountID               string `mapstructure:"accountId"`
	SubscriptionID          string `mapstructure:"subscriptionId"`
	ResourceGroup           string `mapstructure:"resourceGroup"`
	AccountName             string `mapstructure:"accountName"`
	APIBaseURL              string `mapstructure:"apiBaseURL"`
	ARMBaseURL              string `mapstructure:"armBaseURL"`
	Language                string `mapstructure:"language"`
	RetentionPeriod         int    `mapstructure:"retentionPeriod"`
	ManagedIdentityDownload bool   `mapstructure:"managedIdentityDownload"`
}

// Analysis holds run settings.
type Analysis struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	OutputPath   string        `mapstructure:"outputPath"`
}

// Source selects how the local file is made reachable.
type Source struct {
	Backend           string        `mapstructure:"backend"`
	URL               string        `mapstructure:"url"`
	Bucket            string        `mapstructure:"bucket"`
	Prefix            string        `mapstructure:"prefix"`
	Container         string        `mapstructure:"container"`
	StorageAccountURL string        `mapstructure:"storageAccountURL"`
	PresignExpiry     time.Duration `mapstructure:"presignExpiry"`
	Region            string        `mapstructure:"region"`
	CredentialsFile   string        `mapstructure:"credentialsFile"`
}

// Ledger enables the DynamoDB job ledger when Table is set.
type Ledger struct {
	Table string `mapstructure:"table"`
}

// Events enables EventBridge completion events when BusName is set.
type Events struct {
	BusName string `mapstructure:"busName"`
}

// Config is the resolved configuration.
type Config struct {
	AzureVideoIndexer VideoIndexer `mapstructure:"azureVideoIndexer"`
	Analysis          Analysis     `mapstructure:"analysis"`
	Source            Source       `mapstructure:"source"`
	Ledger            Ledger       `mapstructure:"ledger"`
	Events            Events       `mapstructure:"events"`
	SSMPrefix         string       `mapstructure:"ssmPrefix"`
}

// defaults registers every key so environment variables are picked up by
// Unmarshal even when the key appears nowhere else.
var defaults = map[string]interface{}{
	KeyLocation:                         "",
	KeyAccountID:                        "",
	KeySubscriptionID:                   "",
	KeyResourceGroup:                    "",
	KeyAccountName:                      "",
	"azureVideoIndexer.apiBaseURL":      "https://api.videoindexer.ai",
	"azureVideoIndexer.armBaseURL":      "https://management.azure.com",
	"azureVideoIndexer.language":        "English",
	"azureVideoIndexer.retentionPeriod": 1,
	KeyManagedIdentity:                  true,
	KeyPollInterval:                     10 * time.Second,
	KeyOutputPath:                       "VideoIndex.json",
	KeySourceBackend:                    "url",
	KeySourceURL:                        "",
	"source.bucket":                     "",
	"source.prefix":                     "video-analyze",
	"source.container":                  "",
	"source.storageAccountURL":          "",
	"source.presignExpiry":              4 * time.Hour,
	"source.region":                     "",
	"source.credentialsFile":            "",
	KeyLedgerTable:                      "",
	KeyEventsBusName:                    "",
	KeySSMPrefix:                        "",
}

// New returns a viper instance with defaults and environment binding set.
// Callers bind command flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads configFile, or video-analyze.yaml from the working
// directory when configFile is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// MissingKeys returns the required keys that have no value in v.
func MissingKeys(v *viper.Viper) []string {
	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks the resolved configuration and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	required := []struct {
		key   string
		value string
	}{
		{KeyLocation, c.AzureVideoIndexer.Location},
		{KeyAccountID, c.AzureVideoIndexer.AccountID},
		{KeySubscriptionID, c.AzureVideoIndexer.SubscriptionID},
		{KeyResourceGroup, c.AzureVideoIndexer.ResourceGroup},
		{KeyAccountName, c.AzureVideoIndexer.AccountName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.key+" is required")
		}
	}

	if c.Analysis.PollInterval <= 0 {
		problems = append(problems, KeyPollInterval+" must be positive")
	}
	if c.AzureVideoIndexer.RetentionPeriod < 0 {
		problems = append(problems, "azureVideoIndexer.retentionPeriod must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
