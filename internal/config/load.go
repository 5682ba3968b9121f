package config

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
)

// SSMFactory creates the SSM client on demand.
type SSMFactory func(ctx context.Context) (SSMAPI, error)

// Load reads the config file, fills missing account settings from SSM when
// ssmPrefix is set, then decodes and validates the result.
func Load(ctx context.Context, v *viper.Viper, configFile string, newSSM SSMFactory) (*Config, error) {
	if err := ReadFile(v, configFile); err != nil {
		return nil, err
	}

	if prefix := v.GetString(KeySSMPrefix); prefix != "" && len(MissingKeys(v)) > 0 {
		client, err := newSSM(ctx)
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		if err := LoadFromSSM(ctx, v, client, prefix); err != nil {
			return nil, err
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
