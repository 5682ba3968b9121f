package config

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// SSMAPI is the subset of the SSM client used to fill missing settings.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// parameterName maps a required key to its SSM parameter, e.g.
// azureVideoIndexer.accountId -> {prefix}/accountId.
func parameterName(prefix, key string) string {
	return path.Join(prefix, path.Ext(key)[1:])
}

// LoadFromSSM reads every missing required key from {prefix}/{name}. A
// parameter that does not exist is skipped so Validate can report it with
// the others; any other SSM failure is returned.
func LoadFromSSM(ctx context.Context, v *viper.Viper, client SSMAPI, prefix string) error {
	for _, key := range MissingKeys(v) {
		name := parameterName(prefix, key)
		start := time.Now()

		result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &name,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				log.Warn().Str("param", name).Msg("Parameter not found in SSM")
				continue
			}
			return fmt.Errorf("read %s from SSM: %w", name, err)
		}

		v.Set(key, aws.ToString(result.Parameter.Value))
		log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("Setting loaded from SSM")
	}
	return nil
}
