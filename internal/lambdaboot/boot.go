// Package lambdaboot resolves credentials and assembles the pipeline from
// a Config. The CLI and the scheduler Lambda share it, so both run the
// same components against the same stores.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/config"
)

// Default SSM parameter paths for secrets not set in config or environment.
const (
	DefaultTokenParam  = "/catalog-post-automation/prod/instagram-access-token"
	DefaultUserIDParam = "/catalog-post-automation/prod/instagram-user-id"
	DefaultGeminiParam = "/catalog-post-automation/prod/gemini-api-key"
)

// ErrNoInstagramCredentials is returned when a flow needs the Graph API but
// no token or user id could be resolved.
var ErrNoInstagramCredentials = errors.New("instagram credentials not configured")

// ParamAPI is the subset of the SSM client used here.
type ParamAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// LoadAWSConfig loads the default AWS config.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// GetParam reads one parameter.
func GetParam(ctx context.Context, client ParamAPI, name string, decrypt bool) (string, error) {
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", name)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("Parameter loaded from SSM")
	return *result.Parameter.Value, nil
}

// ResolveInstagramCreds fills the access token and user id from SSM when
// config and environment left them empty. Missing parameters are not an
// error here; flows that publish check for ErrNoInstagramCredentials.
func ResolveInstagramCreds(ctx context.Context, client ParamAPI, ig *config.InstagramConfig) {
	if ig.AccessToken == "" {
		ig.SSMTokenParam = orDefault(ig.SSMTokenParam, DefaultTokenParam)
		token, err := GetParam(ctx, client, ig.SSMTokenParam, true)
		if err != nil {
			log.Warn().Err(err).Msg("Instagram access token not available, publishing disabled")
		}
		ig.AccessToken = token
	}
	if ig.UserID == "" {
		ig.SSMUserIDParam = orDefault(ig.SSMUserIDParam, DefaultUserIDParam)
		userID, err := GetParam(ctx, client, ig.SSMUserIDParam, false)
		if err != nil {
			log.Warn().Err(err).Msg("Instagram user ID not available, publishing disabled")
		}
		ig.UserID = userID
	}
}

// LoadGeminiKey fills the Gemini API key from SSM when it is not set.
func LoadGeminiKey(ctx context.Context, client ParamAPI, c *config.CaptionConfig) error {
	if c.APIKey != "" {
		return nil
	}
	key, err := GetParam(ctx, client, DefaultGeminiParam, true)
	if err != nil {
		return err
	}
	c.APIKey = key
	return nil
}

// StoreToken overwrites the token parameter with a refreshed token.
func StoreToken(ctx context.Context, client ParamAPI, name, token string) error {
	_, err := client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      &name,
		Value:     &token,
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("write SSM parameter %s: %w", name, err)
	}
	log.Info().Str("param", name).Msg("Refreshed token stored in SSM")
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
