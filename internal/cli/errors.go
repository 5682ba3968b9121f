package cli

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mjrousos/video-analysis-exploration/internal/auth"
	"github.com/mjrousos/video-analysis-exploration/internal/config"
	"github.com/mjrousos/video-analysis-exploration/internal/indexer"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// DescribeError returns an operator-facing message for err.
func DescribeError(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		switch authErr.Type {
		case auth.ErrTypeCredential:
			return "No Azure credential available. Sign in with 'az login' or configure a managed identity"
		case auth.ErrTypeExchange:
			if authErr.StatusCode == http.StatusForbidden || authErr.StatusCode == http.StatusUnauthorized {
				return "Access token request was denied. Check the identity has Contributor on the Video Indexer account"
			}
			if authErr.StatusCode == http.StatusNotFound {
				return "Video Indexer account not found. Check subscriptionId, resourceGroup and accountName"
			}
			return "Failed to get a Video Indexer access token"
		default:
			return "Unexpected access token response"
		}
	}

	var idxErr *indexer.Error
	if errors.As(err, &idxErr) {
		switch idxErr.Kind {
		case indexer.KindAuthentication:
			return "Failed to get a Video Indexer access token"
		case indexer.KindUpload:
			if idxErr.StatusCode == http.StatusBadRequest {
				return "Video upload was rejected. Check the video URL is reachable by Video Indexer"
			}
			return "Failed to upload video"
		case indexer.KindFetch:
			return "Failed to retrieve video index"
		default:
			return "Failed to get video state"
		}
	}

	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		return "Configuration is incomplete"
	}

	return "Analysis failed"
}

// HandleAnalysisError logs err with an operator-facing message and returns
// the exit code.
func HandleAnalysisError(err error) int {
	log.Error().Err(err).Msg(DescribeError(err))
	return ExitFailure
}
