package indexer

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// PollObserver is notified after every state query with the updated upload.
type PollObserver func(upload Upload)

// VideoState queries the current processing state of a video.
func (c *Client) VideoState(ctx context.Context, videoID string) (UploadState, error) {
	params, err := c.indexParams(ctx, videoID)
	if err != nil {
		return StateUnknownFallback, err
	}

	resp, err := c.do(ctx, http.MethodGet, c.indexURL(videoID, params))
	if err != nil {
		return StateUnknownFallback, &Error{Kind: KindPoll, VideoID: videoID, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return StateUnknownFallback, &Error{Kind: KindPoll, VideoID: videoID, StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
	}

	upload, err := decodeUpload(resp.Body)
	if err != nil {
		return StateUnknownFallback, &Error{Kind: KindPoll, VideoID: videoID, Err: err}
	}
	return upload.State, nil
}

// PollUntilTerminal queries the video state, waiting the poll interval
// between queries, until the state is Processed or Failed. upload.State is
// replaced after every query.
//
// Cancellation is checked before every query; on cancellation the last known
// state is returned together with ctx.Err() and the server-side job is left
// running. A failed query counts as StateUnknownFallback. Only an access token
// failure is returned as an error.
func (c *Client) PollUntilTerminal(ctx context.Context, upload *Upload, observers ...PollObserver) (UploadState, error) {
	for {
		if err := ctx.Err(); err != nil {
			log.Warn().Str("videoId", upload.VideoID).Msg("Analysis cancelled")
			return upload.State, err
		}

		state, err := c.VideoState(ctx, upload.VideoID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Warn().Str("videoId", upload.VideoID).Msg("Analysis cancelled")
				return upload.State, ctxErr
			}
			var idxErr *Error
			if errors.As(err, &idxErr) && idxErr.Kind == KindAuthentication {
				return upload.State, err
			}
			log.Error().Err(err).Str("videoId", upload.VideoID).Msg("Failed to get video state")
		}

		upload.State = state
		upload.Polls++
		for _, observe := range observers {
			observe(*upload)
		}

		if state.IsTerminal() {
			return state, nil
		}

		log.Info().
			Str("videoId", upload.VideoID).
			Stringer("state", state).
			Int("poll", upload.Polls).
			Msg("Video state")

		if err := c.wait(ctx, c.pollInterval); err != nil {
			log.Warn().Str("videoId", upload.VideoID).Msg("Analysis cancelled")
			return upload.State, err
		}
	}
}
