package indexer

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// FetchIndex retrieves the full index document of a processed video. The
// caller must close the returned body. On a non-success status nothing is
// returned, so no output is created.
func (c *Client) FetchIndex(ctx context.Context, videoID string) (io.ReadCloser, error) {
	params, err := c.indexParams(ctx, videoID)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, c.indexURL(videoID, params))
	if err != nil {
		return nil, &Error{Kind: KindFetch, VideoID: videoID, Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		body := readErrorBody(resp)
		resp.Body.Close()
		log.Error().Int("statusCode", resp.StatusCode).Str("videoId", videoID).Msg("Failed to get video index")
		return nil, &Error{Kind: KindFetch, VideoID: videoID, StatusCode: resp.StatusCode, Body: body}
	}

	log.Info().Str("videoId", videoID).Msg("Video index retrieved")
	return resp.Body, nil
}
