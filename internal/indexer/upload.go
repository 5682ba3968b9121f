package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultName returns the video name used when none is given: the file's
// base name without its extension.
func DefaultName(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StartUpload registers req.VideoURL with the service and returns the new
// upload with its initial state. No Upload is returned on failure.
func (c *Client) StartUpload(ctx context.Context, req UploadRequest) (*Upload, error) {
	name := req.Name
	if name == "" {
		name = DefaultName(req.FilePath)
	}
	description := req.Description
	if description == "" {
		description = DefaultDescription
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuthentication, Err: err}
	}

	params := url.Values{
		"name":                              {name},
		"description":                       {description},
		"privacy":                           {"private"},
		"videoUrl":                          {req.VideoURL},
		"language":                          {c.language},
		"accessToken":                       {token},
		"useManagedIdentityToDownloadVideo": {boolString(c.managedIdentity)},
		"retentionPeriod":                   {strconv.Itoa(c.retentionPeriod)},
		"preventDuplicates":                 {"false"},
	}

	log.Debug().Str("name", name).Bool("managedIdentity", c.managedIdentity).Msg("Registering video upload")

	resp, err := c.do(ctx, http.MethodPost, c.videosURL()+"?"+params.Encode())
	if err != nil {
		return nil, &Error{Kind: KindUpload, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body := readErrorBody(resp)
		log.Error().Int("statusCode", resp.StatusCode).Msg("Failed to upload video")
		return nil, &Error{Kind: KindUpload, StatusCode: resp.StatusCode, Body: body}
	}

	upload, err := decodeUpload(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to deserialize video state response")
		return nil, &Error{Kind: KindUpload, Err: err}
	}

	log.Info().
		Str("videoId", upload.VideoID).
		Stringer("state", upload.State).
		Msg("Video upload started")
	return upload, nil
}

// decodeUpload parses an Upload from a Videos or Index response body.
// Both id and state must be present.
func decodeUpload(r io.Reader) (*Upload, error) {
	var parsed uploadResponse
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.ID == "" {
		return nil, errors.New("response has no video id")
	}
	if parsed.State == nil {
		return nil, errors.New("response has no state")
	}
	return &Upload{VideoID: parsed.ID, State: *parsed.State}, nil
}
