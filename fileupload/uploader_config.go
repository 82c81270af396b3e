package fileupload

import (
	"context"
	"net/http"
	"time"

	"github.com/bitrise-io/go-fileuploader/fileupload/progress"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// UploaderConfig holds the tunables of an Uploader.
type UploaderConfig struct {
	// SegmentSize is the number of file bytes written between two progress samples.
	// Default: progress.DefaultSegmentSize (2 KiB)
	SegmentSize int64

	// Timeout bounds the whole request, including streaming the body and reading the response.
	// Zero means no timeout. Ignored when HTTPClient is set.
	Timeout time.Duration

	// EventBuffer is the capacity of the stream's channel.
	// Default: 16
	EventBuffer int

	// HTTPClient is used to send the request.
	// If nil, a client without retries is created from the logger.
	HTTPClient *retryablehttp.Client
}

// DefaultUploaderConfig returns the default configuration.
func DefaultUploaderConfig() UploaderConfig {
	return UploaderConfig{
		SegmentSize: progress.DefaultSegmentSize,
		Timeout:     0,
		EventBuffer: 16,
		HTTPClient:  nil, // Will be created by NewUploader
	}
}

// Option modifies the UploaderConfig used by NewUploader.
type Option func(*UploaderConfig)

// WithSegmentSize ...
func WithSegmentSize(size int64) Option {
	return func(c *UploaderConfig) { c.SegmentSize = size }
}

// WithTimeout ...
func WithTimeout(timeout time.Duration) Option {
	return func(c *UploaderConfig) { c.Timeout = timeout }
}

// WithEventBuffer ...
func WithEventBuffer(size int) Option {
	return func(c *UploaderConfig) { c.EventBuffer = size }
}

// WithHTTPClient ...
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(c *UploaderConfig) { c.HTTPClient = client }
}

// NewHTTPClient creates the default client of an Uploader: go-utils' retryable client with retries turned off.
// The request body is streamed once, a failed attempt can not be replayed.
func NewHTTPClient(logger log.Logger, timeout time.Duration) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	client.CheckRetry = noRetryPolicy
	client.HTTPClient.Timeout = timeout
	return client
}

func noRetryPolicy(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}
