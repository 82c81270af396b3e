// Package fileupload posts a single file as multipart/form-data and reports the upload as a stream of states.
package fileupload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/bitrise-io/go-fileuploader/fileupload/formdata"
	"github.com/bitrise-io/go-fileuploader/fileupload/progress"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// File is an open, seekable file whose size does not change during the upload.
// The upload takes ownership of it and closes it. *os.File implements it.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
	Stat() (fs.FileInfo, error)
}

// Uploader sends files to the target described by a Config.
// It keeps no state between uploads and can be used from multiple goroutines.
type Uploader struct {
	config      Config
	httpClient  *retryablehttp.Client
	logger      log.Logger
	segmentSize int64
	eventBuffer int
}

// NewUploader creates a new Uploader. The config is validated when an upload starts.
func NewUploader(config Config, logger log.Logger, opts ...Option) *Uploader {
	c := DefaultUploaderConfig()
	for _, opt := range opts {
		opt(&c)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(logger, c.Timeout)
	}

	return &Uploader{
		config:      config,
		httpClient:  httpClient,
		logger:      logger,
		segmentSize: c.SegmentSize,
		eventBuffer: c.EventBuffer,
	}
}

// Upload posts file on a background goroutine. Started is already on the returned stream.
// withProgress=false sends the file as an opaque application/octet-stream part without Progress states.
// Failures are reported as Failed states, never returned or panicked.
func (u *Uploader) Upload(ctx context.Context, file File, withProgress bool) *Stream {
	return u.start(ctx, func() (File, error) {
		if file == nil {
			return nil, errors.New("no file given")
		}
		return file, nil
	}, withProgress)
}

// UploadPath opens the file at path and uploads it like Upload.
func (u *Uploader) UploadPath(ctx context.Context, path string, withProgress bool) *Stream {
	return u.start(ctx, func() (File, error) {
		return os.Open(path)
	}, withProgress)
}

func (u *Uploader) start(ctx context.Context, open func() (File, error), withProgress bool) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(uuid.NewString(), u.eventBuffer, cancel)
	s.emit(ctx, Started{})

	go u.run(ctx, s, open, withProgress)

	return s
}

func (u *Uploader) run(ctx context.Context, s *Stream, open func() (File, error), withProgress bool) {
	terminated := false
	defer func() { s.finish(ctx, terminated) }()

	state := u.uploadFile(ctx, s, open, withProgress)
	if ctx.Err() != nil {
		u.logger.Debugf("[%s] Upload cancelled: %s", s.id, ctx.Err())
		return
	}
	terminated = s.emit(ctx, state)
}

// uploadFile releases the file before returning, so a consumer that is slow to receive
// the terminal state does not keep it open.
func (u *Uploader) uploadFile(ctx context.Context, s *Stream, open func() (File, error), withProgress bool) State {
	file, err := open()
	if err != nil {
		return Failed{Err: fmt.Errorf("%w: open file: %w", ErrFileAccess, err)}
	}
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
			u.logger.Errorf("[%s] Failed to close file: %s", s.id, err)
		}
	}()

	return u.upload(ctx, s, file, withProgress)
}

func (u *Uploader) upload(ctx context.Context, s *Stream, file File, withProgress bool) State {
	if err := u.config.Validate(); err != nil {
		return Failed{Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		return Failed{Err: fmt.Errorf("%w: stat file: %w", ErrFileAccess, err)}
	}
	if info.IsDir() {
		return Failed{Err: fmt.Errorf("%w: %s is a directory", ErrFileAccess, info.Name())}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Failed{Err: fmt.Errorf("%w: seek file: %w", ErrFileAccess, err)}
	}
	size := info.Size()

	part := u.config.partParams
	u.logger.Debugf("[%s] Upload %s (%s) to %s", s.id, part.FileName, units.HumanSize(float64(size)), u.config.serverURL)

	tracker := progress.New(nil, u.segmentSize)
	contentType := part.MimeType
	if withProgress {
		tracker = progress.New(func(percent int) {
			if !s.offer(ctx, Progress{Percent: percent}) {
				u.logger.Debugf("[%s] Progress %d%% dropped", s.id, percent)
			}
		}, u.segmentSize)
	} else {
		contentType = formdata.OpaqueContentType
	}

	encoder := formdata.NewEncoder(formdata.FieldsFromMap(u.config.formFields), formdata.FilePart{
		FieldName:   part.FieldName,
		FileName:    part.FileName,
		ContentType: contentType,
		Size:        size,
		Content:     file,
	}, tracker)

	contentLength, err := encoder.ContentLength()
	if err != nil {
		return Failed{Err: fmt.Errorf("%w: compute body length: %w", ErrConfiguration, err)}
	}

	body, wait := encoder.Pipe(ctx)
	req, err := u.newRequest(ctx, encoder.ContentType(), contentLength, body)
	if err != nil {
		_ = body.Close()
		_ = wait()
		return Failed{Err: fmt.Errorf("%w: create request: %w", ErrConfiguration, err)}
	}

	resp, doErr := u.httpClient.Do(req)
	// Unblocks the encoder if the transport stopped reading early.
	_ = body.Close()
	encodeErr := wait()

	if encodeErr != nil && !errors.Is(encodeErr, io.ErrClosedPipe) {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return Failed{Err: fmt.Errorf("%w: %w", ErrFileAccess, encodeErr)}
	}
	if doErr != nil {
		return Failed{Err: fmt.Errorf("%w: %w", ErrNetwork, doErr)}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			u.logger.Warnf("[%s] Failed to close response body: %s", s.id, err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed{Err: fmt.Errorf("%w: read response body: %w", ErrNetwork, err)}
	}

	if after, err := file.Stat(); err == nil && after.Size() != size {
		return Failed{Err: fmt.Errorf("%w: %w: %d bytes before, %d after", ErrFileAccess, progress.ErrSizeChanged, size, after.Size())}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.logger.Warnf("[%s] Server responded with %s", s.id, resp.Status)
	}
	u.logger.Debugf("[%s] Upload finished: %s", s.id, resp.Status)

	result := string(respBody)
	if result == "" {
		result = describeResponse(resp)
	}
	return Done{Body: result, StatusCode: resp.StatusCode}
}

func (u *Uploader) newRequest(ctx context.Context, contentType string, contentLength int64, body io.Reader) (*retryablehttp.Request, error) {
	// retryablehttp closes what a ReaderFunc returns while measuring it, hide Close from it.
	reader := struct{ io.Reader }{body}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.config.serverURL, retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return reader, nil
	}))
	if err != nil {
		return nil, err
	}

	for _, h := range u.config.headers {
		// net/http ignores Host in the header map.
		if http.CanonicalHeaderKey(h.Name) == "Host" {
			req.Host = h.Value
			continue
		}
		req.Header[h.Name] = append(req.Header[h.Name], h.Value)
	}
	req.Header.Set("Content-Type", contentType)

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	req.ContentLength = contentLength

	return req, nil
}

func describeResponse(resp *http.Response) string {
	if resp.Request == nil {
		return fmt.Sprintf("%s %s", resp.Proto, resp.Status)
	}
	return fmt.Sprintf("%s %s (%s %s)", resp.Proto, resp.Status, resp.Request.Method, resp.Request.URL)
}
