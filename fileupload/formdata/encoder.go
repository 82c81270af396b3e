// Package formdata encodes form fields and a single file as a streamed multipart/form-data body.
package formdata

import (
	"context"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/textproto"
	"slices"
	"strings"

	"github.com/bitrise-io/go-fileuploader/fileupload/progress"
	"golang.org/x/sync/errgroup"
)

// OpaqueContentType is the file part's content type when progress reporting is off.
const OpaqueContentType = "application/octet-stream"

// Field is a plain form field.
type Field struct {
	Key   string
	Value string
}

// FieldsFromMap returns the fields sorted by key.
func FieldsFromMap(m map[string]string) []Field {
	fields := make([]Field, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fields = append(fields, Field{Key: k, Value: m[k]})
	}
	return fields
}

// FilePart is the file attached after the fields. Content must yield exactly Size bytes.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Encoder writes one multipart body. It reads FilePart.Content once.
type Encoder struct {
	fields   []Field
	file     FilePart
	tracker  *progress.Tracker
	boundary string
}

// NewEncoder returns an Encoder streaming the file part through tracker.
// A nil tracker copies with the default segment size and no reporting.
func NewEncoder(fields []Field, file FilePart, tracker *progress.Tracker) *Encoder {
	if tracker == nil {
		tracker = progress.New(nil, progress.DefaultSegmentSize)
	}
	return &Encoder{
		fields:   fields,
		file:     file,
		tracker:  tracker,
		boundary: multipart.NewWriter(io.Discard).Boundary(),
	}
}

// Boundary ...
func (e *Encoder) Boundary() string {
	return e.boundary
}

// ContentType returns the value for the request's Content-Type header.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// ContentLength returns the exact number of bytes Encode writes.
func (e *Encoder) ContentLength() (int64, error) {
	cw := &countingWriter{w: io.Discard}
	mw, err := e.newWriter(cw)
	if err != nil {
		return 0, err
	}
	if err := e.writeFields(context.Background(), mw); err != nil {
		return 0, err
	}
	if _, err := mw.CreatePart(e.fileHeader()); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	return cw.n + e.file.Size, nil
}

// Encode writes the whole body to w: the fields, the file part and the closing boundary.
func (e *Encoder) Encode(ctx context.Context, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	mw, err := e.newWriter(cw)
	if err != nil {
		return 0, err
	}

	if err := e.writeFields(ctx, mw); err != nil {
		return cw.n, err
	}

	part, err := mw.CreatePart(e.fileHeader())
	if err != nil {
		return cw.n, fmt.Errorf("create file part: %w", err)
	}
	if _, err := e.tracker.Copy(ctx, part, e.file.Content, e.file.Size); err != nil {
		return cw.n, fmt.Errorf("write file part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return cw.n, fmt.Errorf("close multipart body: %w", err)
	}
	return cw.n, nil
}

// Pipe encodes the body on a background goroutine and returns its read side.
// Closing the reader stops the writer. wait returns the writer's error once it has exited.
func (e *Encoder) Pipe(ctx context.Context) (body io.ReadCloser, wait func() error) {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.Encode(gctx, pw)
		// A nil error makes the reader see io.EOF.
		_ = pw.CloseWithError(err)
		return err
	})
	return pr, g.Wait
}

func (e *Encoder) newWriter(w io.Writer) (*multipart.Writer, error) {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(e.boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}
	return mw, nil
}

func (e *Encoder) writeFields(ctx context.Context, mw *multipart.Writer) error {
	for _, field := range e.fields {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := mw.WriteField(field.Key, field.Value); err != nil {
			return fmt.Errorf("write field %s: %w", field.Key, err)
		}
	}
	return nil
}

func (e *Encoder) fileHeader() textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(e.file.FieldName), escapeQuotes(e.file.FileName)))
	h.Set("Content-Type", e.file.ContentType)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
