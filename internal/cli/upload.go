package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-fileuploader/fileupload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

const defaultFieldName = "file"

type uploadOptions struct {
	configPath  string
	serverURL   string
	headers     []string
	fields      []string
	fieldName   string
	fileName    string
	mimeType    string
	noProgress  bool
	timeout     time.Duration
	segmentSize int64
	verbose     bool
}

func newUploadCmd() *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file",
		Long: `Upload a file to an HTTP endpoint and print every state of the upload.

Examples:
  fileuploader upload photo.jpg --url https://example.com/upload
  fileuploader upload photo.jpg --config upload.yml
  fileuploader upload photo.jpg --url https://example.com/upload -H "Authorization=Bearer xyz" -F album=holidays

Settings given as flags override the ones in the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML upload config")
	flags.StringVar(&opts.serverURL, "url", "", "URL the file is posted to")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "Request header as Name=Value, can be repeated")
	flags.StringArrayVarP(&opts.fields, "field", "F", nil, "Form field as key=value, can be repeated")
	flags.StringVar(&opts.fieldName, "field-name", "", "Form field name of the file part (default \"file\")")
	flags.StringVar(&opts.fileName, "file-name", "", "File name reported to the server (default: base name of the file)")
	flags.StringVar(&opts.mimeType, "mime-type", "", "MIME type of the file part (default: detected from the content)")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Send the file as an opaque part without progress reporting")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Request timeout, 0 means none")
	flags.Int64Var(&opts.segmentSize, "segment-size", 0, "Bytes written between progress samples (default 2048)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logs")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *uploadOptions, pth string) error {
	logger := log.NewLogger()
	logger.EnableDebugLog(opts.verbose)

	cfg, uploaderOpts, err := opts.uploadConfig(pth)
	if err != nil {
		return err
	}

	if info, err := os.Stat(pth); err == nil {
		logger.Infof("Uploading %s (%s) to %s", pth, units.HumanSize(float64(info.Size())), cfg.ServerURL())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stream := fileupload.NewUploader(cfg, logger, uploaderOpts...).UploadPath(ctx, pth, !opts.noProgress)
	defer stream.Close() //nolint:errcheck

	return render(cmd.OutOrStdout(), stream)
}

// render prints one line per state and turns the outcome into the command's error.
func render(w io.Writer, stream *fileupload.Stream) error {
	for state := range stream.Events() {
		if _, err := fmt.Fprintln(w, state); err != nil {
			return err
		}
		if failed, ok := state.(fileupload.Failed); ok {
			return fmt.Errorf("upload failed: %w", failed.Err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("upload cancelled: %w", err)
	}
	return nil
}

func (o *uploadOptions) uploadConfig(pth string) (fileupload.Config, []fileupload.Option, error) {
	var fc fileConfig
	if o.configPath != "" {
		var err error
		if fc, err = loadConfigFile(o.configPath); err != nil {
			return fileupload.Config{}, nil, err
		}
	}

	builder := fileupload.NewBuilder().
		ServerURL(firstNonEmpty(o.serverURL, fc.ServerURL)).
		FormFields(fc.FormFields)

	var namesAndValues []string
	for _, h := range fc.Headers {
		namesAndValues = append(namesAndValues, h.Name, h.Value)
	}
	builder.Headers(namesAndValues...)
	for _, h := range o.headers {
		name, value, err := splitPair(h)
		if err != nil {
			return fileupload.Config{}, nil, fmt.Errorf("invalid header: %w", err)
		}
		builder.AddHeader(name, value)
	}
	for _, f := range o.fields {
		key, value, err := splitPair(f)
		if err != nil {
			return fileupload.Config{}, nil, fmt.Errorf("invalid form field: %w", err)
		}
		builder.FormField(key, value)
	}

	mimeType := firstNonEmpty(o.mimeType, fc.Part.MimeType)
	if mimeType == "" {
		mimeType = detectMimeType(pth)
	}
	builder.PartParameters(
		firstNonEmpty(o.fieldName, fc.Part.FieldName, defaultFieldName),
		firstNonEmpty(o.fileName, fc.Part.FileName, filepath.Base(pth)),
		mimeType,
	)

	cfg, err := builder.Build()
	if err != nil {
		return fileupload.Config{}, nil, err
	}

	uploaderOpts := []fileupload.Option{
		fileupload.WithTimeout(fc.Timeout),
	}
	if o.timeout > 0 {
		uploaderOpts = append(uploaderOpts, fileupload.WithTimeout(o.timeout))
	}
	if o.segmentSize > 0 {
		uploaderOpts = append(uploaderOpts, fileupload.WithSegmentSize(o.segmentSize))
	}

	return cfg, uploaderOpts, nil
}

// detectMimeType sniffs the file content. Unreadable files fall back to a generic type,
// the upload itself reports the access error.
func detectMimeType(pth string) string {
	mtype, err := mimetype.DetectFile(pth)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

func splitPair(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("%q is not in key=value form", s)
	}
	return key, value, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
