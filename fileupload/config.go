package fileupload

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Header is a single request header. Duplicated names are sent as they are.
type Header struct {
	Name  string `validate:"required"`
	Value string
}

// PartParams describes the multipart part holding the file.
type PartParams struct {
	FieldName string `validate:"required"`
	FileName  string `validate:"required"`
	MimeType  string `validate:"required"`
}

// Config is the immutable description of an upload target. Build it with a Builder.
type Config struct {
	serverURL  string
	headers    []Header
	formFields map[string]string
	partParams PartParams
}

// ServerURL ...
func (c Config) ServerURL() string {
	return c.serverURL
}

// Headers returns the configured headers in the order they were supplied.
func (c Config) Headers() []Header {
	return append([]Header(nil), c.headers...)
}

// FormFields ...
func (c Config) FormFields() map[string]string {
	fields := make(map[string]string, len(c.formFields))
	for k, v := range c.formFields {
		fields[k] = v
	}
	return fields
}

// PartParams ...
func (c Config) PartParams() PartParams {
	return c.partParams
}

// Validate checks that the config can be used for an upload.
// The zero Config is invalid.
func (c Config) Validate() error {
	rules := configRules{
		ServerURL: c.serverURL,
		Headers:   c.headers,
		Part:      c.partParams,
	}
	if err := configValidator().Struct(rules); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

type configRules struct {
	ServerURL string   `validate:"required,http_url"`
	Headers   []Header `validate:"dive"`
	Part      PartParams
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Builder accumulates upload settings. The zero value is ready to use.
type Builder struct {
	serverURL  string
	headers    []Header
	formFields map[string]string
	partParams PartParams
	err        error
}

// NewBuilder ...
func NewBuilder() *Builder {
	return &Builder{}
}

// ServerURL sets the absolute http(s) URL the file is posted to.
func (b *Builder) ServerURL(value string) *Builder {
	b.serverURL = value
	return b
}

// Headers replaces the headers with an alternating name, value sequence.
// An odd number of arguments makes Build fail.
// Repeated names are all sent. Host sets the request's host, Content-Type and
// Content-Length are always replaced by the values of the encoded body.
func (b *Builder) Headers(namesAndValues ...string) *Builder {
	if len(namesAndValues)%2 != 0 {
		b.err = fmt.Errorf("%w: got %d values, trailing name %q", ErrOddHeaderList, len(namesAndValues), namesAndValues[len(namesAndValues)-1])
		return b
	}

	b.err = nil
	b.headers = make([]Header, 0, len(namesAndValues)/2)
	for i := 0; i < len(namesAndValues); i += 2 {
		b.headers = append(b.headers, Header{Name: namesAndValues[i], Value: namesAndValues[i+1]})
	}
	return b
}

// AddHeader appends a single header.
func (b *Builder) AddHeader(name, value string) *Builder {
	b.headers = append(b.headers, Header{Name: name, Value: value})
	return b
}

// FormFields replaces the plain form fields.
func (b *Builder) FormFields(fields map[string]string) *Builder {
	b.formFields = make(map[string]string, len(fields))
	for k, v := range fields {
		b.formFields[k] = v
	}
	return b
}

// FormField sets a single plain form field.
func (b *Builder) FormField(key, value string) *Builder {
	if b.formFields == nil {
		b.formFields = map[string]string{}
	}
	b.formFields[key] = value
	return b
}

// PartParameters sets the field name, reported file name and MIME type of the file part.
func (b *Builder) PartParameters(fieldName, fileName, mimeType string) *Builder {
	b.partParams = PartParams{
		FieldName: fieldName,
		FileName:  fileName,
		MimeType:  mimeType,
	}
	return b
}

// Build returns the validated Config. Later changes to the Builder do not affect it.
func (b *Builder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, b.err)
	}

	cfg := Config{
		serverURL:  b.serverURL,
		headers:    append([]Header(nil), b.headers...),
		formFields: make(map[string]string, len(b.formFields)),
		partParams: b.partParams,
	}
	for k, v := range b.formFields {
		cfg.formFields[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
