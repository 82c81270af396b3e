package fileupload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBuilder() *Builder {
	return NewBuilder().
		ServerURL("http://localhost:9999/upload").
		Headers("X-Test", "1").
		FormFields(map[string]string{"k": "v"}).
		PartParameters("file", "a.jpg", "image/jpeg")
}

func TestBuilder_Build(t *testing.T) {
	cfg, err := validBuilder().
		AddHeader("X-Test", "2").
		FormField("k2", "v2").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/upload", cfg.ServerURL())
	assert.Equal(t, []Header{{Name: "X-Test", Value: "1"}, {Name: "X-Test", Value: "2"}}, cfg.Headers())
	assert.Equal(t, map[string]string{"k": "v", "k2": "v2"}, cfg.FormFields())
	assert.Equal(t, PartParams{FieldName: "file", FileName: "a.jpg", MimeType: "image/jpeg"}, cfg.PartParams())
}

func TestBuilder_Build_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{
			name:    "odd header list",
			builder: validBuilder().Headers("X-Test", "1", "X-Dangling"),
			wantErr: ErrOddHeaderList,
		},
		{
			name:    "empty server url",
			builder: validBuilder().ServerURL(""),
			wantErr: ErrConfiguration,
		},
		{
			name:    "relative server url",
			builder: validBuilder().ServerURL("/upload"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "unsupported scheme",
			builder: validBuilder().ServerURL("ftp://localhost/upload"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "scheme with http prefix",
			builder: validBuilder().ServerURL("httpx://localhost/upload"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "opaque http url",
			builder: validBuilder().ServerURL("http:foo"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "missing part parameters",
			builder: validBuilder().PartParameters("", "a.jpg", "image/jpeg"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "missing mime type",
			builder: validBuilder().PartParameters("file", "a.jpg", ""),
			wantErr: ErrConfiguration,
		},
		{
			name:    "empty header name",
			builder: validBuilder().AddHeader("", "value"),
			wantErr: ErrConfiguration,
		},
		{
			name:    "defaults only",
			builder: NewBuilder(),
			wantErr: ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestBuilder_Headers_ReplacesOddList(t *testing.T) {
	_, err := validBuilder().Headers("X-Dangling").Headers("X-Test", "1").Build()

	require.NoError(t, err)
}

func TestBuilder_Build_IsolatesConfig(t *testing.T) {
	fields := map[string]string{"k": "v"}
	builder := validBuilder().FormFields(fields)

	cfg, err := builder.Build()
	require.NoError(t, err)

	fields["k"] = "changed"
	builder.FormField("other", "x").AddHeader("X-Other", "y").ServerURL("http://example.com")
	cfg.FormFields()["k"] = "changed too"

	assert.Equal(t, map[string]string{"k": "v"}, cfg.FormFields())
	assert.Equal(t, []Header{{Name: "X-Test", Value: "1"}}, cfg.Headers())
	assert.Equal(t, "http://localhost:9999/upload", cfg.ServerURL())
}

func TestConfig_Validate_ZeroValue(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrConfiguration)
}
