package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML representation of an upload target.
//
//	server_url: https://example.com/upload
//	headers:
//	  - name: Authorization
//	    value: Bearer xyz
//	form_fields:
//	  album: holidays
//	part:
//	  field_name: file
//	  mime_type: image/jpeg
//	timeout: 30s
type fileConfig struct {
	ServerURL  string            `yaml:"server_url"`
	Headers    []headerConfig    `yaml:"headers"`
	FormFields map[string]string `yaml:"form_fields"`
	Part       partConfig        `yaml:"part"`
	Timeout    time.Duration     `yaml:"timeout"`
}

type headerConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type partConfig struct {
	FieldName string `yaml:"field_name"`
	FileName  string `yaml:"file_name"`
	MimeType  string `yaml:"mime_type"`
}

func loadConfigFile(pth string) (fileConfig, error) {
	f, err := os.Open(pth)
	if err != nil {
		return fileConfig{}, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return parseConfig(f)
}

func parseConfig(r io.Reader) (fileConfig, error) {
	var cfg fileConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
