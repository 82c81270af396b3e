// Package testserver runs a gin HTTP server that records multipart uploads for tests.
package testserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// UploadPath is the route uploads are posted to.
const UploadPath = "/upload"

const closingKey = "testserver.closing"

// Part is one received multipart part, in the order it arrived.
type Part struct {
	FormName    string
	FileName    string
	ContentType string
	Content     []byte
}

// Request is a received upload.
type Request struct {
	Method        string
	Host          string
	Header        http.Header
	ContentLength int64
	Parts         []Part
}

// Field returns the value of the first part named name that is not a file.
func (r Request) Field(name string) (string, bool) {
	for _, p := range r.Parts {
		if p.FormName == name && p.FileName == "" {
			return string(p.Content), true
		}
	}
	return "", false
}

// File returns the first file part.
func (r Request) File() (Part, bool) {
	for _, p := range r.Parts {
		if p.FileName != "" {
			return p, true
		}
	}
	return Part{}, false
}

// Server ...
type Server struct {
	*httptest.Server

	closing  chan struct{}
	mu       sync.Mutex
	requests []Request
}

// New starts a server that records every upload before running handlers.
func New(t testing.TB, handlers ...gin.HandlerFunc) *Server {
	s := &Server{}
	return s.start(t, append([]gin.HandlerFunc{s.record}, handlers...))
}

// NewRaw starts a server that runs handlers without reading the request body first.
func NewRaw(t testing.TB, handlers ...gin.HandlerFunc) *Server {
	s := &Server{}
	return s.start(t, handlers)
}

func (s *Server) start(t testing.TB, handlers []gin.HandlerFunc) *Server {
	gin.SetMode(gin.TestMode)

	s.closing = make(chan struct{})
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(closingKey, s.closing)
		c.Next()
	})
	router.POST(UploadPath, handlers...)

	s.Server = httptest.NewServer(router)
	t.Cleanup(func() {
		close(s.closing)
		s.Close()
	})
	return s
}

// UploadURL ...
func (s *Server) UploadURL() string {
	return s.URL + UploadPath
}

// Requests returns the recorded uploads.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(c *gin.Context) {
	req, err := readRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	c.Next()
}

func readRequest(r *http.Request) (Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return Request{}, fmt.Errorf("open multipart reader: %w", err)
	}

	req := Request{
		Method:        r.Method,
		Host:          r.Host,
		Header:        r.Header.Clone(),
		ContentLength: r.ContentLength,
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Request{}, fmt.Errorf("next part: %w", err)
		}
		req.Parts = append(req.Parts, readPart(part))
	}
	return req, nil
}

func readPart(part *multipart.Part) Part {
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, part)
	return Part{
		FormName:    part.FormName(),
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Content:     buf.Bytes(),
	}
}

// Respond writes body with the given status.
func Respond(status int, body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(status, "application/json", []byte(body))
	}
}

// RespondEmpty writes the status without a body.
func RespondEmpty(status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(status)
	}
}

// Hold keeps the request open without reading it until the client goes away or the server closes.
func Hold() gin.HandlerFunc {
	return Delay(time.Duration(1<<63 - 1))
}

// Delay waits d before answering 200, without reading the request.
func Delay(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		closing, _ := c.Get(closingKey)
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			c.Status(http.StatusOK)
		case <-c.Request.Context().Done():
		case <-closing.(chan struct{}):
		}
	}
}
