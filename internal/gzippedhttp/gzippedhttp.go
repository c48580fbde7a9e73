// Package gzippedhttp provides middlewares that transparently decompress gzip
// request bodies and compress responses for clients that accept gzip.
// Event streams are passed through uncompressed so every event reaches the
// client as soon as it is flushed.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

const eventStreamContentType = "text/event-stream"

// CompressedReader wraps an io.ReadCloser and decompresses its input using gzip.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

// NewCompressedReader returns a new CompressedReader that reads gzip-compressed data
// from the provided io.ReadCloser.
func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zippedRequestBody, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{
		r:  requestBody,
		zr: zippedRequestBody,
	}, nil
}

// Read reads decompressed data from the underlying gzip stream.
func (c *CompressedReader) Read(p []byte) (n int, err error) {
	return c.zr.Read(p)
}

// Close closes both the gzip reader and the underlying io.ReadCloser.
func (c *CompressedReader) Close() error {
	if err := c.r.Close(); err != nil {
		return err
	}
	return c.zr.Close()
}

// CompressedHTTPResponseWriter compresses successful responses. The
// decision is taken on the first WriteHeader/Write, when the status and the
// content type are known.
type CompressedHTTPResponseWriter struct {
	w           http.ResponseWriter
	zw          *gzip.Writer
	decided     bool
	compressing bool
}

// NewCompressedHTTPResponseWriter returns a writer that gzips the body of
// successful, non-streaming responses written to w.
func NewCompressedHTTPResponseWriter(w http.ResponseWriter) *CompressedHTTPResponseWriter {
	return &CompressedHTTPResponseWriter{w: w}
}

func (c *CompressedHTTPResponseWriter) decide(statusCode int) {
	if c.decided {
		return
	}
	c.decided = true

	contentType := c.w.Header().Get("Content-Type")
	if statusCode >= 300 || statusCode == http.StatusNoContent || strings.HasPrefix(contentType, eventStreamContentType) {
		return
	}

	c.compressing = true
	c.zw = gzipWriterPool.Get().(*gzip.Writer)
	c.zw.Reset(c.w)
	c.w.Header().Set("Content-Encoding", "gzip")
	c.w.Header().Del("Content-Length")
}

// Close flushes the gzip stream, if one was started, and recycles the writer.
func (c *CompressedHTTPResponseWriter) Close() error {
	if !c.compressing {
		return nil
	}

	err := c.zw.Close()
	if err != nil {
		return err
	}
	gzipWriterPool.Put(c.zw)
	c.compressing = false
	return nil
}

// WriteHeader sets the HTTP status code for the response.
func (c *CompressedHTTPResponseWriter) WriteHeader(statusCode int) {
	c.decide(statusCode)
	c.w.WriteHeader(statusCode)
}

// Write writes the body, compressed when compression was chosen.
func (c *CompressedHTTPResponseWriter) Write(p []byte) (int, error) {
	if !c.decided {
		c.WriteHeader(http.StatusOK)
	}
	if !c.compressing {
		return c.w.Write(p)
	}
	return c.zw.Write(p)
}

// Flush pushes buffered data to the client.
func (c *CompressedHTTPResponseWriter) Flush() {
	if c.compressing {
		_ = c.zw.Flush()
	}
	if flusher, ok := c.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Header returns the HTTP headers associated with the response.
func (c *CompressedHTTPResponseWriter) Header() http.Header {
	return c.w.Header()
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// GzipResponse is the middleware that determines whether a response should be compressed based
// on the request's "Accept-Encoding" header. Requests that ask for an event
// stream are never compressed.
func GzipResponse(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		finalResponse := response

		clientAcceptsGzip := strings.Contains(request.Header.Get("Accept-Encoding"), "gzip")
		wantsStream := strings.Contains(request.Header.Get("Accept"), eventStreamContentType)
		if clientAcceptsGzip && !wantsStream {
			responseWithCompression := NewCompressedHTTPResponseWriter(response)
			finalResponse = responseWithCompression
			defer responseWithCompression.Close()
		}

		h.ServeHTTP(finalResponse, request)
	}

	return http.HandlerFunc(middleware)
}

// UngzipRequest is a middleware function that decompresses gzip-encoded
// HTTP request bodies if the request's Content-Encoding is "gzip".
func UngzipRequest(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		contentEncoding := request.Header.Get("Content-Encoding")
		clientSendsGzippedData := strings.Contains(contentEncoding, "gzip")
		if clientSendsGzippedData {
			requestBodyWithCompression, err := NewCompressedReader(request.Body)
			if err != nil {
				response.WriteHeader(http.StatusBadRequest)
				return
			}
			request.Body = requestBodyWithCompression
			defer requestBodyWithCompression.Close()
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
