// Package middleware holds HTTP middleware shared by the service routes.
package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Compressor gzips JSON responses for clients that accept it. Matrix-heavy
// payloads compress well, so this is on for every API route.
type Compressor struct {
	level int
	pool  sync.Pool

	totalResponses      int64
	compressedResponses int64
}

// NewCompressor creates a compressor at the given gzip level.
func NewCompressor(level int) *Compressor {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	c := &Compressor{level: level}
	c.pool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, c.level)
		return w
	}
	return c
}

// Handler returns the gin middleware.
func (c *Compressor) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		atomic.AddInt64(&c.totalResponses, 1)

		if !strings.Contains(ctx.GetHeader("Accept-Encoding"), "gzip") {
			ctx.Next()
			return
		}
		atomic.AddInt64(&c.compressedResponses, 1)

		gz := c.pool.Get().(*gzip.Writer)
		gz.Reset(ctx.Writer)

		ctx.Header("Content-Encoding", "gzip")
		ctx.Header("Vary", "Accept-Encoding")

		ctx.Writer = &gzipWriter{ResponseWriter: ctx.Writer, gz: gz}
		defer func() {
			gz.Close()
			c.pool.Put(gz)
		}()

		ctx.Next()
	}
}

// Stats reports how many responses went out compressed.
func (c *Compressor) Stats() map[string]interface{} {
	total := atomic.LoadInt64(&c.totalResponses)
	compressed := atomic.LoadInt64(&c.compressedResponses)
	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}
	return map[string]interface{}{
		"total_responses":      total,
		"compressed_responses": compressed,
		"compressed_fraction":  ratio,
		"gzip_level":           c.level,
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	return w.gz.Write(data)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.gz.Write([]byte(s))
}

func (w *gzipWriter) Flush() {
	w.gz.Flush()
	w.ResponseWriter.Flush()
}
