package edge

import (
	"context"
	_ "embed"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/capture"
	"github.com/smartpixl/smartpixl/internal/handoff"
)

// pixelGIF is the static 43-byte transparent 1×1 GIF89a returned for every
// pixel request.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, // GIF89a
	0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, // 1×1, global palette
	0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, // palette: black, white
	0x21, 0xF9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, // GCE: transparent
	0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, // image descriptor
	0x02, 0x02, 0x44, 0x01, 0x00, // 2-bit LZW data
	0x3B, // trailer
}

//go:embed pixel.js
var pixelScript []byte

// Server is the pixel HTTP listener. A GET ending in _SMART.GIF always
// triggers enrichment regardless of query string; _SMART.js serves the
// collection script; everything else is not found.
type Server struct {
	srv      *http.Server
	queue    *handoff.Queue
	enricher *Enricher
	logger   *zap.Logger
}

func NewServer(addr string, queue *handoff.Queue, enricher *Enricher, logger *zap.Logger) *Server {
	s := &Server{
		queue:    queue,
		enricher: enricher,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: http.HandlerFunc(s.handle),
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("pixel server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("pixel server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "_SMART.GIF"):
		s.handlePixel(w, r)
	case strings.HasSuffix(r.URL.Path, "_SMART.js"):
		s.handleScript(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handlePixel is success-or-nothing: the client gets the GIF as long as the
// dispatcher is alive, whatever happens downstream.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	h := capture.FromRequest(r)
	s.enricher.Enrich(h)
	s.queue.Enqueue(h)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelScript)
}
