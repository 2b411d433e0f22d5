package api

import (
	"io"
	"net/http"

	apimw "corrade/internal/api/middleware"
	"corrade/internal/service"
	"corrade/internal/wire"
)

const maxBodyBytes = 1 << 20

// CommandHandler accepts wire-encoded commands over POST. The status is
// always 200: failures travel in the body, and dropped requests get an
// empty one.
type CommandHandler struct {
	App *service.App
}

func (h *CommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		return
	}
	host := apimw.RemoteHost(r)
	if host == "" {
		return
	}
	log := h.App.Logger.With("remote", host)

	body, err := readBody(r)
	if err != nil {
		log.Warn("read command body", "error", err)
		return
	}

	result := h.App.Dispatch(r.Context(), service.Request{
		Message:    string(body),
		Sender:     host,
		Identifier: host,
		Origin:     service.OriginHTTP,
	})
	if result == nil {
		return
	}

	payload := []byte(h.App.EncodeResult(result))
	out, encoding, err := wire.Compress(payload, h.App.Config.Get().Server.Compression)
	if err != nil {
		log.Warn("compress command reply", "error", err)
		out, encoding = payload, ""
	}
	w.Header().Set("Content-Type", h.App.ContentType())
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	_, _ = w.Write(out)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := wire.Decompress(http.MaxBytesReader(nil, r.Body, maxBodyBytes), r.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, maxBodyBytes))
}
