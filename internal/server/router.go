package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sadewadee/phpworld/internal/config"
	"github.com/sadewadee/phpworld/internal/fcgi"
)

// Router dispatches incoming HTTP requests: health checks and static
// files are served locally, everything else is relayed to the
// upstream php-fpm pool over FastCGI.
type Router struct {
	cfg           *config.ProxyConfig
	logger        *slog.Logger
	static        http.Handler
	fcgiHandler   http.Handler
	healthHandler *HealthHandler
}

// NewRouter creates a new request router forwarding to the FastCGI
// upstream named in cfg.Upstream.
func NewRouter(cfg *config.ProxyConfig, logger *slog.Logger) *Router {
	r := &Router{cfg: cfg, logger: logger}

	if cfg.Static.Root != "" {
		r.static = NewStaticHandler(cfg.Static.Root, cfg.Static.CacheControl)
	}

	r.fcgiHandler = r.newFastCGIHandler()
	r.healthHandler = NewHealthHandler(cfg)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz":
		r.healthHandler.ServeHTTP(w, req)
		return
	}

	if r.static != nil && r.isStaticFile(req.URL.Path) {
		if r.cfg.Static.CacheControl != "" {
			w.Header().Set("Cache-Control", r.cfg.Static.CacheControl)
		}
		r.static.ServeHTTP(w, req)
		return
	}

	r.fcgiHandler.ServeHTTP(w, req)
}

func (r *Router) isStaticFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".eot", ".map", ".webp", ".avif",
		".mp4", ".webm", ".pdf", ".txt", ".xml", ".json":
		return true
	}
	return false
}

// newFastCGIHandler builds the handler that dials the upstream pool
// for every request.
func (r *Router) newFastCGIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			r.logger.Error("reading request body", "error", err)
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		req.Body.Close()

		ctx, cancel := context.WithTimeout(req.Context(), time.Duration(r.cfg.Upstream.DialTimeout))
		defer cancel()

		client, err := fcgi.Dial(ctx, r.cfg.Upstream.Network, r.cfg.Upstream.Address, nil)
		if err != nil {
			r.logger.Error("dialing fastcgi upstream", "error", err)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
		defer client.Close()

		params := r.buildParams(req, len(body))
		resp, err := client.RequestWithBody(ctx, params, body)
		if err != nil {
			r.logger.Error("fastcgi request", "error", err)
			http.Error(w, "Bad Gateway: "+err.Error(), http.StatusBadGateway)
			return
		}
		if len(resp.Stderr) > 0 {
			r.logger.Warn("upstream stderr", "output", string(resp.Stderr))
		}

		status, headers, respBody, err := parseCGIOutput(resp.Stdout)
		if err != nil {
			r.logger.Error("parsing upstream response", "error", err)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
		for k, vs := range headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		w.Write(respBody)
	})
}

// buildParams renders an http.Request into the CGI/1.1 parameter set
// php-fpm expects (SCRIPT_FILENAME, QUERY_STRING, HTTP_* headers,...).
func (r *Router) buildParams(req *http.Request, contentLength int) map[string]string {
	params := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_SOFTWARE":   "phpworld-fpmproxy",
		"SERVER_PROTOCOL":   req.Proto,
		"REQUEST_METHOD":    req.Method,
		"QUERY_STRING":      req.URL.RawQuery,
		"REQUEST_URI":       req.URL.RequestURI(),
		"SCRIPT_NAME":       req.URL.Path,
		"SCRIPT_FILENAME":   filepath.Join(r.cfg.Upstream.ScriptRoot, req.URL.Path),
		"DOCUMENT_ROOT":     r.cfg.Upstream.ScriptRoot,
		"REMOTE_ADDR":       remoteIP(req.RemoteAddr),
		"SERVER_NAME":       req.Host,
		"SERVER_PORT":       r.extractPort(req),
	}
	if req.URL.Path == "/" || strings.HasSuffix(req.URL.Path, "/") {
		params["SCRIPT_FILENAME"] = filepath.Join(params["SCRIPT_FILENAME"], r.cfg.Upstream.Index)
	}
	if contentLength > 0 {
		params["CONTENT_LENGTH"] = strconv.Itoa(contentLength)
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		params["CONTENT_TYPE"] = ct
	}
	for k, v := range req.Header {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		params[key] = strings.Join(v, ", ")
	}
	return params
}

func (r *Router) extractPort(req *http.Request) string {
	if i := strings.LastIndex(req.Host, ":"); i != -1 {
		return req.Host[i+1:]
	}
	if req.TLS != nil {
		return "443"
	}
	return "80"
}

func remoteIP(remoteAddr string) string {
	if i := strings.LastIndex(remoteAddr, ":"); i != -1 {
		return remoteAddr[:i]
	}
	return remoteAddr
}

// parseCGIOutput splits a CGI script's raw output into the status
// line, headers, and body, per the CGI/1.1 "Status:" header
// convention php-fpm follows (no Status header means 200).
func parseCGIOutput(raw []byte) (int, http.Header, []byte, error) {
	br := bufio.NewReader(strings.NewReader(string(raw)))
	headers := make(http.Header)
	status := http.StatusOK

	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if idx := strings.Index(trimmed, ":"); idx >= 0 {
			name := strings.TrimSpace(trimmed[:idx])
			value := strings.TrimSpace(trimmed[idx+1:])
			if strings.EqualFold(name, "Status") {
				if n, convErr := strconv.Atoi(strings.Fields(value)[0]); convErr == nil {
					status = n
				}
				continue
			}
			headers.Add(name, value)
		}
		if err != nil {
			break
		}
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("server: reading cgi body: %w", err)
	}
	return status, headers, rest, nil
}
