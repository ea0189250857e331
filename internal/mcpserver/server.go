// Package mcpserver exposes the engine facade as an MCP tool/resource
// server over streamable HTTP, grounded on the teacher's
// internal/mcp/tools.go (mcp.AddTool with a typed argument struct per tool,
// server-side schema generation via github.com/google/jsonschema-go) rather
// than the teacher's older hand-rolled JSON-RPC-over-stdio server.
package mcpserver

import (
	"net"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adamavenir/agentmail/internal/config"
	"github.com/adamavenir/agentmail/internal/engine"
)

const serverName = "agentmail"

// deps bundles everything a tool or resource handler needs. It is held by
// value inside closures registered with the SDK server, mirroring the
// teacher's ToolContext.
type deps struct {
	facade *engine.Facade
	cfg    config.Config
}

// New builds the MCP server and registers every tool and resource from the
// specification's external interface.
func New(facade *engine.Facade, cfg config.Config, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	d := &deps{facade: facade, cfg: cfg}
	registerTools(server, d)
	registerResources(server, d)
	return server
}

// NewHandler wraps the MCP server in the streamable HTTP transport and the
// bearer/loopback auth the specification requires at the transport edge,
// returning the handler to mount at "/mcp/".
func NewHandler(facade *engine.Facade, cfg config.Config, version string) http.Handler {
	server := New(facade, cfg, version)
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	return withAuth(cfg, streamable)
}

// withAuth enforces HTTP_BEARER_TOKEN, except for loopback callers when
// HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED is set, per the specification's
// transport-level auth rule.
func withAuth(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.HTTPAllowLocalhostUnauthenticated && isLoopback(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		if cfg.HTTPBearerToken == "" {
			http.Error(w, "server has no bearer token configured", http.StatusInternalServerError)
			return
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+cfg.HTTPBearerToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
