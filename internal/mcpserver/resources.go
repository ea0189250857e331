package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

// registerResources exposes the read-only resource URIs the specification
// names. Each takes no project lock: resource reads are the facade's
// "read-only calls take no lock" path.
func registerResources(server *mcp.Server, d *deps) {
	server.AddResource(&mcp.Resource{
		URI:      "resource://projects",
		Name:     "projects",
		MIMEType: "application/json",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		projects, err := store.ListProjects(d.facade.DB)
		if err != nil {
			return nil, err
		}
		out := make([]projectView, 0, len(projects))
		for _, p := range projects {
			out = append(out, projectOut(p))
		}
		return jsonResource("resource://projects", out)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://project/{key}",
		Name:        "project",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, err := pathParam(req.Params.URI, "resource://project/")
		if err != nil {
			return nil, err
		}
		project, _, err := d.facade.Identity.Resolve(key)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, projectOut(project))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://agents/{key}",
		Name:        "agents",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, err := pathParam(req.Params.URI, "resource://agents/")
		if err != nil {
			return nil, err
		}
		agents, err := d.facade.ListAgents(key, false)
		if err != nil {
			return nil, err
		}
		out := make([]agentView, 0, len(agents))
		for _, a := range agents {
			out = append(out, agentOut(a))
		}
		return jsonResource(req.Params.URI, out)
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://inbox/{key}/{agent}",
		Name:        "inbox",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, agent, err := twoPathParams(req.Params.URI, "resource://inbox/")
		if err != nil {
			return nil, err
		}
		msgs, err := d.facade.FetchInbox(key, agent, store.InboxQuery{Limit: 50})
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, messageList(msgs))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://outbox/{key}/{agent}",
		Name:        "outbox",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, agent, err := twoPathParams(req.Params.URI, "resource://outbox/")
		if err != nil {
			return nil, err
		}
		msgs, err := d.facade.FetchOutbox(key, agent, 50)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, messageList(msgs))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://message/{id}",
		Name:        "message",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		id, err := pathParam(req.Params.URI, "resource://message/")
		if err != nil {
			return nil, err
		}
		msg, err := store.GetMessage(d.facade.DB, id)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, fmt.Errorf("message not found: %s", id)
		}
		return jsonResource(req.Params.URI, messageOut(*msg))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://claims/{key}",
		Name:        "claims",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, query := splitQuery(req.Params.URI)
		key, err := pathParam(key, "resource://claims/")
		if err != nil {
			return nil, err
		}
		project, _, err := d.facade.Identity.Resolve(key)
		if err != nil {
			return nil, err
		}
		activeOnly := query["active_only"] != "false"
		var claims []types.Claim
		if activeOnly {
			claims, err = store.ActiveClaims(d.facade.DB, project.ID, time.Now().Unix())
		} else {
			claims, err = store.ListClaims(d.facade.DB, project.ID)
		}
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, claimListOut(claims))
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "resource://links/{key}",
		Name:        "links",
		MIMEType:    "application/json",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		key, err := pathParam(req.Params.URI, "resource://links/")
		if err != nil {
			return nil, err
		}
		links, err := d.facade.ListLinks(key)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, linkListOut(links))
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

func pathParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("unexpected resource uri: %s", uri)
	}
	value := strings.TrimPrefix(uri, prefix)
	if value == "" {
		return "", fmt.Errorf("missing resource path parameter in %s", uri)
	}
	return value, nil
}

func twoPathParams(uri, prefix string) (string, string, error) {
	rest, err := pathParam(uri, prefix)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected two path segments in %s", uri)
	}
	return parts[0], parts[1], nil
}

func splitQuery(uri string) (string, map[string]string) {
	base, rawQuery, found := strings.Cut(uri, "?")
	if !found {
		return base, map[string]string{}
	}
	query := map[string]string{}
	for _, pair := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		query[k] = v
	}
	return base, query
}
