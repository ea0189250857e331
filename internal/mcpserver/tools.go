package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/mailbox"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

func registerTools(server *mcp.Server, d *deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ensure_project",
		Description: "Create or return the project identified by human_key.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args ensureProjectArgs) (*mcp.CallToolResult, any, error) {
		project, err := d.facade.EnsureProject(ctx, args.HumanKey)
		return result(projectOut(project), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register_agent",
		Description: "Register a new agent in a project, or update an existing one. Idempotent on (project, name).",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args registerAgentArgs) (*mcp.CallToolResult, any, error) {
		agent, err := d.facade.RegisterAgent(ctx, args.ProjectKey, args.Name, args.NameHint, args.Program, args.Model, args.TaskDescription)
		return result(agentOut(agent), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "whois",
		Description: "Look up a registered agent by name.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args whoisArgs) (*mcp.CallToolResult, any, error) {
		agent, err := d.facade.Whois(args.ProjectKey, args.AgentName)
		return result(agentOut(agent), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_agents",
		Description: "List every agent registered in a project, optionally filtering to those active within the last 7 days.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args listAgentsArgs) (*mcp.CallToolResult, any, error) {
		agents, err := d.facade.ListAgents(args.ProjectKey, args.ActiveOnly)
		out := make([]agentView, 0, len(agents))
		for _, a := range agents {
			out = append(out, agentOut(a))
		}
		return result(out, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_contact_policy",
		Description: "Set an agent's contact policy: open, auto, contacts_only, or block_all.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args setContactPolicyArgs) (*mcp.CallToolResult, any, error) {
		policyVal, err := types.ParseContactPolicy(args.Policy)
		if err != nil {
			return result(nil, apperr.Wrap(apperr.ErrInvalidArgument, "parse contact policy", err))
		}
		agent, err := d.facade.SetContactPolicy(ctx, args.ProjectKey, args.AgentName, policyVal)
		return result(agentOut(agent), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a message to one or more agents in a project, enforcing each recipient's contact policy.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args sendMessageArgs) (*mcp.CallToolResult, any, error) {
		msg, err := d.facade.SendMessage(ctx, args.ProjectKey, args.toSendInput())
		return result(messageOut(msg), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reply_message",
		Description: "Reply to an existing message, inheriting its thread, subject, importance and ack_required unless overridden.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args replyMessageArgs) (*mcp.CallToolResult, any, error) {
		var importance *types.Importance
		if args.Importance != "" {
			v, err := types.ParseImportance(args.Importance)
			if err != nil {
				return result(nil, apperr.Wrap(apperr.ErrInvalidArgument, "parse importance", err))
			}
			importance = &v
		}
		msg, err := d.facade.ReplyMessage(ctx, args.ProjectKey, args.MessageID, args.SenderName, types.FromAgentKind, args.BodyMD, importance, args.AckRequired, args.Attachments)
		return result(messageOut(msg), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_inbox",
		Description: "Fetch an agent's inbox, newest first. Updates the caller's last_active_ts.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args fetchInboxArgs) (*mcp.CallToolResult, any, error) {
		msgs, err := d.facade.FetchInbox(args.ProjectKey, args.AgentName, args.toQuery())
		return result(messageListBodies(msgs, args.IncludeBodies), err)
	})

	// check_my_messages is the sample source's alias for fetch_inbox.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_my_messages",
		Description: "Alias of fetch_inbox.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args fetchInboxArgs) (*mcp.CallToolResult, any, error) {
		msgs, err := d.facade.FetchInbox(args.ProjectKey, args.AgentName, args.toQuery())
		return result(messageListBodies(msgs, args.IncludeBodies), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_outbox",
		Description: "Fetch messages an agent has sent, newest first.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args fetchOutboxArgs) (*mcp.CallToolResult, any, error) {
		msgs, err := d.facade.FetchOutbox(args.ProjectKey, args.AgentName, args.Limit)
		return result(messageList(msgs), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_message",
		Description: "Fetch a single message by id, with its full body.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args getMessageArgs) (*mcp.CallToolResult, any, error) {
		msg, err := d.facade.GetMessage(args.ProjectKey, args.MessageID)
		return result(messageOut(msg), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "acknowledge_message",
		Description: "Record that an agent has acknowledged a message. Writes ack_ts only; no archive change.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args acknowledgeMessageArgs) (*mcp.CallToolResult, any, error) {
		updated, at, err := d.facade.AcknowledgeMessage(args.ProjectKey, args.MessageID, args.AgentName)
		return result(map[string]any{"acknowledged_at": at, "updated": updated}, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_read",
		Description: "Record that an agent has read a message. Writes read_ts only; no archive change.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args markReadArgs) (*mcp.CallToolResult, any, error) {
		err := d.facade.MarkRead(args.ProjectKey, args.MessageID, args.AgentName)
		return result(map[string]any{"marked_read": err == nil}, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_messages",
		Description: "Full-text search over a project's messages (phrase, prefix*, boolean AND/OR/NOT), newest-matching-first.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args searchMessagesArgs) (*mcp.CallToolResult, any, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 50
		}
		msgs, err := d.facade.SearchMessages(args.ProjectKey, args.Query, limit)
		return result(messageList(msgs), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_thread",
		Description: "Summarize a thread: deterministic participant/count/timestamp stats plus key_points and action_items (LLM-backed if enabled, heading-extracted otherwise).",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args summarizeThreadArgs) (*mcp.CallToolResult, any, error) {
		summary, err := d.facade.SummarizeThread(args.ProjectKey, args.ThreadID)
		return result(summaryOut(summary), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reserve_file_paths",
		Description: "Reserve one or more file-path claims for an agent, returning the granted paths and any conflicts with other agents' active claims.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args reserveFilePathsArgs) (*mcp.CallToolResult, any, error) {
		res, err := d.facade.ReserveFilePaths(ctx, args.ProjectKey, args.AgentName, args.Paths, args.TTLSeconds, args.Exclusive, args.Reason)
		return result(reserveOut(res), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "renew_file_reservations",
		Description: "Extend the expiry of an agent's active file-path claims. Never shortens.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args renewArgs) (*mcp.CallToolResult, any, error) {
		claims, err := d.facade.RenewFileReservations(ctx, args.ProjectKey, args.AgentName, args.ExtendSeconds, args.Paths)
		return result(claimListOut(claims), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "release_file_reservations",
		Description: "Release an agent's active file-path claims.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args releaseArgs) (*mcp.CallToolResult, any, error) {
		released, err := d.facade.ReleaseFileReservations(ctx, args.ProjectKey, args.AgentName, args.Paths)
		return result(map[string]any{"released_count": len(released), "released": claimListOut(released)}, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "request_contact",
		Description: "Create a pending contact request from one agent to another within a project.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args requestContactArgs) (*mcp.CallToolResult, any, error) {
		req, err := d.facade.RequestContact(args.ProjectKey, args.From, args.To, args.Reason)
		return result(contactOut(req), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "respond_contact",
		Description: "Accept or decline a pending contact request.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args respondContactArgs) (*mcp.CallToolResult, any, error) {
		req, err := d.facade.RespondContact(args.RequestID, args.Accept)
		return result(contactOut(req), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "request_link",
		Description: "Request a cross-project AgentLink from one project's agent to another project's agent. Both directions must be accepted before cross-project messages are authorized.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args requestLinkArgs) (*mcp.CallToolResult, any, error) {
		link, err := d.facade.RequestLink(args.FromProjectKey, args.FromAgent, args.ToProjectKey, args.ToAgent)
		return result(linkOut(link), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "respond_link",
		Description: "Accept or block a pending AgentLink.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args respondLinkArgs) (*mcp.CallToolResult, any, error) {
		link, err := d.facade.RespondLink(args.LinkID, args.Accept)
		return result(linkOut(link), err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "macro_start_session",
		Description: "Compose ensure_project + register_agent (+ optional reserve_file_paths) + fetch_inbox into one call.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args macroStartSessionArgs) (*mcp.CallToolResult, any, error) {
		out, err := d.facade.MacroStartSession(ctx, args.ProjectKey, args.Program, args.Model, args.Name, args.TaskDescription, args.ReservePaths, args.TTLSeconds)
		if err != nil {
			return result(nil, err)
		}
		return result(map[string]any{
			"project": projectOut(out.Project),
			"agent":   agentOut(out.Agent),
			"reserve": reserveOut(out.Reserve),
			"inbox":   messageList(out.Inbox),
		}, nil)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "macro_prepare_thread",
		Description: "Compose register_agent + summarize_thread + fetch_inbox into one call.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args macroPrepareThreadArgs) (*mcp.CallToolResult, any, error) {
		out, err := d.facade.MacroPrepareThread(ctx, args.ProjectKey, args.AgentName, args.ThreadID)
		if err != nil {
			return result(nil, err)
		}
		return result(map[string]any{
			"agent":   agentOut(out.Agent),
			"summary": summaryOut(out.Summary),
			"inbox":   messageList(out.Inbox),
		}, nil)
	})
}

// result turns a handler's (value, error) into the SDK's
// (*mcp.CallToolResult, any, error) shape: engine errors become a
// structured, IsError text result rather than a transport-level failure, so
// a caller can branch on the error kind from the tool's own response.
func result(v any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		if eerr, ok := err.(*apperr.Error); ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", eerr.Kind, eerr.Error())}},
				IsError: true,
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			IsError: true,
		}, nil, nil
	}
	return nil, v, nil
}

type ensureProjectArgs struct {
	HumanKey string `json:"human_key" jsonschema:"The caller's stable identifier for a project (a path, repo URL, or any stable string)."`
}

type registerAgentArgs struct {
	ProjectKey      string `json:"project_key"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	Name            string `json:"name,omitempty" jsonschema:"Leave empty to generate a unique name."`
	NameHint        string `json:"name_hint,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
}

type whoisArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
}

type listAgentsArgs struct {
	ProjectKey string `json:"project_key"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

type setContactPolicyArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	Policy     string `json:"policy" jsonschema:"One of open, auto, contacts_only, block_all."`
}

type sendMessageArgs struct {
	ProjectKey  string             `json:"project_key"`
	SenderName  string             `json:"sender_name"`
	To          []string           `json:"to"`
	CC          []string           `json:"cc,omitempty"`
	BCC         []string           `json:"bcc,omitempty"`
	Subject     string             `json:"subject"`
	BodyMD      string             `json:"body_md"`
	Importance  string             `json:"importance,omitempty"`
	AckRequired bool               `json:"ack_required,omitempty"`
	ThreadID    string             `json:"thread_id,omitempty"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (a sendMessageArgs) toSendInput() mailbox.SendInput {
	importance, _ := types.ParseImportance(a.Importance)
	return mailbox.SendInput{
		From:        a.SenderName,
		FromKind:    types.FromAgentKind,
		To:          a.To,
		CC:          a.CC,
		BCC:         a.BCC,
		Subject:     a.Subject,
		BodyMD:      a.BodyMD,
		Importance:  importance,
		AckRequired: a.AckRequired,
		ThreadID:    a.ThreadID,
		Attachments: a.Attachments,
	}
}

type replyMessageArgs struct {
	ProjectKey  string             `json:"project_key"`
	MessageID   string             `json:"message_id"`
	SenderName  string             `json:"sender_name"`
	BodyMD      string             `json:"body_md"`
	Importance  string             `json:"importance,omitempty"`
	AckRequired *bool              `json:"ack_required,omitempty"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type fetchInboxArgs struct {
	ProjectKey     string `json:"project_key"`
	AgentName      string `json:"agent_name"`
	SinceTS        int64  `json:"since_ts,omitempty"`
	UrgentOnly     bool   `json:"urgent_only,omitempty"`
	IncludeBodies  bool   `json:"include_bodies,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

func (a fetchInboxArgs) toQuery() store.InboxQuery {
	limit := a.Limit
	if limit <= 0 {
		limit = 50
	}
	return store.InboxQuery{SinceTS: a.SinceTS, UrgentOnly: a.UrgentOnly, Limit: limit}
}

type fetchOutboxArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	Limit      int    `json:"limit,omitempty"`
}

type getMessageArgs struct {
	ProjectKey string `json:"project_key"`
	MessageID  string `json:"message_id"`
}

type markReadArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	MessageID  string `json:"message_id"`
}

type acknowledgeMessageArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	MessageID  string `json:"message_id"`
}

type searchMessagesArgs struct {
	ProjectKey string `json:"project_key"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
}

type summarizeThreadArgs struct {
	ProjectKey string `json:"project_key"`
	ThreadID   string `json:"thread_id"`
}

type reserveFilePathsArgs struct {
	ProjectKey string   `json:"project_key"`
	AgentName  string   `json:"agent_name"`
	Paths      []string `json:"paths"`
	TTLSeconds int64    `json:"ttl_seconds,omitempty"`
	Exclusive  bool     `json:"exclusive,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

type renewArgs struct {
	ProjectKey    string   `json:"project_key"`
	AgentName     string   `json:"agent_name"`
	ExtendSeconds int64    `json:"extend_seconds"`
	Paths         []string `json:"paths,omitempty"`
}

type releaseArgs struct {
	ProjectKey string   `json:"project_key"`
	AgentName  string   `json:"agent_name"`
	Paths      []string `json:"paths,omitempty"`
}

type requestContactArgs struct {
	ProjectKey string `json:"project_key"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
}

type respondContactArgs struct {
	RequestID string `json:"request_id"`
	Accept    bool   `json:"accept"`
}

type requestLinkArgs struct {
	FromProjectKey string `json:"from_project_key"`
	FromAgent      string `json:"from_agent"`
	ToProjectKey   string `json:"to_project_key"`
	ToAgent        string `json:"to_agent"`
}

type respondLinkArgs struct {
	LinkID string `json:"link_id"`
	Accept bool   `json:"accept"`
}

type macroStartSessionArgs struct {
	ProjectKey      string   `json:"project_key"`
	Program         string   `json:"program,omitempty"`
	Model           string   `json:"model,omitempty"`
	Name            string   `json:"name,omitempty"`
	TaskDescription string   `json:"task_description,omitempty"`
	ReservePaths    []string `json:"reserve_paths,omitempty"`
	TTLSeconds      int64    `json:"ttl_seconds,omitempty"`
}

type macroPrepareThreadArgs struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	ThreadID   string `json:"thread_id"`
}
