package mcpserver

import (
	"github.com/adamavenir/agentmail/internal/leases"
	"github.com/adamavenir/agentmail/internal/llm"
	"github.com/adamavenir/agentmail/internal/types"
)

// These view types shape engine/domain results into the JSON the
// specification's external interface describes, keeping field names
// (snake_case, matching the wire frontmatter) stable regardless of the Go
// struct field names used internally.

type projectView struct {
	ProjectKey string `json:"project_key"`
	HumanKey   string `json:"human_key"`
	Slug       string `json:"slug"`
	CreatedTS  int64  `json:"created_ts"`
}

func projectOut(p types.Project) projectView {
	return projectView{ProjectKey: p.Slug, HumanKey: p.HumanKey, Slug: p.Slug, CreatedTS: p.CreatedTS}
}

type agentView struct {
	Name            string `json:"name"`
	Program         string `json:"program"`
	Model           string `json:"model"`
	TaskDescription string `json:"task_description"`
	InceptionTS     int64  `json:"inception_ts"`
	LastActiveTS    int64  `json:"last_active_ts"`
	ContactPolicy   string `json:"contact_policy"`
}

func agentOut(a types.Agent) agentView {
	return agentView{
		Name:            a.Name,
		Program:         a.Program,
		Model:           a.Model,
		TaskDescription: a.TaskDescription,
		InceptionTS:     a.InceptionTS,
		LastActiveTS:    a.LastActiveTS,
		ContactPolicy:   string(a.ContactPolicy),
	}
}

type messageView struct {
	ID          string              `json:"id"`
	ThreadID    string              `json:"thread_id"`
	Subject     string              `json:"subject"`
	BodyMD      string              `json:"body_md,omitempty"`
	From        string              `json:"from"`
	FromKind    string              `json:"from_kind"`
	CreatedTS   int64               `json:"created"`
	Importance  string              `json:"importance"`
	AckRequired bool                `json:"ack_required"`
	Attachments []types.Attachment  `json:"attachments,omitempty"`
}

func messageOut(m types.Message) messageView {
	return messageViewWithBody(m, true)
}

func messageViewWithBody(m types.Message, includeBody bool) messageView {
	v := messageView{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		Subject:     m.Subject,
		From:        m.FromAgent,
		FromKind:    string(m.FromKind),
		CreatedTS:   m.CreatedTS,
		Importance:  string(m.Importance),
		AckRequired: m.AckRequired,
		Attachments: m.Attachments,
	}
	if includeBody {
		v.BodyMD = m.BodyMD
	}
	return v
}

func messageList(msgs []types.Message) []messageView {
	return messageListBodies(msgs, true)
}

func messageListBodies(msgs []types.Message, includeBodies bool) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageViewWithBody(m, includeBodies))
	}
	return out
}

type summaryView struct {
	Participants  []string `json:"participants"`
	TotalMessages int      `json:"total_messages"`
	FirstTS       int64    `json:"first_ts"`
	LastTS        int64    `json:"last_ts"`
	KeyPoints     []string `json:"key_points"`
	ActionItems   []string `json:"action_items"`
	Degraded      bool     `json:"degraded"`
}

func summaryOut(s llm.ThreadSummary) summaryView {
	return summaryView{
		Participants:  s.Participants,
		TotalMessages: s.TotalMessages,
		FirstTS:       s.FirstTS,
		LastTS:        s.LastTS,
		KeyPoints:     s.KeyPoints,
		ActionItems:   s.ActionItems,
		Degraded:      s.Degraded,
	}
}

type claimView struct {
	AgentName  string `json:"agent_name"`
	Path       string `json:"path"`
	Exclusive  bool   `json:"exclusive"`
	Reason     string `json:"reason,omitempty"`
	CreatedTS  int64  `json:"created_ts"`
	ExpiresTS  int64  `json:"expires_ts"`
	ReleasedTS *int64 `json:"released_ts,omitempty"`
}

func claimOut(c types.Claim) claimView {
	return claimView{
		AgentName:  c.AgentName,
		Path:       c.Path,
		Exclusive:  c.Exclusive,
		Reason:     c.Reason,
		CreatedTS:  c.CreatedTS,
		ExpiresTS:  c.ExpiresTS,
		ReleasedTS: c.ReleasedTS,
	}
}

func claimListOut(claims []types.Claim) []claimView {
	out := make([]claimView, 0, len(claims))
	for _, c := range claims {
		out = append(out, claimOut(c))
	}
	return out
}

type conflictView struct {
	RequestedPath string      `json:"path"`
	Holders       []claimView `json:"holders"`
}

type reserveView struct {
	Granted   []claimView    `json:"granted"`
	Conflicts []conflictView `json:"conflicts"`
}

func reserveOut(r leases.ReserveResult) reserveView {
	out := reserveView{Granted: claimListOut(r.Granted)}
	for _, c := range r.Conflicts {
		out.Conflicts = append(out.Conflicts, conflictView{RequestedPath: c.RequestedPath, Holders: claimListOut(c.Holders)})
	}
	return out
}

type contactView struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Reason    string  `json:"reason,omitempty"`
	State     string  `json:"state"`
	CreatedTS int64   `json:"created_ts"`
	DecidedTS *int64  `json:"decided_ts,omitempty"`
}

func contactOut(c types.ContactRequest) contactView {
	return contactView{
		ID:        c.ID,
		From:      c.From,
		To:        c.To,
		Reason:    c.Reason,
		State:     string(c.State),
		CreatedTS: c.CreatedTS,
		DecidedTS: c.DecidedTS,
	}
}

type linkView struct {
	ID            string `json:"id"`
	FromProjectID string `json:"from_project"`
	FromAgent     string `json:"from_agent"`
	ToProjectID   string `json:"to_project"`
	ToAgent       string `json:"to_agent"`
	State         string `json:"state"`
	CreatedTS     int64  `json:"created_ts"`
	DecidedTS     *int64 `json:"decided_ts,omitempty"`
}

func linkOut(l types.AgentLink) linkView {
	return linkView{
		ID:            l.ID,
		FromProjectID: l.FromProjectID,
		FromAgent:     l.FromAgent,
		ToProjectID:   l.ToProjectID,
		ToAgent:       l.ToAgent,
		State:         string(l.State),
		CreatedTS:     l.CreatedTS,
		DecidedTS:     l.DecidedTS,
	}
}

func linkListOut(links []types.AgentLink) []linkView {
	out := make([]linkView, 0, len(links))
	for _, l := range links {
		out = append(out, linkOut(l))
	}
	return out
}
