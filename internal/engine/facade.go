package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/identity"
	"github.com/adamavenir/agentmail/internal/leases"
	"github.com/adamavenir/agentmail/internal/llm"
	"github.com/adamavenir/agentmail/internal/mailbox"
	"github.com/adamavenir/agentmail/internal/naming"
	"github.com/adamavenir/agentmail/internal/policy"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

// DefaultLockTimeout bounds how long a mutating call waits to acquire a
// project's advisory lock before failing with apperr.ErrTimeout.
const DefaultLockTimeout = 10 * time.Second

const (
	minClaimTTLSeconds     = 60
	defaultClaimTTLSeconds = 3600
	activeAgentWindowSeconds = 7 * 24 * 3600
)

// Facade is the single entry point every MCP tool and CLI command calls
// through. It serializes mutating operations per project with a file lock
// (grounded on the teacher's syscall.Flock use in
// internal/db/jsonl_append_common.go), enforcing the archive-write-then-
// index-upsert ordering inside each Identity/Mailbox/Leases/Policy call.
type Facade struct {
	DB          *sql.DB
	StorageRoot string
	Identity    *identity.Manager
	Mailbox     *mailbox.Manager
	Leases      *leases.Manager
	Summarizer  llm.Summarizer
	LockTimeout time.Duration
}

// New wires a Facade over an already-open index connection and storage root.
func New(db *sql.DB, storageRoot string, summarizer llm.Summarizer) *Facade {
	return &Facade{
		DB:          db,
		StorageRoot: storageRoot,
		Identity:    &identity.Manager{DB: db, StorageRoot: storageRoot},
		Mailbox:     &mailbox.Manager{DB: db},
		Leases:      &leases.Manager{DB: db},
		Summarizer:  summarizer,
		LockTimeout: DefaultLockTimeout,
	}
}

func now() int64 { return time.Now().Unix() }

type lockHandle struct{ file *os.File }

func (h *lockHandle) release() {
	_ = syscall.Flock(int(h.file.Fd()), syscall.LOCK_UN)
	_ = h.file.Close()
}

// lock acquires the named advisory lock file under StorageRoot/.locks,
// polling LOCK_EX|LOCK_NB until acquired or ctx's deadline passes.
func (f *Facade) lock(ctx context.Context, slug string) (*lockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.ErrTimeout, "deadline already passed")
	}

	dir := filepath.Join(f.StorageRoot, ".locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "create lock directory", err)
	}
	path := filepath.Join(dir, slug+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open lock file", err)
	}

	deadline := time.Now().Add(f.LockTimeout)
	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &lockHandle{file: file}, nil
		}
		if err != syscall.EWOULDBLOCK {
			_ = file.Close()
			return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "acquire lock", err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, apperr.New(apperr.ErrTimeout, "project lock busy")
		}
		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, apperr.New(apperr.ErrTimeout, "deadline exceeded waiting for project lock")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// EnsureProject creates or returns the project for humanKey.
func (f *Facade) EnsureProject(ctx context.Context, humanKey string) (types.Project, error) {
	slug := naming.Slug(humanKey)
	lock, err := f.lock(ctx, slug)
	if err != nil {
		return types.Project{}, err
	}
	defer lock.release()

	project, _, err := f.Identity.EnsureProject(humanKey, now())
	return project, err
}

// resolve looks up a project (read-only, no lock) for operations that only
// need its id, then re-locks by slug for the mutating half of the call.
func (f *Facade) resolve(projectKey string) (types.Project, error) {
	project, _, err := f.Identity.Resolve(projectKey)
	return project, err
}

// RegisterAgent registers or updates an agent within a project.
func (f *Facade) RegisterAgent(ctx context.Context, projectKey, name, nameHint, program, model, task string) (types.Agent, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Agent{}, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return types.Agent{}, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	return f.Identity.RegisterAgent(arc, project.ID, name, nameHint, program, model, task, now())
}

// Whois returns the named agent.
func (f *Facade) Whois(projectKey, name string) (types.Agent, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Agent{}, err
	}
	return f.Identity.Whois(project.ID, name)
}

// ListAgents returns every agent in a project.
func (f *Facade) ListAgents(projectKey string, activeOnly bool) ([]types.Agent, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	return f.Identity.ListAgents(project.ID, activeOnly, now(), activeAgentWindowSeconds)
}

// SetContactPolicy updates an agent's contact policy.
func (f *Facade) SetContactPolicy(ctx context.Context, projectKey, name string, p types.ContactPolicy) (types.Agent, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Agent{}, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return types.Agent{}, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	return f.Identity.SetContactPolicy(arc, project.ID, name, p)
}

// SendMessage sends a message, enforcing per-recipient contact policy.
func (f *Facade) SendMessage(ctx context.Context, projectKey string, in mailbox.SendInput) (types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Message{}, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return types.Message{}, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	in.ProjectID = project.ID
	return f.Mailbox.Send(arc, in, now())
}

// ReplyMessage sends a reply, inheriting thread/subject/importance per the
// reply_message rules.
func (f *Facade) ReplyMessage(ctx context.Context, projectKey, messageID, sender string, senderKind types.FromKind, bodyMD string, importance *types.Importance, ackRequired *bool, attachments []types.Attachment) (types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Message{}, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return types.Message{}, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	return f.Mailbox.Reply(arc, project.ID, messageID, sender, senderKind, bodyMD, importance, ackRequired, attachments, now())
}

// FetchInbox is read-mostly (it touches last_active_ts) but takes no
// project lock, per the facade's "read-only calls take no lock" rule —
// the last_active_ts update is a single UPDATE and tolerates interleaving.
func (f *Facade) FetchInbox(projectKey, agentName string, q store.InboxQuery) ([]types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	return f.Mailbox.Inbox(project.ID, agentName, q, now())
}

func (f *Facade) FetchOutbox(projectKey, agentName string, limit int) ([]types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	return f.Mailbox.Outbox(project.ID, agentName, limit)
}

func (f *Facade) GetMessage(projectKey, messageID string) (types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.Message{}, err
	}
	return f.Mailbox.Get(project.ID, messageID)
}

func (f *Facade) MarkRead(projectKey, messageID, agentName string) error {
	if _, err := f.resolve(projectKey); err != nil {
		return err
	}
	return f.Mailbox.MarkRead(messageID, agentName, now())
}

// AcknowledgeMessage writes ack_ts; the specification says this "emits no
// archive change," so no lock and no archive write here.
func (f *Facade) AcknowledgeMessage(projectKey, messageID, agentName string) (bool, int64, error) {
	if _, err := f.resolve(projectKey); err != nil {
		return false, 0, err
	}
	ts := now()
	updated, err := f.Mailbox.Acknowledge(messageID, agentName, ts)
	return updated, ts, err
}

func (f *Facade) SearchMessages(projectKey, query string, limit int) ([]types.Message, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	return f.Mailbox.Search(project.ID, query, limit)
}

// SummarizeThread computes deterministic thread stats plus key_points and
// action_items, via the configured Summarizer or its fallback.
func (f *Facade) SummarizeThread(projectKey, threadID string) (llm.ThreadSummary, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return llm.ThreadSummary{}, err
	}
	messages, err := store.ListThread(f.DB, project.ID, threadID)
	if err != nil {
		return llm.ThreadSummary{}, apperr.Wrap(apperr.ErrInvalidArgument, "load thread", err)
	}
	return llm.Summarize(messages, f.Summarizer)
}

// ReserveFilePaths grants or conflicts file-path claims for an agent.
func (f *Facade) ReserveFilePaths(ctx context.Context, projectKey, agentName string, paths []string, ttlSeconds int64, exclusive bool, reason string) (leases.ReserveResult, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return leases.ReserveResult{}, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return leases.ReserveResult{}, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return leases.ReserveResult{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	f.Leases.Arc = arc
	ttl := clampTTL(ttlSeconds)
	return f.Leases.Reserve(project.ID, agentName, paths, exclusive, reason, ttl, now())
}

func (f *Facade) RenewFileReservations(ctx context.Context, projectKey, agentName string, extendSeconds int64, paths []string) ([]types.Claim, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	f.Leases.Arc = arc
	return f.Leases.Renew(project.ID, agentName, paths, clampTTL(extendSeconds), now())
}

func (f *Facade) ReleaseFileReservations(ctx context.Context, projectKey, agentName string, paths []string) ([]types.Claim, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	lock, err := f.lock(ctx, project.Slug)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	arc, err := archive.Open(project.ArchivePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	f.Leases.Arc = arc
	return f.Leases.Release(project.ID, agentName, paths, now())
}

func (f *Facade) RequestContact(projectKey, from, to, reason string) (types.ContactRequest, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return types.ContactRequest{}, err
	}
	return policy.RequestContact(f.DB, project.ID, from, to, reason, now())
}

func (f *Facade) RespondContact(requestID string, accept bool) (types.ContactRequest, error) {
	return policy.RespondContact(f.DB, requestID, accept, now())
}

func (f *Facade) RequestLink(fromProjectKey, fromAgent, toProjectKey, toAgent string) (types.AgentLink, error) {
	fromProject, err := f.resolve(fromProjectKey)
	if err != nil {
		return types.AgentLink{}, err
	}
	toProject, err := f.resolve(toProjectKey)
	if err != nil {
		return types.AgentLink{}, err
	}
	return policy.RequestLink(f.DB, fromProject.ID, fromAgent, toProject.ID, toAgent, now())
}

func (f *Facade) RespondLink(linkID string, accept bool) (types.AgentLink, error) {
	return policy.RespondLink(f.DB, linkID, accept, now())
}

func (f *Facade) ListLinks(projectKey string) ([]types.AgentLink, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return nil, err
	}
	return policy.ListLinks(f.DB, project.ID)
}

// MacroStartSessionResult is the combined output of macro_start_session.
type MacroStartSessionResult struct {
	Project   types.Project
	Agent     types.Agent
	Reserve   leases.ReserveResult
	Inbox     []types.Message
}

// MacroStartSession composes ensure_project + register_agent (+ optional
// reserve_file_paths) + fetch_inbox into one call.
func (f *Facade) MacroStartSession(ctx context.Context, projectKey, program, model, name, taskDescription string, reservePaths []string, ttlSeconds int64) (MacroStartSessionResult, error) {
	project, err := f.EnsureProject(ctx, projectKey)
	if err != nil {
		return MacroStartSessionResult{}, err
	}
	agent, err := f.RegisterAgent(ctx, project.Slug, name, "", program, model, taskDescription)
	if err != nil {
		return MacroStartSessionResult{}, err
	}

	var reserve leases.ReserveResult
	if len(reservePaths) > 0 {
		reserve, err = f.ReserveFilePaths(ctx, project.Slug, agent.Name, reservePaths, ttlSeconds, false, "session start")
		if err != nil {
			return MacroStartSessionResult{}, err
		}
	}

	inbox, err := f.FetchInbox(project.Slug, agent.Name, store.InboxQuery{Limit: 50})
	if err != nil {
		return MacroStartSessionResult{}, err
	}
	return MacroStartSessionResult{Project: project, Agent: agent, Reserve: reserve, Inbox: inbox}, nil
}

// MacroPrepareThreadResult is the combined output of macro_prepare_thread.
type MacroPrepareThreadResult struct {
	Agent   types.Agent
	Summary llm.ThreadSummary
	Inbox   []types.Message
}

// MacroPrepareThread composes register_agent + summarize_thread +
// fetch_inbox into one call.
func (f *Facade) MacroPrepareThread(ctx context.Context, projectKey, agentName, threadID string) (MacroPrepareThreadResult, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return MacroPrepareThreadResult{}, err
	}
	agent, err := f.RegisterAgent(ctx, project.Slug, agentName, "", "", "", "")
	if err != nil {
		return MacroPrepareThreadResult{}, err
	}
	summary, err := f.SummarizeThread(project.Slug, threadID)
	if err != nil {
		return MacroPrepareThreadResult{}, err
	}
	inbox, err := f.FetchInbox(project.Slug, agentName, store.InboxQuery{Limit: 50})
	if err != nil {
		return MacroPrepareThreadResult{}, err
	}
	return MacroPrepareThreadResult{Agent: agent, Summary: summary, Inbox: inbox}, nil
}

// RebuildIndex reconciles the Index from the Archive for one project,
// restoring INV-1 after a crash between archive commit and index upsert,
// or rebuilding the index outright if it was deleted.
func (f *Facade) RebuildIndex(ctx context.Context, archivePath string) error {
	arc, err := archive.Open(archivePath)
	if err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	slug := filepath.Base(archivePath)
	lock, err := f.lock(ctx, slug)
	if err != nil {
		return err
	}
	defer lock.release()

	snap, err := arc.ReadSnapshot()
	if err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "read snapshot", err)
	}

	project := types.Project{
		ID:          deriveProjectID(snap.Meta.Slug),
		HumanKey:    snap.Meta.HumanKey,
		Slug:        snap.Meta.Slug,
		ArchivePath: archivePath,
		CreatedTS:   snap.Meta.CreatedTS,
		Meta:        map[string]string{},
	}
	existing, err := store.GetProjectBySlug(f.DB, project.Slug)
	if err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "look up project", err)
	}
	if existing != nil {
		project.ID = existing.ID
	}
	if err := store.UpsertProject(f.DB, project); err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "reindex project", err)
	}

	for _, profile := range snap.Agents {
		policyVal, err := types.ParseContactPolicy(profile.ContactPolicy)
		if err != nil {
			policyVal = types.PolicyAuto
		}
		agent := types.Agent{
			ProjectID:       project.ID,
			Name:            profile.Name,
			Program:         profile.Program,
			Model:           profile.Model,
			TaskDescription: profile.TaskDescription,
			InceptionTS:     profile.InceptionTS,
			LastActiveTS:    profile.LastActiveTS,
			ContactPolicy:   policyVal,
		}
		if existing, err := store.GetAgent(f.DB, project.ID, profile.Name); err == nil && existing != nil {
			agent.ID = existing.ID
		} else {
			agent.ID = "agt_" + profile.Name
		}
		if _, err := store.UpsertAgent(f.DB, agent); err != nil {
			return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "reindex agent", err)
		}
	}

	for _, sm := range snap.Messages {
		msg := types.Message{
			ID:          sm.Frontmatter.ID,
			ProjectID:   project.ID,
			ThreadID:    sm.Frontmatter.ThreadID,
			Subject:     sm.Frontmatter.Subject,
			BodyMD:      sm.Body,
			FromAgent:   sm.Frontmatter.From,
			FromKind:    sm.Frontmatter.FromKind,
			CreatedTS:   sm.Frontmatter.Created,
			Importance:  sm.Frontmatter.Importance,
			AckRequired: sm.Frontmatter.AckRequired,
			Attachments: sm.Frontmatter.Attachments,
		}
		if existing, _ := store.GetMessage(f.DB, msg.ID); existing != nil {
			continue
		}
		var recipients []store.RecipientInput
		for _, name := range sm.Frontmatter.To {
			recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientTo})
		}
		for _, name := range sm.Frontmatter.CC {
			recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientCC})
		}
		for _, name := range sm.Frontmatter.BCC {
			recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientBCC})
		}
		if err := store.InsertMessage(f.DB, msg, recipients); err != nil {
			return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "reindex message", err)
		}
	}

	if _, err := store.SweepExpiredClaims(f.DB, project.ID, now()); err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "sweep before reindex", err)
	}
	for _, cr := range snap.Claims {
		claim := types.Claim{
			ProjectID: project.ID,
			AgentName: cr.AgentName,
			Path:      cr.Path,
			Exclusive: cr.Exclusive,
			Reason:    cr.Reason,
			CreatedTS: cr.CreatedTS,
			ExpiresTS: cr.ExpiresTS,
		}
		if _, err := store.InsertClaim(f.DB, claim); err != nil {
			return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "reindex claim", err)
		}
	}

	return nil
}

// GCExpiredClaims sweeps expired claims for a single project's index rows.
// It takes no lock: releasing an already-expired claim cannot conflict
// with any concurrent reserve (the sweep at the top of Reserve is
// idempotent). Only index rows change: the claim file stays in the archive
// (release and renew skip expired claims) until a later reservation of the
// same path overwrites it.
func (f *Facade) GCExpiredClaims(projectKey string) (int64, error) {
	project, err := f.resolve(projectKey)
	if err != nil {
		return 0, err
	}
	return store.SweepExpiredClaims(f.DB, project.ID, now())
}

func clampTTL(requested int64) int64 {
	ttl := requested
	if ttl == 0 {
		ttl = defaultClaimTTLSeconds
	}
	if ttl < minClaimTTLSeconds {
		ttl = minClaimTTLSeconds
	}
	return ttl
}

func deriveProjectID(slug string) string {
	return fmt.Sprintf("prj_%s", slug)
}
