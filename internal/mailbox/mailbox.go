// Package mailbox implements send/reply/fetch/search/acknowledge over
// messages, enforcing contact policy on every recipient before a send is
// allowed to land. Grounded on the teacher's message-composition helpers in
// internal/command (subject/body assembly) generalized from its chat-room
// delivery model to the mailbox archive+index delivery the specification
// describes.
package mailbox

import (
	"database/sql"
	"encoding/base64"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/ids"
	"github.com/adamavenir/agentmail/internal/policy"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

// MaxInlineAttachmentBytes caps a decoded inline base64 attachment payload.
const MaxInlineAttachmentBytes = 2 * 1024 * 1024

// Manager sends, delivers and searches messages.
type Manager struct {
	DB *sql.DB
}

// SendInput is every field send_message/reply_message may set.
type SendInput struct {
	ProjectID   string
	From        string
	FromKind    types.FromKind
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	BodyMD      string
	Importance  types.Importance
	AckRequired bool
	ThreadID    string
	Attachments []types.Attachment
}

// Send validates the sender and every recipient's contact policy, then
// writes the canonical message, the sender's outbox copy, and one inbox
// copy per recipient to the archive before indexing the message and its
// recipients.
func (m *Manager) Send(arc *archive.Archive, in SendInput, now int64) (types.Message, error) {
	if in.From != policy.HumanOverseerName && in.FromKind != types.FromHumanKind {
		exists, err := store.AgentExists(m.DB, in.ProjectID, in.From)
		if err != nil {
			return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "check sender", err)
		}
		if !exists {
			return types.Message{}, apperr.New(apperr.ErrAgentNotRegistered, in.From)
		}
	}
	if len(in.To) == 0 {
		return types.Message{}, apperr.New(apperr.ErrInvalidArgument, "to must be non-empty")
	}
	if err := validateAttachments(in.Attachments); err != nil {
		return types.Message{}, err
	}
	if err := validateMarkdown(in.BodyMD); err != nil {
		return types.Message{}, err
	}

	allRecipients := dedupeRecipients(in.To, in.CC, in.BCC)
	var blocked []string
	var pendingDetails []string
	for _, name := range allRecipients {
		decision, err := policy.AuthorizeSameProject(m.DB, in.ProjectID, in.From, in.FromKind, name, now)
		if err != nil {
			return types.Message{}, err
		}
		if !decision.Allowed {
			blocked = append(blocked, name)
			if decision.Pending != nil {
				pendingDetails = append(pendingDetails, name)
			}
		}
	}
	if len(blocked) > 0 {
		if len(pendingDetails) == len(blocked) {
			return types.Message{}, apperr.New(apperr.ErrContactPending, strings.Join(blocked, ","))
		}
		return types.Message{}, apperr.New(apperr.ErrPolicyBlocked, strings.Join(blocked, ","))
	}

	id, err := ids.NewMessageID(time.Unix(now, 0))
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "generate message id", err)
	}
	threadID := in.ThreadID
	if threadID == "" {
		threadID = id
	}

	msg := types.Message{
		ID:          id,
		ProjectID:   in.ProjectID,
		ThreadID:    threadID,
		Subject:     in.Subject,
		BodyMD:      in.BodyMD,
		FromAgent:   in.From,
		FromKind:    in.FromKind,
		CreatedTS:   now,
		Importance:  in.Importance,
		AckRequired: in.AckRequired,
		Attachments: in.Attachments,
	}
	if msg.FromKind == "" {
		msg.FromKind = types.FromAgentKind
	}
	if msg.Importance == "" {
		msg.Importance = types.ImportanceNormal
	}
	if msg.FromAgent == policy.HumanOverseerName {
		msg.FromKind = types.FromHumanKind
	}

	fm := archive.MessageFrontmatter{
		ID:          msg.ID,
		ThreadID:    msg.ThreadID,
		Project:     in.ProjectID,
		From:        msg.FromAgent,
		FromKind:    msg.FromKind,
		To:          in.To,
		CC:          in.CC,
		BCC:         in.BCC,
		Created:     msg.CreatedTS,
		Importance:  msg.Importance,
		AckRequired: msg.AckRequired,
		Subject:     msg.Subject,
		Attachments: msg.Attachments,
	}
	data, err := archive.EncodeMessage(fm, msg.BodyMD)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "encode message", err)
	}

	canonicalPath := archive.CanonicalMessagePath(msg.ID, msg.CreatedTS)
	if err := arc.WriteFile(canonicalPath, data); err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write message", err)
	}
	if err := arc.WriteFile(archive.AgentOutboxPath(msg.FromAgent, msg.ID, msg.CreatedTS), data); err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write outbox copy", err)
	}
	for _, name := range allRecipients {
		if err := arc.WriteFile(archive.AgentInboxPath(name, msg.ID, msg.CreatedTS), data); err != nil {
			return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write inbox copy", err)
		}
	}

	if _, err := arc.Commit(archive.MailSubject(msg.FromAgent, in.To, msg.Subject)); err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit message", err)
	}

	recipients := make([]store.RecipientInput, 0, len(allRecipients))
	for _, name := range in.To {
		recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientTo})
	}
	for _, name := range in.CC {
		recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientCC})
	}
	for _, name := range in.BCC {
		recipients = append(recipients, store.RecipientInput{AgentName: name, Kind: types.RecipientBCC})
	}
	if err := store.InsertMessage(m.DB, msg, recipients); err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index message", err)
	}

	if in.FromKind != types.FromHumanKind {
		_ = store.TouchAgent(m.DB, in.ProjectID, in.From, now)
	}
	return msg, nil
}

// Reply composes a reply to an existing message: recipients are the
// original sender plus the original's `to` list minus the replier,
// threading and subject/importance/ack_required follow the original unless
// explicitly overridden.
func (m *Manager) Reply(arc *archive.Archive, projectID, messageID, sender string, senderKind types.FromKind, bodyMD string, importance *types.Importance, ackRequired *bool, attachments []types.Attachment, now int64) (types.Message, error) {
	original, err := store.GetMessage(m.DB, messageID)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "load original message", err)
	}
	if original == nil || original.ProjectID != projectID {
		return types.Message{}, apperr.New(apperr.ErrInvalidArgument, "message not found: "+messageID)
	}

	origRecipients, err := store.RecipientsOf(m.DB, messageID)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "load original recipients", err)
	}

	toSet := map[string]bool{original.FromAgent: true}
	for _, r := range origRecipients {
		if r.Kind == types.RecipientTo {
			toSet[r.AgentName] = true
		}
	}
	delete(toSet, sender)
	to := make([]string, 0, len(toSet))
	for name := range toSet {
		to = append(to, name)
	}

	threadID := original.ThreadID
	if threadID == "" {
		threadID = original.ID
	}
	subject := original.Subject
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	in := SendInput{
		ProjectID:   projectID,
		From:        sender,
		FromKind:    senderKind,
		To:          to,
		Subject:     subject,
		BodyMD:      bodyMD,
		Importance:  original.Importance,
		AckRequired: original.AckRequired,
		ThreadID:    threadID,
		Attachments: attachments,
	}
	if importance != nil {
		in.Importance = *importance
	}
	if ackRequired != nil {
		in.AckRequired = *ackRequired
	}
	return m.Send(arc, in, now)
}

// Inbox returns fetch_inbox results and touches the caller's last_active_ts.
func (m *Manager) Inbox(projectID, agentName string, q store.InboxQuery, now int64) ([]types.Message, error) {
	msgs, err := store.FetchInbox(m.DB, projectID, agentName, q)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "fetch inbox", err)
	}
	_ = store.TouchAgent(m.DB, projectID, agentName, now)
	return msgs, nil
}

// Outbox returns fetch_outbox results.
func (m *Manager) Outbox(projectID, agentName string, limit int) ([]types.Message, error) {
	msgs, err := store.FetchOutbox(m.DB, projectID, agentName, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "fetch outbox", err)
	}
	return msgs, nil
}

// Get returns a single message by id.
func (m *Manager) Get(projectID, messageID string) (types.Message, error) {
	msg, err := store.GetMessage(m.DB, messageID)
	if err != nil {
		return types.Message{}, apperr.Wrap(apperr.ErrInvalidArgument, "load message", err)
	}
	if msg == nil || msg.ProjectID != projectID {
		return types.Message{}, apperr.New(apperr.ErrInvalidArgument, "message not found: "+messageID)
	}
	return *msg, nil
}

// MarkRead records that agentName has read messageID.
func (m *Manager) MarkRead(messageID, agentName string, now int64) error {
	if err := store.MarkRead(m.DB, messageID, agentName, now); err != nil {
		return apperr.Wrap(apperr.ErrIndexArchiveMismatch, "mark read", err)
	}
	return nil
}

// Acknowledge records that agentName has acknowledged messageID, returning
// whether a recipient row existed to update.
func (m *Manager) Acknowledge(messageID, agentName string, now int64) (bool, error) {
	updated, err := store.Acknowledge(m.DB, messageID, agentName, now)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "acknowledge message", err)
	}
	return updated, nil
}

// Search runs a full-text query scoped to a project.
func (m *Manager) Search(projectID, query string, limit int) ([]types.Message, error) {
	msgs, err := store.Search(m.DB, projectID, query, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "search messages", err)
	}
	return msgs, nil
}

func dedupeRecipients(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func validateAttachments(attachments []types.Attachment) error {
	for _, a := range attachments {
		if a.InlineBase64 != "" {
			raw, err := base64.StdEncoding.DecodeString(a.InlineBase64)
			if err != nil {
				return apperr.Newf(apperr.ErrInvalidArgument, "attachment %q: invalid base64", a.Filename)
			}
			if len(raw) > MaxInlineAttachmentBytes {
				return apperr.Newf(apperr.ErrInvalidArgument, "attachment %q exceeds %d bytes", a.Filename, MaxInlineAttachmentBytes)
			}
		}
		if a.FileRef != "" {
			clean := filepath.Clean(a.FileRef)
			if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
				return apperr.Newf(apperr.ErrInvalidArgument, "attachment %q: file_ref escapes project root", a.Filename)
			}
		}
	}
	return nil
}

func validateMarkdown(bodyMD string) error {
	var buf strings.Builder
	if err := goldmark.Convert([]byte(bodyMD), &buf); err != nil {
		return apperr.Wrap(apperr.ErrInvalidArgument, "body_md is not valid markdown", err)
	}
	return nil
}

