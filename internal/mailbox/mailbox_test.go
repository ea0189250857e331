package mailbox

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/identity"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

// setupProject registers a project and two open-policy agents, returning
// the archive and project id ready for mailbox operations.
func setupProject(t *testing.T, db *sql.DB) (*archive.Archive, string) {
	t.Helper()
	idMgr := &identity.Manager{DB: db, StorageRoot: t.TempDir()}
	project, arc, err := idMgr.EnsureProject("acme/widgets", 1000)
	if err != nil {
		t.Fatalf("ensure project: %v", err)
	}
	for _, name := range []string{"alpha", "beta"} {
		if _, err := idMgr.RegisterAgent(arc, project.ID, name, "", "", "", "", 1000); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		if _, err := idMgr.SetContactPolicy(arc, project.ID, name, types.PolicyOpen); err != nil {
			t.Fatalf("set policy for %s: %v", name, err)
		}
	}
	return arc, project.ID
}

func TestSendDeliversToInboxAndOutbox(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	msg, err := m.Send(arc, SendInput{
		ProjectID: projectID,
		From:      "alpha",
		To:        []string{"beta"},
		Subject:   "hello",
		BodyMD:    "hi there",
	}, 2000)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ThreadID != msg.ID {
		t.Fatalf("want thread_id defaulting to message id, got %q vs %q", msg.ThreadID, msg.ID)
	}

	inbox, err := m.Inbox(projectID, "beta", store.InboxQuery{Limit: 10}, 2001)
	if err != nil {
		t.Fatalf("fetch inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != msg.ID {
		t.Fatalf("want one message in beta's inbox, got %+v", inbox)
	}

	outbox, err := m.Outbox(projectID, "alpha", 10)
	if err != nil {
		t.Fatalf("fetch outbox: %v", err)
	}
	if len(outbox) != 1 || outbox[0].ID != msg.ID {
		t.Fatalf("want one message in alpha's outbox, got %+v", outbox)
	}
}

func TestSendRejectsEmptyTo(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	_, err := m.Send(arc, SendInput{ProjectID: projectID, From: "alpha", BodyMD: "hi"}, 2000)
	if err == nil {
		t.Fatal("want error for empty to")
	}
}

func TestSendRejectsUnregisteredSender(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	_, err := m.Send(arc, SendInput{
		ProjectID: projectID,
		From:      "ghost",
		To:        []string{"beta"},
		BodyMD:    "hi",
	}, 2000)
	if err == nil {
		t.Fatal("want error for unregistered sender")
	}
}

func TestSendRejectsInvalidMarkdownAttachmentBase64(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	_, err := m.Send(arc, SendInput{
		ProjectID:   projectID,
		From:        "alpha",
		To:          []string{"beta"},
		BodyMD:      "hi",
		Attachments: []types.Attachment{{Filename: "x.txt", InlineBase64: "not-base64!!"}},
	}, 2000)
	if err == nil {
		t.Fatal("want error for invalid base64 attachment")
	}
}

func TestSendRejectsAttachmentEscapingProjectRoot(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	_, err := m.Send(arc, SendInput{
		ProjectID:   projectID,
		From:        "alpha",
		To:          []string{"beta"},
		BodyMD:      "hi",
		Attachments: []types.Attachment{{Filename: "x.txt", FileRef: "../../etc/passwd"}},
	}, 2000)
	if err == nil {
		t.Fatal("want error for file_ref escaping project root")
	}
}

func TestSendToAutoPolicyDefersAsContactPending(t *testing.T) {
	db := openTestDB(t)
	idMgr := &identity.Manager{DB: db, StorageRoot: t.TempDir()}
	project, arc, err := idMgr.EnsureProject("acme/widgets", 1000)
	if err != nil {
		t.Fatalf("ensure project: %v", err)
	}
	for _, name := range []string{"alpha", "beta"} {
		if _, err := idMgr.RegisterAgent(arc, project.ID, name, "", "", "", "", 1000); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	// beta keeps the default "auto" policy, no prior shared thread or claim.

	m := &Manager{DB: db}
	_, err = m.Send(arc, SendInput{
		ProjectID: project.ID,
		From:      "alpha",
		To:        []string{"beta"},
		BodyMD:    "hi",
	}, 2000)
	if err == nil {
		t.Fatal("want contact-pending error on first auto-policy message")
	}
}

func TestReplyThreadsAndAddressesOriginalSender(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	original, err := m.Send(arc, SendInput{
		ProjectID: projectID,
		From:      "alpha",
		To:        []string{"beta"},
		Subject:   "hello",
		BodyMD:    "hi there",
	}, 2000)
	if err != nil {
		t.Fatalf("send original: %v", err)
	}

	reply, err := m.Reply(arc, projectID, original.ID, "beta", types.FromAgentKind, "hi back", nil, nil, nil, 2100)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ThreadID != original.ThreadID {
		t.Fatalf("want same thread id, got %q vs %q", reply.ThreadID, original.ThreadID)
	}
	if reply.Subject != "Re: hello" {
		t.Fatalf("want Re: prefixed subject, got %q", reply.Subject)
	}

	inbox, err := m.Inbox(projectID, "alpha", store.InboxQuery{Limit: 10}, 2101)
	if err != nil {
		t.Fatalf("fetch inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != reply.ID {
		t.Fatalf("want the reply delivered to alpha's inbox, got %+v", inbox)
	}
}

func TestAcknowledgeUpdatesRecipientRow(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	msg, err := m.Send(arc, SendInput{
		ProjectID:   projectID,
		From:        "alpha",
		To:          []string{"beta"},
		BodyMD:      "please ack",
		AckRequired: true,
	}, 2000)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	updated, err := m.Acknowledge(msg.ID, "beta", 2100)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !updated {
		t.Fatal("want recipient row found and updated")
	}
}

func TestAcknowledgeUnknownRecipientReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	msg, err := m.Send(arc, SendInput{
		ProjectID: projectID,
		From:      "alpha",
		To:        []string{"beta"},
		BodyMD:    "hi",
	}, 2000)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	updated, err := m.Acknowledge(msg.ID, "carol", 2100)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if updated {
		t.Fatal("want false for a recipient who never received the message")
	}
}

func TestSearchFindsMessageByBodyTerm(t *testing.T) {
	db := openTestDB(t)
	arc, projectID := setupProject(t, db)
	m := &Manager{DB: db}

	if _, err := m.Send(arc, SendInput{
		ProjectID: projectID,
		From:      "alpha",
		To:        []string{"beta"},
		Subject:   "deploy",
		BodyMD:    "the canary rollout looks healthy",
	}, 2000); err != nil {
		t.Fatalf("send: %v", err)
	}

	results, err := m.Search(projectID, "canary", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want one search hit, got %+v", results)
	}
}
