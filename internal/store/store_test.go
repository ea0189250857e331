package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/adamavenir/agentmail/internal/types"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("want re-running InitSchema to be a no-op, got: %v", err)
	}
}

func TestUpsertProjectThenGetBySlugAndHumanKey(t *testing.T) {
	db := openTestDB(t)
	p := types.Project{
		ID:          "proj-1",
		HumanKey:    "/home/dev/acme",
		Slug:        "acme-abc123",
		ArchivePath: "/var/lib/agentmail/acme-abc123",
		CreatedTS:   1000,
		Meta:        map[string]string{"env": "prod"},
	}
	if err := UpsertProject(db, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	bySlug, err := GetProjectBySlug(db, p.Slug)
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if bySlug == nil || bySlug.HumanKey != p.HumanKey {
		t.Fatalf("want project %+v, got %+v", p, bySlug)
	}
	if bySlug.Meta["env"] != "prod" {
		t.Fatalf("want meta round-tripped, got %+v", bySlug.Meta)
	}

	byKey, err := GetProjectByHumanKey(db, p.HumanKey)
	if err != nil {
		t.Fatalf("get by human key: %v", err)
	}
	if byKey == nil || byKey.Slug != p.Slug {
		t.Fatalf("want project %+v, got %+v", p, byKey)
	}
}

func TestUpsertProjectIsIdempotentOnConflict(t *testing.T) {
	db := openTestDB(t)
	p := types.Project{ID: "proj-1", HumanKey: "/home/dev/acme", Slug: "acme-abc123", ArchivePath: "/data/acme", CreatedTS: 1000}
	if err := UpsertProject(db, p); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	p.ArchivePath = "/data/acme-moved"
	if err := UpsertProject(db, p); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := GetProjectBySlug(db, p.Slug)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ArchivePath != "/data/acme-moved" {
		t.Fatalf("want updated archive path, got %q", got.ArchivePath)
	}

	all, err := ListProjects(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("want exactly one project row after the conflicting upsert, got %d", len(all))
	}
}

func TestGetProjectBySlugMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	got, err := GetProjectBySlug(db, "does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for a missing project, got %+v", got)
	}
}

func seedProject(t *testing.T, db *sql.DB) types.Project {
	t.Helper()
	p := types.Project{ID: "proj-1", HumanKey: "/home/dev/acme", Slug: "acme-abc123", ArchivePath: "/data/acme", CreatedTS: 1000}
	if err := UpsertProject(db, p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func TestUpsertAgentThenGetAgent(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	a := types.Agent{
		ID: "agent-1", ProjectID: p.ID, Name: "nimbus", Program: "claude-code",
		InceptionTS: 1000, LastActiveTS: 1000, ContactPolicy: types.PolicyAuto,
	}
	saved, err := UpsertAgent(db, a)
	if err != nil {
		t.Fatalf("upsert agent: %v", err)
	}
	if saved.ContactPolicy != types.PolicyAuto {
		t.Fatalf("want contact policy round-tripped, got %q", saved.ContactPolicy)
	}

	got, err := GetAgent(db, p.ID, "nimbus")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil || got.Program != "claude-code" {
		t.Fatalf("want agent %+v, got %+v", a, got)
	}
}

func TestUpsertAgentIsIdempotentByProjectAndName(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	a := types.Agent{ID: "agent-1", ProjectID: p.ID, Name: "nimbus", Program: "claude-code", InceptionTS: 1000, LastActiveTS: 1000, ContactPolicy: types.PolicyAuto}
	if _, err := UpsertAgent(db, a); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	a.Program = "codex"
	a.LastActiveTS = 2000
	if _, err := UpsertAgent(db, a); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := GetAgent(db, p.ID, "nimbus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Program != "codex" || got.LastActiveTS != 2000 {
		t.Fatalf("want the re-registered fields updated, got %+v", got)
	}
	if got.ContactPolicy != types.PolicyAuto {
		t.Fatalf("want contact_policy left alone by re-registration, got %q", got.ContactPolicy)
	}
}

func TestAgentExistsReflectsRegistration(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	exists, err := AgentExists(db, p.ID, "nimbus")
	if err != nil {
		t.Fatalf("exists before registration: %v", err)
	}
	if exists {
		t.Fatal("want false before registration")
	}

	if _, err := UpsertAgent(db, types.Agent{ID: "agent-1", ProjectID: p.ID, Name: "nimbus", InceptionTS: 1, LastActiveTS: 1, ContactPolicy: types.PolicyAuto}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	exists, err = AgentExists(db, p.ID, "nimbus")
	if err != nil {
		t.Fatalf("exists after registration: %v", err)
	}
	if !exists {
		t.Fatal("want true after registration")
	}
}

func TestListAgentsFiltersByActivityWindow(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	mustUpsert := func(name string, lastActive int64) {
		if _, err := UpsertAgent(db, types.Agent{ID: "agent-" + name, ProjectID: p.ID, Name: name, InceptionTS: 1, LastActiveTS: lastActive, ContactPolicy: types.PolicyAuto}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}
	mustUpsert("fresh", 990)
	mustUpsert("stale", 100)

	all, err := ListAgents(db, p.ID, false, 1000, 50)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want both agents unfiltered, got %d", len(all))
	}

	active, err := ListAgents(db, p.ID, true, 1000, 50)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Name != "fresh" {
		t.Fatalf("want only the recently-active agent, got %+v", active)
	}
}

func TestSetContactPolicyUpdatesRow(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if _, err := UpsertAgent(db, types.Agent{ID: "agent-1", ProjectID: p.ID, Name: "nimbus", InceptionTS: 1, LastActiveTS: 1, ContactPolicy: types.PolicyAuto}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := SetContactPolicy(db, p.ID, "nimbus", types.PolicyBlockAll)
	if err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if got.ContactPolicy != types.PolicyBlockAll {
		t.Fatalf("want updated policy, got %q", got.ContactPolicy)
	}
}

func TestTouchAgentUpdatesLastActive(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if _, err := UpsertAgent(db, types.Agent{ID: "agent-1", ProjectID: p.ID, Name: "nimbus", InceptionTS: 1, LastActiveTS: 1, ContactPolicy: types.PolicyAuto}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := TouchAgent(db, p.ID, "nimbus", 5000); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := GetAgent(db, p.ID, "nimbus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastActiveTS != 5000 {
		t.Fatalf("want last_active_ts updated to 5000, got %d", got.LastActiveTS)
	}
}

func TestInsertMessageThenGetMessageRoundTrips(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	m := types.Message{
		ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", Subject: "status",
		BodyMD: "all green", FromAgent: "nimbus", FromKind: types.FromAgentKind,
		CreatedTS: 1000, Importance: types.ImportanceNormal, AckRequired: true,
	}
	if err := InsertMessage(db, m, []RecipientInput{{AgentName: "ghost", Kind: types.RecipientTo}}); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	got, err := GetMessage(db, "msg-1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got == nil || got.Subject != "status" || !got.AckRequired {
		t.Fatalf("want message round-tripped, got %+v", got)
	}

	recipients, err := RecipientsOf(db, "msg-1")
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0].AgentName != "ghost" {
		t.Fatalf("want one recipient ghost, got %+v", recipients)
	}
}

func TestFetchInboxOrdersNewestFirstAndRespectsSince(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	insert := func(id string, createdTS int64, importance types.Importance) {
		m := types.Message{ID: id, ProjectID: p.ID, ThreadID: id, BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: createdTS, Importance: importance}
		if err := InsertMessage(db, m, []RecipientInput{{AgentName: "ghost", Kind: types.RecipientTo}}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	insert("msg-1", 1000, types.ImportanceNormal)
	insert("msg-2", 2000, types.ImportanceUrgent)
	insert("msg-3", 3000, types.ImportanceLow)

	got, err := FetchInbox(db, p.ID, "ghost", InboxQuery{SinceTS: 0})
	if err != nil {
		t.Fatalf("fetch inbox: %v", err)
	}
	if len(got) != 3 || got[0].ID != "msg-3" || got[2].ID != "msg-1" {
		t.Fatalf("want newest-first ordering, got %+v", got)
	}

	sinceGot, err := FetchInbox(db, p.ID, "ghost", InboxQuery{SinceTS: 1000})
	if err != nil {
		t.Fatalf("fetch inbox since: %v", err)
	}
	if len(sinceGot) != 2 {
		t.Fatalf("want messages created after ts 1000, got %+v", sinceGot)
	}

	urgentGot, err := FetchInbox(db, p.ID, "ghost", InboxQuery{UrgentOnly: true})
	if err != nil {
		t.Fatalf("fetch inbox urgent: %v", err)
	}
	if len(urgentGot) != 1 || urgentGot[0].ID != "msg-2" {
		t.Fatalf("want only the urgent message, got %+v", urgentGot)
	}
}

func TestFetchOutboxReturnsSenderMessages(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if err := InsertMessage(db, types.Message{ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 1000, Importance: types.ImportanceNormal}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := FetchOutbox(db, p.ID, "nimbus", 0)
	if err != nil {
		t.Fatalf("fetch outbox: %v", err)
	}
	if len(got) != 1 || got[0].ID != "msg-1" {
		t.Fatalf("want nimbus's sent message, got %+v", got)
	}
}

func TestListThreadReturnsOldestFirst(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	insert := func(id string, createdTS int64) {
		if err := InsertMessage(db, types.Message{ID: id, ProjectID: p.ID, ThreadID: "thread-1", BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: createdTS, Importance: types.ImportanceNormal}, nil); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	insert("msg-2", 2000)
	insert("msg-1", 1000)

	got, err := ListThread(db, p.ID, "thread-1")
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(got) != 2 || got[0].ID != "msg-1" || got[1].ID != "msg-2" {
		t.Fatalf("want oldest-first ordering, got %+v", got)
	}
}

func TestMarkReadOnlySetsOnce(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if err := InsertMessage(db, types.Message{ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 1000, Importance: types.ImportanceNormal}, []RecipientInput{{AgentName: "ghost", Kind: types.RecipientTo}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := MarkRead(db, "msg-1", "ghost", 1100); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := MarkRead(db, "msg-1", "ghost", 9999); err != nil {
		t.Fatalf("mark read again: %v", err)
	}

	recipients, err := RecipientsOf(db, "msg-1")
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if recipients[0].ReadTS == nil || *recipients[0].ReadTS != 1100 {
		t.Fatalf("want read_ts fixed at the first mark, got %+v", recipients[0].ReadTS)
	}
}

func TestAcknowledgeReportsWhetherARowWasUpdated(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if err := InsertMessage(db, types.Message{ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 1000, Importance: types.ImportanceNormal}, []RecipientInput{{AgentName: "ghost", Kind: types.RecipientTo}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := Acknowledge(db, "msg-1", "ghost", 1200)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !ok {
		t.Fatal("want true acknowledging a real recipient")
	}

	ok, err = Acknowledge(db, "msg-1", "nobody", 1200)
	if err != nil {
		t.Fatalf("ack unknown: %v", err)
	}
	if ok {
		t.Fatal("want false acknowledging a non-recipient")
	}
}

func TestSharedThreadExistsDetectsEitherDirection(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if err := InsertMessage(db, types.Message{ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", BodyMD: "x", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 1000, Importance: types.ImportanceNormal}, []RecipientInput{{AgentName: "ghost", Kind: types.RecipientTo}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	shared, err := SharedThreadExists(db, p.ID, "nimbus", "ghost")
	if err != nil {
		t.Fatalf("shared thread: %v", err)
	}
	if !shared {
		t.Fatal("want a shared thread between sender and recipient")
	}

	shared, err = SharedThreadExists(db, p.ID, "ghost", "stranger")
	if err != nil {
		t.Fatalf("shared thread: %v", err)
	}
	if shared {
		t.Fatal("want no shared thread for an uninvolved pair")
	}
}

func TestClaimLifecycleInsertExtendRelease(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	claim, err := InsertClaim(db, types.Claim{ProjectID: p.ID, AgentName: "nimbus", Path: "src/main.go", Exclusive: true, Reason: "refactor", CreatedTS: 1000, ExpiresTS: 1060})
	if err != nil {
		t.Fatalf("insert claim: %v", err)
	}
	if claim.ID == 0 {
		t.Fatal("want a generated claim id")
	}

	active, err := ActiveClaims(db, p.ID, 1000)
	if err != nil {
		t.Fatalf("active claims: %v", err)
	}
	if len(active) != 1 || active[0].Reason != "refactor" {
		t.Fatalf("want the inserted claim active, got %+v", active)
	}

	if err := ExtendClaim(db, claim.ID, 2000); err != nil {
		t.Fatalf("extend: %v", err)
	}
	byAgent, err := ActiveClaimsByAgent(db, p.ID, "nimbus", 1000)
	if err != nil {
		t.Fatalf("active claims by agent: %v", err)
	}
	if len(byAgent) != 1 || byAgent[0].ExpiresTS != 2000 {
		t.Fatalf("want extended expiry, got %+v", byAgent)
	}

	if err := ReleaseClaim(db, claim.ID, 1500); err != nil {
		t.Fatalf("release: %v", err)
	}
	afterRelease, err := ActiveClaims(db, p.ID, 1000)
	if err != nil {
		t.Fatalf("active claims after release: %v", err)
	}
	if len(afterRelease) != 0 {
		t.Fatalf("want no active claims after release, got %+v", afterRelease)
	}
}

func TestSweepExpiredClaimsReleasesPastClaimsOnly(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	if _, err := InsertClaim(db, types.Claim{ProjectID: p.ID, AgentName: "nimbus", Path: "a.go", Exclusive: true, CreatedTS: 1000, ExpiresTS: 1001}); err != nil {
		t.Fatalf("insert expired claim: %v", err)
	}
	if _, err := InsertClaim(db, types.Claim{ProjectID: p.ID, AgentName: "nimbus", Path: "b.go", Exclusive: true, CreatedTS: 1000, ExpiresTS: 9999}); err != nil {
		t.Fatalf("insert live claim: %v", err)
	}

	swept, err := SweepExpiredClaims(db, p.ID, 5000)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("want exactly one claim swept, got %d", swept)
	}

	active, err := ActiveClaims(db, p.ID, 5000)
	if err != nil {
		t.Fatalf("active claims: %v", err)
	}
	if len(active) != 1 || active[0].Path != "b.go" {
		t.Fatalf("want only the live claim remaining, got %+v", active)
	}
}

func TestUpsertAgentLinkIsIdempotentPerDirection(t *testing.T) {
	db := openTestDB(t)
	l := types.AgentLink{ID: "link-1", FromProjectID: "proj-a", FromAgent: "nimbus", ToProjectID: "proj-b", ToAgent: "ghost", State: types.LinkPending, CreatedTS: 1000}

	first, err := UpsertAgentLink(db, l)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	l.ID = "link-2"
	second, err := UpsertAgentLink(db, l)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("want the existing row returned on a repeat upsert for the same direction, got %q vs %q", first.ID, second.ID)
	}

	byID, err := GetAgentLinkByID(db, first.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID == nil || byID.ToAgent != "ghost" {
		t.Fatalf("want the link fetchable by id, got %+v", byID)
	}
}

func TestSetAgentLinkStateUpdatesDecidedTS(t *testing.T) {
	db := openTestDB(t)
	l, err := UpsertAgentLink(db, types.AgentLink{ID: "link-1", FromProjectID: "proj-a", FromAgent: "nimbus", ToProjectID: "proj-b", ToAgent: "ghost", State: types.LinkPending, CreatedTS: 1000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := SetAgentLinkState(db, l.ID, types.LinkAccepted, 2000); err != nil {
		t.Fatalf("set state: %v", err)
	}

	got, err := GetAgentLinkByID(db, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.LinkAccepted || got.DecidedTS == nil || *got.DecidedTS != 2000 {
		t.Fatalf("want accepted state with decided_ts 2000, got %+v", got)
	}
}

func TestListLinksForProjectFindsEitherDirection(t *testing.T) {
	db := openTestDB(t)
	if _, err := UpsertAgentLink(db, types.AgentLink{ID: "link-1", FromProjectID: "proj-a", FromAgent: "nimbus", ToProjectID: "proj-b", ToAgent: "ghost", State: types.LinkPending, CreatedTS: 1000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := UpsertAgentLink(db, types.AgentLink{ID: "link-2", FromProjectID: "proj-c", FromAgent: "echo", ToProjectID: "proj-a", ToAgent: "nimbus", State: types.LinkPending, CreatedTS: 1000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ListLinksForProject(db, "proj-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want both links touching proj-a regardless of direction, got %+v", got)
	}
}

func TestContactRequestLifecycle(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)

	req := types.ContactRequest{ID: "req-1", ProjectID: p.ID, From: "nimbus", To: "ghost", Reason: "need a review", State: types.ContactPending, CreatedTS: 1000}
	if err := InsertContactRequest(db, req); err != nil {
		t.Fatalf("insert contact request: %v", err)
	}

	got, err := GetContactRequest(db, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Reason != "need a review" {
		t.Fatalf("want the contact request round-tripped, got %+v", got)
	}

	pending, err := FindPendingContact(db, p.ID, "nimbus", "ghost")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if pending == nil || pending.ID != "req-1" {
		t.Fatalf("want the pending request found, got %+v", pending)
	}

	accepted, err := FindAcceptedContact(db, p.ID, "nimbus", "ghost")
	if err != nil {
		t.Fatalf("find accepted before decision: %v", err)
	}
	if accepted {
		t.Fatal("want no accepted contact before the request is decided")
	}

	if err := SetContactRequestState(db, "req-1", types.ContactAccepted, 2000); err != nil {
		t.Fatalf("set state: %v", err)
	}

	accepted, err = FindAcceptedContact(db, p.ID, "nimbus", "ghost")
	if err != nil {
		t.Fatalf("find accepted after decision: %v", err)
	}
	if !accepted {
		t.Fatal("want an accepted contact after the request is accepted")
	}
}

func TestSearchMatchesSubjectAndBody(t *testing.T) {
	db := openTestDB(t)
	p := seedProject(t, db)
	if err := InsertMessage(db, types.Message{ID: "msg-1", ProjectID: p.ID, ThreadID: "msg-1", Subject: "deploy plan", BodyMD: "rolling out canary", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 1000, Importance: types.ImportanceNormal}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertMessage(db, types.Message{ID: "msg-2", ProjectID: p.ID, ThreadID: "msg-2", Subject: "lunch", BodyMD: "tacos today", FromAgent: "nimbus", FromKind: types.FromAgentKind, CreatedTS: 2000, Importance: types.ImportanceNormal}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := Search(db, p.ID, "canary", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "msg-1" {
		t.Fatalf("want only msg-1 to match canary, got %+v", got)
	}

	bySubject, err := Search(db, p.ID, "lunch", 10)
	if err != nil {
		t.Fatalf("search subject: %v", err)
	}
	if len(bySubject) != 1 || bySubject[0].ID != "msg-2" {
		t.Fatalf("want only msg-2 to match lunch by subject, got %+v", bySubject)
	}
}
