// Package identity implements project and agent registration: ensure_project,
// register_agent, whois, list_agents and set_contact_policy. It is the first
// orchestration layer above store and archive, since every other package
// (mailbox, leases, policy) needs a Project and Agent to already exist.
package identity

import (
	"path/filepath"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/ids"
	"github.com/adamavenir/agentmail/internal/naming"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"

	"database/sql"
)

// Manager registers projects and agents, writing each mutation to the
// archive before the index, per the facade's ordering rule.
type Manager struct {
	DB          *sql.DB
	StorageRoot string
}

// EnsureProject returns the project for humanKey, creating it (and its
// archive working tree) if this is the first time it has been seen.
// Per INV-5, the slug derived from humanKey is stable across calls.
func (m *Manager) EnsureProject(humanKey string, now int64) (types.Project, *archive.Archive, error) {
	if humanKey == "" {
		return types.Project{}, nil, apperr.New(apperr.ErrInvalidArgument, "project_key must be set")
	}

	existing, err := store.GetProjectByHumanKey(m.DB, humanKey)
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrInvalidArgument, "look up project", err)
	}
	if existing != nil {
		arc, err := archive.Open(existing.ArchivePath)
		if err != nil {
			return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
		}
		return *existing, arc, nil
	}

	slug := naming.Slug(humanKey)
	archivePath := filepath.Join(m.StorageRoot, slug)
	arc, err := archive.Open(archivePath)
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}

	id, err := ids.NewProjectID()
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrInvalidArgument, "generate project id", err)
	}
	project := types.Project{
		ID:          id,
		HumanKey:    humanKey,
		Slug:        slug,
		ArchivePath: archivePath,
		CreatedTS:   now,
		Meta:        map[string]string{},
	}

	meta := archive.ProjectMetaRecord{HumanKey: humanKey, Slug: slug, CreatedTS: now}
	data, err := archive.EncodeProjectMeta(meta)
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrInvalidArgument, "encode project meta", err)
	}
	if err := arc.WriteFile(archive.ProjectMetaPath, data); err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write project meta", err)
	}
	if _, err := arc.Commit("project: init " + slug); err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit project init", err)
	}

	if err := store.UpsertProject(m.DB, project); err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index project", err)
	}
	return project, arc, nil
}

// RegisterAgent registers (or, if name names an already-registered agent,
// idempotently updates) an agent within a project. If name is empty, a new
// name is generated from nameHint (or pure-random if nameHint is also
// empty), guaranteed unique within the project.
func (m *Manager) RegisterAgent(arc *archive.Archive, projectID, name, nameHint, program, model, task string, now int64) (types.Agent, error) {
	exists := func(candidate string) (bool, error) {
		return store.AgentExists(m.DB, projectID, candidate)
	}

	isNew := false
	if name == "" {
		generated, err := naming.GenerateName(nameHint, exists)
		if err != nil {
			return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "generate agent name", err)
		}
		name = generated
		isNew = true
	} else if !naming.ValidAgentName(name) {
		return types.Agent{}, apperr.Newf(apperr.ErrInvalidArgument, "invalid agent name %q", name)
	} else {
		already, err := exists(name)
		if err != nil {
			return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "check agent existence", err)
		}
		isNew = !already
	}

	agent := types.Agent{
		ProjectID:       projectID,
		Name:            name,
		Program:         program,
		Model:           model,
		TaskDescription: task,
		InceptionTS:     now,
		LastActiveTS:    now,
		ContactPolicy:   types.PolicyAuto,
	}
	if !isNew {
		existing, err := store.GetAgent(m.DB, projectID, name)
		if err != nil {
			return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "load existing agent", err)
		}
		agent.ID = existing.ID
		agent.InceptionTS = existing.InceptionTS
		agent.ContactPolicy = existing.ContactPolicy
		// Re-registration is idempotent; a caller who omits program/model/task
		// (e.g. macro_prepare_thread, which registers by name alone) must not
		// blank out metadata a prior register_agent call already set.
		if program == "" {
			agent.Program = existing.Program
		}
		if model == "" {
			agent.Model = existing.Model
		}
		if task == "" {
			agent.TaskDescription = existing.TaskDescription
		}
	} else {
		id, err := ids.NewAgentID()
		if err != nil {
			return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "generate agent id", err)
		}
		agent.ID = id
	}

	profile := archive.AgentProfileRecord{
		Name:            agent.Name,
		Program:         agent.Program,
		Model:           agent.Model,
		TaskDescription: agent.TaskDescription,
		InceptionTS:     agent.InceptionTS,
		LastActiveTS:    agent.LastActiveTS,
		ContactPolicy:   string(agent.ContactPolicy),
	}
	data, err := archive.EncodeAgentProfile(profile)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "encode agent profile", err)
	}
	if err := arc.WriteFile(archive.AgentProfilePath(agent.Name), data); err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write agent profile", err)
	}

	subject := archive.AgentUpdateSubject(agent.Name)
	if isNew {
		subject = archive.AgentCreateSubject(agent.Name)
	}
	if _, err := arc.Commit(subject); err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit agent profile", err)
	}

	saved, err := store.UpsertAgent(m.DB, agent)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index agent", err)
	}
	return saved, nil
}

// Resolve looks up a project by the key callers pass after the initial
// ensure_project call: the human_key itself, or (for callers that cached
// it) the derived slug.
func (m *Manager) Resolve(projectKey string) (types.Project, *archive.Archive, error) {
	existing, err := store.GetProjectByHumanKey(m.DB, projectKey)
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrInvalidArgument, "look up project", err)
	}
	if existing == nil {
		existing, err = store.GetProjectBySlug(m.DB, projectKey)
		if err != nil {
			return types.Project{}, nil, apperr.Wrap(apperr.ErrInvalidArgument, "look up project", err)
		}
	}
	if existing == nil {
		return types.Project{}, nil, apperr.New(apperr.ErrProjectNotFound, projectKey)
	}
	arc, err := archive.Open(existing.ArchivePath)
	if err != nil {
		return types.Project{}, nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "open archive", err)
	}
	return *existing, arc, nil
}

// Whois returns the named agent, or a not-registered error.
func (m *Manager) Whois(projectID, name string) (types.Agent, error) {
	agent, err := store.GetAgent(m.DB, projectID, name)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "look up agent", err)
	}
	if agent == nil {
		return types.Agent{}, apperr.New(apperr.ErrAgentNotRegistered, name)
	}
	return *agent, nil
}

// ListAgents returns every agent in a project, optionally filtered to those
// active within windowSeconds of now.
func (m *Manager) ListAgents(projectID string, activeOnly bool, now, windowSeconds int64) ([]types.Agent, error) {
	agents, err := store.ListAgents(m.DB, projectID, activeOnly, now, windowSeconds)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "list agents", err)
	}
	return agents, nil
}

// SetContactPolicy updates an agent's contact policy in both archive and
// index.
func (m *Manager) SetContactPolicy(arc *archive.Archive, projectID, name string, policy types.ContactPolicy) (types.Agent, error) {
	if !policy.Valid() {
		return types.Agent{}, apperr.Newf(apperr.ErrInvalidArgument, "invalid contact policy %q", policy)
	}
	agent, err := store.GetAgent(m.DB, projectID, name)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "load agent", err)
	}
	if agent == nil {
		return types.Agent{}, apperr.New(apperr.ErrAgentNotRegistered, name)
	}

	profile := archive.AgentProfileRecord{
		Name:            agent.Name,
		Program:         agent.Program,
		Model:           agent.Model,
		TaskDescription: agent.TaskDescription,
		InceptionTS:     agent.InceptionTS,
		LastActiveTS:    agent.LastActiveTS,
		ContactPolicy:   string(policy),
	}
	data, err := archive.EncodeAgentProfile(profile)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrInvalidArgument, "encode agent profile", err)
	}
	if err := arc.WriteFile(archive.AgentProfilePath(name), data); err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write agent profile", err)
	}
	if _, err := arc.Commit(archive.AgentUpdateSubject(name)); err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit contact policy", err)
	}

	updated, err := store.SetContactPolicy(m.DB, projectID, name, policy)
	if err != nil {
		return types.Agent{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index contact policy", err)
	}
	return *updated, nil
}
