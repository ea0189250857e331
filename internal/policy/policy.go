// Package policy enforces each agent's contact policy (open, auto,
// contacts_only, block_all) on inbound messages within a project, and the
// bidirectional link requirement for cross-project messages. Grounded on
// the teacher's habit of keeping authorization as small pure functions over
// already-loaded rows (internal/db/queries_access.go) rather than a
// separate policy engine package.
package policy

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/leases"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

// HumanOverseerName is the synthetic agent name the specification reserves
// for the human overseer, who bypasses contact policy entirely.
const HumanOverseerName = "overseer"

// Decision is the result of evaluating whether `from` may message `to`.
type Decision struct {
	Allowed bool
	// Pending is set when the policy is auto and no prior signal exists:
	// a contact request was just created (or already existed) and the
	// sender must wait for it to be accepted.
	Pending *types.ContactRequest
}

// AuthorizeSameProject decides whether from may message to within one
// project, per the specification's contact-policy table:
//
//	open           - always allowed
//	auto           - allowed if the two agents hold overlapping active
//	                 claims, share a prior thread, or have an accepted
//	                 contact request; otherwise a contact request is
//	                 auto-created (or the pending one reused) and the
//	                 message is deferred
//	contacts_only  - allowed only with a prior accepted contact request
//	block_all      - never allowed
//
// fromKind bypasses every rule for the human overseer.
func AuthorizeSameProject(db *sql.DB, projectID, from string, fromKind types.FromKind, to string, now int64) (Decision, error) {
	if fromKind == types.FromHumanKind || from == HumanOverseerName {
		return Decision{Allowed: true}, nil
	}

	recipient, err := store.GetAgent(db, projectID, to)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "load recipient", err)
	}
	if recipient == nil {
		return Decision{}, apperr.New(apperr.ErrAgentNotRegistered, to)
	}

	switch recipient.ContactPolicy {
	case types.PolicyOpen:
		return Decision{Allowed: true}, nil

	case types.PolicyBlockAll:
		return Decision{Allowed: false}, nil

	case types.PolicyContactsOnly:
		accepted, err := store.FindAcceptedContact(db, projectID, from, to)
		if err != nil {
			return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "check contact", err)
		}
		return Decision{Allowed: accepted}, nil

	case types.PolicyAuto:
		sharedClaim, err := leases.SharedOverlap(db, projectID, from, to, now)
		if err != nil {
			return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "check shared claim", err)
		}
		if sharedClaim {
			return Decision{Allowed: true}, nil
		}
		hadThread, err := store.SharedThreadExists(db, projectID, from, to)
		if err != nil {
			return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "check shared thread", err)
		}
		if hadThread {
			return Decision{Allowed: true}, nil
		}
		accepted, err := store.FindAcceptedContact(db, projectID, from, to)
		if err != nil {
			return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "check contact", err)
		}
		if accepted {
			return Decision{Allowed: true}, nil
		}

		pending, err := store.FindPendingContact(db, projectID, from, to)
		if err != nil {
			return Decision{}, apperr.Wrap(apperr.ErrInvalidArgument, "check pending contact", err)
		}
		if pending != nil {
			return Decision{Allowed: false, Pending: pending}, nil
		}

		created, err := RequestContact(db, projectID, from, to, "auto-created on first message", now)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: false, Pending: &created}, nil

	default:
		return Decision{}, apperr.Newf(apperr.ErrInvalidArgument, "unknown contact policy %q", recipient.ContactPolicy)
	}
}

// AuthorizeCrossProject decides whether an agent in one project may message
// an agent in another: the specification requires an AgentLink accepted in
// both directions before any cross-project traffic flows.
func AuthorizeCrossProject(db *sql.DB, fromProjectID, fromAgent, toProjectID, toAgent string) (bool, error) {
	forward, err := store.GetAgentLinkByParties(db, fromProjectID, fromAgent, toProjectID, toAgent)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrInvalidArgument, "load link", err)
	}
	backward, err := store.GetAgentLinkByParties(db, toProjectID, toAgent, fromProjectID, fromAgent)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrInvalidArgument, "load link", err)
	}
	if forward == nil || backward == nil {
		return false, nil
	}
	return forward.State == types.LinkAccepted && backward.State == types.LinkAccepted, nil
}

// RequestContact creates a pending contact request from -> to.
func RequestContact(db *sql.DB, projectID, from, to, reason string, now int64) (types.ContactRequest, error) {
	req := types.ContactRequest{
		ID:        "creq_" + uuid.NewString(),
		ProjectID: projectID,
		From:      from,
		To:        to,
		Reason:    reason,
		State:     types.ContactPending,
		CreatedTS: now,
	}
	if err := store.InsertContactRequest(db, req); err != nil {
		return types.ContactRequest{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index contact request", err)
	}
	return req, nil
}

// RespondContact accepts or declines a pending contact request.
func RespondContact(db *sql.DB, id string, accept bool, now int64) (types.ContactRequest, error) {
	req, err := store.GetContactRequest(db, id)
	if err != nil {
		return types.ContactRequest{}, apperr.Wrap(apperr.ErrInvalidArgument, "load contact request", err)
	}
	if req == nil {
		return types.ContactRequest{}, apperr.New(apperr.ErrInvalidArgument, "contact request not found: "+id)
	}
	state := types.ContactDeclined
	if accept {
		state = types.ContactAccepted
	}
	if err := store.SetContactRequestState(db, id, state, now); err != nil {
		return types.ContactRequest{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "update contact request", err)
	}
	req.State = state
	req.DecidedTS = &now
	return *req, nil
}

// RequestLink creates (or returns the existing) pending directed link from
// one project/agent to another. The reverse direction must be requested and
// accepted separately before cross-project traffic is authorized.
func RequestLink(db *sql.DB, fromProjectID, fromAgent, toProjectID, toAgent string, now int64) (types.AgentLink, error) {
	link := types.AgentLink{
		ID:            "lnk_" + uuid.NewString(),
		FromProjectID: fromProjectID,
		FromAgent:     fromAgent,
		ToProjectID:   toProjectID,
		ToAgent:       toAgent,
		State:         types.LinkPending,
		CreatedTS:     now,
	}
	saved, err := store.UpsertAgentLink(db, link)
	if err != nil {
		return types.AgentLink{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index link", err)
	}
	return saved, nil
}

// RespondLink accepts or blocks a pending link by id.
func RespondLink(db *sql.DB, id string, accept bool, now int64) (types.AgentLink, error) {
	link, err := store.GetAgentLinkByID(db, id)
	if err != nil {
		return types.AgentLink{}, apperr.Wrap(apperr.ErrInvalidArgument, "load link", err)
	}
	if link == nil {
		return types.AgentLink{}, apperr.New(apperr.ErrInvalidArgument, "link not found: "+id)
	}
	state := types.LinkBlocked
	if accept {
		state = types.LinkAccepted
	}
	if err := store.SetAgentLinkState(db, id, state, now); err != nil {
		return types.AgentLink{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "update link", err)
	}
	link.State = state
	link.DecidedTS = &now
	return *link, nil
}

// ListLinks returns every link touching a project, for the links resource.
func ListLinks(db *sql.DB, projectID string) ([]types.AgentLink, error) {
	links, err := store.ListLinksForProject(db, projectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "list links", err)
	}
	return links, nil
}
