package proxy

import (
	"encoding/json"
	"net/url"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/metrics"
)

// Replication filters the guard knows about
const (
	FilterDocIDs   = "_doc_ids"
	docByPlaceName = "doc_by_place"
)

// ReplicationRequest holds the untrusted filter parameters of a change feed subscription
type ReplicationRequest struct {
	Filter     string
	ID         string
	Unassigned string
	DocIDs     string
}

// ParseReplicationRequest reads the filter parameters from a change feed query
func ParseReplicationRequest(query url.Values) ReplicationRequest {
	return ReplicationRequest{
		Filter:     query.Get("filter"),
		ID:         query.Get("id"),
		Unassigned: query.Get("unassigned"),
		DocIDs:     query.Get("doc_ids"),
	}
}

// ReplicationScope is what the caller is allowed to replicate
type ReplicationScope struct {
	FacilityID string
	// CanViewUnallocated is the caller's capability; UnallocatedEnabled the deployment flag
	CanViewUnallocated bool
	UnallocatedEnabled bool
}

// ReplicationGuard validates change feed subscriptions against the caller's scope
type ReplicationGuard struct {
	docByPlace  string
	settingsDoc string
}

// NewReplicationGuard creates a guard for the design document ddoc
func NewReplicationGuard(ddoc string) *ReplicationGuard {
	return &ReplicationGuard{
		docByPlace:  ddoc + "/" + docByPlaceName,
		settingsDoc: "_design/" + ddoc,
	}
}

// Validate returns a SecurityViolation unless req stays within scope
func (g *ReplicationGuard) Validate(scope ReplicationScope, req ReplicationRequest) error {
	var reason string
	switch req.Filter {
	case g.docByPlace:
		if scope.FacilityID == "" || req.ID != scope.FacilityID {
			reason = "restricted filter params"
		} else if req.Unassigned == "true" && !(scope.CanViewUnallocated && scope.UnallocatedEnabled) {
			reason = "unassigned records not permitted"
		}
	case FilterDocIDs:
		var ids []string
		if err := json.Unmarshal([]byte(req.DocIDs), &ids); err != nil || len(ids) != 1 || ids[0] != g.settingsDoc {
			reason = "restricted filter id"
		}
	default:
		reason = "restricted filter"
	}

	if reason != "" {
		log.Warn().
			Str("filter", req.Filter).
			Str("id", req.ID).
			Str("facility_id", scope.FacilityID).
			Str("unassigned", req.Unassigned).
			Str("doc_ids", req.DocIDs).
			Str("reason", reason).
			Msg("Unauthorized replication attempt")
		metrics.RecordReplicationDecision(filterLabel(req.Filter, g), "rejected")
		return &apierr.SecurityViolation{Filter: req.Filter, Reason: reason}
	}

	metrics.RecordReplicationDecision(req.Filter, "accepted")
	return nil
}

// filterLabel keeps arbitrary client filter names out of metric labels
func filterLabel(filter string, g *ReplicationGuard) string {
	if filter == g.docByPlace || filter == FilterDocIDs {
		return filter
	}
	return "other"
}
