// Package scope decides which agencies a principal may see. Every read path,
// write path and live connection asks the same Resolver, so visibility rules
// live in one place.
package scope

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	identity "apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	platformstrings "apb/pkg/platform/strings"
)

// Policy selects how an elevated principal's scope is expanded beyond its
// home agency. Ordinary principals always get exactly their home agency.
type Policy string

const (
	// PolicyHome grants elevated principals no expansion.
	PolicyHome Policy = "home"
	// PolicyAll grants elevated principals every registered agency.
	PolicyAll Policy = "all"
	// PolicyDelegated grants elevated principals the agencies configured for
	// their home agency.
	PolicyDelegated Policy = "delegated"
)

// ParsePolicy accepts a policy name case-insensitively. Empty means home.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyHome, nil
	case PolicyHome, PolicyAll, PolicyDelegated:
		return p, nil
	default:
		return "", fmt.Errorf("unknown scope policy %q", s)
	}
}

// AgencyLister enumerates registered agencies for PolicyAll.
type AgencyLister interface {
	ListIDs(ctx context.Context) ([]id.AgencyID, error)
}

type Resolver struct {
	policy      Policy
	agencies    AgencyLister
	delegations map[id.AgencyID][]id.AgencyID
	logger      *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithAgencyLister is required for PolicyAll.
func WithAgencyLister(agencies AgencyLister) Option {
	return func(r *Resolver) {
		r.agencies = agencies
	}
}

// WithDelegations sets the home-to-extra-agencies map used by PolicyDelegated.
func WithDelegations(delegations map[id.AgencyID][]id.AgencyID) Option {
	return func(r *Resolver) {
		r.delegations = delegations
	}
}

func NewResolver(policy Policy, opts ...Option) (*Resolver, error) {
	r := &Resolver{policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == "" {
		r.policy = PolicyHome
	}
	if r.policy == PolicyAll && r.agencies == nil {
		return nil, fmt.Errorf("scope policy %q requires an agency lister", PolicyAll)
	}
	return r, nil
}

// ScopesFor returns the agencies principal is authorized to see. The home
// agency is always a member.
func (r *Resolver) ScopesFor(ctx context.Context, principal identity.Principal) (Set, error) {
	if !principal.Resolvable() {
		return Set{}, dErrors.New(dErrors.CodeUnauthorized, "principal has no resolvable identity")
	}
	if !principal.Role.Elevated() {
		return NewSet(principal.HomeAgencyID), nil
	}

	switch r.policy {
	case PolicyAll:
		all, err := r.agencies.ListIDs(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to expand elevated scope",
				"error", err,
				"user_id", principal.UserID,
			)
			return Set{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve scopes")
		}
		return NewSet(append(all, principal.HomeAgencyID)...), nil
	case PolicyDelegated:
		extra := r.delegations[principal.HomeAgencyID]
		ids := make([]id.AgencyID, 0, len(extra)+1)
		ids = append(ids, principal.HomeAgencyID)
		ids = append(ids, extra...)
		return NewSet(ids...), nil
	default:
		return NewSet(principal.HomeAgencyID), nil
	}
}

// ParseDelegations reads "home:extra1,extra2;home2:extra3" into a delegation map.
func ParseDelegations(raw string) (map[id.AgencyID][]id.AgencyID, error) {
	out := make(map[id.AgencyID][]id.AgencyID)
	for _, entry := range platformstrings.SplitList(raw, ";") {
		home, extras, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("delegation %q: expected home:agency[,agency]", entry)
		}
		homeID, err := id.ParseAgencyID(strings.TrimSpace(home))
		if err != nil {
			return nil, fmt.Errorf("delegation %q: %w", entry, err)
		}
		for _, extra := range platformstrings.SplitList(extras, ",") {
			extraID, err := id.ParseAgencyID(extra)
			if err != nil {
				return nil, fmt.Errorf("delegation %q: %w", entry, err)
			}
			out[homeID] = append(out[homeID], extraID)
		}
	}
	return out, nil
}
