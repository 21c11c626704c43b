// Package featuregate answers whether a tenant's subscription includes a feature.
package featuregate

import (
	"context"
	"fmt"
)

// ManufacturingProgress is the feature key guarding the progress engine's API.
const ManufacturingProgress = "manufacturing_progress"

// Decision is the outcome of a capability check. A zero Decision denies.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Static grants features from a fixed tenant → feature list, usually loaded from config.
type Static struct {
	grants map[string]map[string]struct{}
}

func NewStatic(tenants map[string][]string) *Static {
	grants := make(map[string]map[string]struct{}, len(tenants))
	for tenant, features := range tenants {
		set := make(map[string]struct{}, len(features))
		for _, f := range features {
			set[f] = struct{}{}
		}
		grants[tenant] = set
	}
	return &Static{grants: grants}
}

func (s *Static) Check(_ context.Context, tenantID, feature string) Decision {
	if tenantID == "" {
		return Deny("tenant not specified")
	}

	features, ok := s.grants[tenantID]
	if !ok {
		return Deny(fmt.Sprintf("unknown tenant %q", tenantID))
	}
	if _, ok := features[feature]; !ok {
		return Deny(fmt.Sprintf("feature %q is not part of the subscription", feature))
	}

	return Allow()
}
