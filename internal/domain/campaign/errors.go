package campaign

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrInvalidCampaign  = errors.New("invalid campaign")
	ErrNotEligible      = errors.New("user not eligible for campaign")
	ErrInvalidReward    = errors.New("computed campaign reward must be positive")
	ErrCampaignChanged  = errors.New("campaign changed during apply, retry")
	ErrInternal         = errors.New("internal error")
)

// ValidationError lists field problems of a create or update request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrInvalidCampaign.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCampaign
}

// IneligibleError carries the rule that rejected an apply.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return ErrNotEligible.Error() + ": " + e.Reason
}

func (e *IneligibleError) Unwrap() error {
	return ErrNotEligible
}
