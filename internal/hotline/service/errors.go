package service

import (
	"errors"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/platform/apperr"
)

// Machine-readable codes carried in apperr.Error.Op.
const (
	CodePhoneNotConfigured   = "phone_not_configured"
	CodeCallInitiationFailed = "call_initiation_failed"
)

var (
	errUnauthenticated  = apperr.Unauthorized("authentication required")
	errRateLimited      = apperr.RateLimited("too many activations, try again shortly")
	errSubjectNotFound  = apperr.NotFound("member not found")
	errIncidentNotFound = apperr.NotFound("incident not found")
	errMissingTarget    = apperr.Validation("incidentId or callSid is required")
)

func errPhoneNotConfigured() error {
	return apperr.Validation("no phone number configured for this member").WithOp(CodePhoneNotConfigured)
}

func errCallInitiationFailed(err error, reason string) error {
	return apperr.Upstream("could not place the bridge call", err).
		WithOp(CodeCallInitiationFailed).
		WithDetails(map[string]string{"reason": reason})
}

func errStoreUnavailable(err error) error {
	return apperr.Unavailable("incident store unavailable", err)
}

func (s *Service) mapSubjectError(err error) error {
	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, domain.ErrSubjectNotFound):
		return errSubjectNotFound
	default:
		return apperr.Unavailable("member directory unavailable", err)
	}
}
