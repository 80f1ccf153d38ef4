package service

import (
	"context"

	"hotline_backend/internal/presence"
)

// TeamPresence returns the partner roster for the caller's region.
func (s *Service) TeamPresence(ctx context.Context, caller Caller) ([]presence.Partner, error) {
	subject, _, err := s.resolveCaller(ctx, caller)
	if err != nil {
		return nil, s.mapSubjectError(err)
	}
	return presence.Rotation(subject.Region, s.now()), nil
}
