package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/lock"
	"hotline_backend/internal/telephony"
)

// RenderBridge produces the call-control document for callID along with the
// HTTP status to answer with. Only the first request per call id within the
// lock TTL receives a real bridge; repeats get pause-then-hangup. Without any
// operator number the answer is pause-then-hangup with 500 so alerts fire.
func (s *Service) RenderBridge(ctx context.Context, callID string) ([]byte, int) {
	log := s.log.WithContext(ctx)
	callID = strings.TrimSpace(callID)

	operator := s.operatorFor(ctx, callID)
	if operator == "" {
		log.EventError("twiml_no_operator", slog.String("call_sid", callID))
		return telephony.PauseHangupDocument(), http.StatusInternalServerError
	}

	if callID == "" {
		log.EventWarn("twiml_without_call_sid")
	} else if !s.locks.TryAcquire(ctx, lock.Key("bridge", callID), s.opts.BridgeLockTTL) {
		log.Event("twiml_duplicate_suppressed", slog.String("call_sid", callID))
		return telephony.PauseHangupDocument(), http.StatusOK
	}

	body, err := telephony.BridgeDocument(telephony.Bridge{
		Operator:    operator,
		CallerID:    s.opts.CallerID,
		CallbackURL: s.opts.PublicBaseURL + telephony.CallStatusPath,
	})
	if err != nil {
		log.EventError("twiml_render_failed", slog.String("error", err.Error()))
		return telephony.PauseHangupDocument(), http.StatusInternalServerError
	}

	log.Event("twiml_bridge", slog.String("call_sid", callID))
	return body, http.StatusOK
}

// operatorFor returns the operator assigned to the incident behind callID,
// else the configured operator number.
func (s *Service) operatorFor(ctx context.Context, callID string) string {
	if callID != "" {
		inc, err := s.incidents.FindByCallID(ctx, callID)
		switch {
		case err == nil:
			if inc.OperatorPhone != nil && strings.TrimSpace(*inc.OperatorPhone) != "" {
				return strings.TrimSpace(*inc.OperatorPhone)
			}
		case !errors.Is(err, domain.ErrIncidentNotFound):
			s.log.WithContext(ctx).DatabaseError("find_incident_for_twiml", err)
		}
	}
	return strings.TrimSpace(s.opts.OperatorNumber)
}
