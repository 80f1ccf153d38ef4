package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/service"
	"hotline_backend/internal/hotline/transport"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/httpkit"
	"hotline_backend/platform/logger"
	"hotline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid incident ID"
	msgInvalidSignature = "invalid signature"
)

// Options controls how provider callbacks are authenticated.
type Options struct {
	// PublicBaseURL is the origin the provider signs callback URLs against.
	PublicBaseURL string
	Production    bool
	// SignatureBypass accepts unsigned callbacks outside production.
	SignatureBypass bool
}

// Handler handles HTTP requests for the hotline.
type Handler struct {
	svc      *service.Service
	val      *validator.Validator
	verifier *telephony.Verifier
	opts     Options
	log      *logger.Logger
}

// New creates a new hotline handler.
func New(svc *service.Service, val *validator.Validator, verifier *telephony.Verifier, opts Options, log *logger.Logger) *Handler {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Handler{svc: svc, val: val, verifier: verifier, opts: opts, log: log}
}

func callerFrom(c *gin.Context) service.Caller {
	id := httpkit.GetIdentity(c)
	return service.Caller{SubjectID: id.Subject(), Email: id.Email()}
}

// Activate starts a crisis call for the caller.
// POST /api/v1/hotline/activate
func (h *Handler) Activate(c *gin.Context) {
	result, err := h.svc.Activate(c.Request.Context(), callerFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ActivateResponse{
		IncidentID: result.IncidentID,
		CallPlaced: result.CallPlaced,
		Persisted:  result.Persisted,
	}
	if result.ProviderCallID != "" {
		resp.ProviderCallID = &result.ProviderCallID
	}
	httpkit.OK(c, resp)
}

// ActivateCompat is the legacy activation path.
// POST /api/v1/hotline/activate-compat
func (h *Handler) ActivateCompat(c *gin.Context) {
	h.log.WithContext(c.Request.Context()).Event("compat_activate_called",
		slog.String("route", c.FullPath()),
	)
	h.Activate(c)
}

// CallStatus receives provider delivery callbacks. Every authenticated
// callback is acknowledged with 200 so the provider does not retry.
// POST /api/v1/twilio/call-status
func (h *Handler) CallStatus(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.log.WithContext(ctx)

	params, err := callbackParams(c)
	if err != nil {
		log.EventWarn("call_status_unparseable", slog.String("error", err.Error()))
		params = url.Values{}
	}

	if !h.authenticCallback(c, params) {
		httpkit.Error(c, http.StatusUnauthorized, msgInvalidSignature, nil)
		return
	}

	var req transport.CallStatusRequest
	if err := binding.MapFormWithTag(&req, params, "form"); err != nil {
		log.EventWarn("call_status_unparseable", slog.String("error", err.Error()))
	}
	if err := h.val.Struct(req); err != nil {
		log.EventWarn("call_status_malformed_sid",
			slog.String("call_sid", req.CallSid),
			slog.String("error", err.Error()),
		)
	}

	_, _ = h.svc.Reconcile(ctx, service.Callback{
		CallSid:          req.CallSid,
		ParentCallSid:    req.ParentCallSid,
		DialCallSid:      req.DialCallSid,
		CallStatus:       req.CallStatus,
		DialCallStatus:   req.DialCallStatus,
		CallDuration:     req.CallDuration,
		DialCallDuration: req.DialCallDuration,
	})
	httpkit.OK(c, transport.CallStatusResponse{OK: true})
}

// authenticCallback verifies the provider signature. Outside production an
// explicitly configured bypass admits unsigned callbacks and logs each one.
func (h *Handler) authenticCallback(c *gin.Context, params url.Values) bool {
	fullURL := h.opts.PublicBaseURL + c.Request.URL.RequestURI()
	signature := c.GetHeader(telephony.SignatureHeader)
	if h.verifier.Verify(fullURL, signature, params) {
		return true
	}

	log := h.log.WithContext(c.Request.Context())
	if !h.opts.Production && h.opts.SignatureBypass {
		log.EventWarn("call_status_signature_bypassed",
			slog.Bool("signature_bypassed", true),
			slog.Bool("signature_present", signature != ""),
		)
		return true
	}
	log.EventWarn("call_status_signature_invalid",
		slog.Bool("signature_present", signature != ""),
		slog.Bool("secret_configured", h.verifier.Configured()),
	)
	return false
}

// callbackParams reads the callback body as form values. JSON bodies are
// flattened into the same shape.
func callbackParams(c *gin.Context) (url.Values, error) {
	if c.ContentType() != binding.MIMEJSON {
		if err := c.Request.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return c.Request.PostForm, nil
	}

	var body map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return url.Values{}, nil
		}
		return nil, fmt.Errorf("decode json: %w", err)
	}

	params := make(url.Values, len(body))
	for key, raw := range body {
		switch v := raw.(type) {
		case nil:
		case string:
			params.Set(key, v)
		case float64:
			params.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			params.Set(key, fmt.Sprint(v))
		}
	}
	return params, nil
}

// Markup answers the provider's request for call-control instructions.
// GET|POST /api/v1/hotline/twiml
func (h *Handler) Markup(c *gin.Context) {
	callID := c.Query("CallSid")
	if callID == "" {
		callID = c.PostForm("CallSid")
	}
	body, status := h.svc.RenderBridge(c.Request.Context(), callID)
	httpkit.XML(c, status, body)
}

// EndSession ends the caller's call.
// POST /api/v1/hotline/end-session
func (h *Handler) EndSession(c *gin.Context) {
	var req transport.EndSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	err := h.svc.EndSession(c.Request.Context(), callerFrom(c), service.EndSessionRequest{
		IncidentID: req.IncidentID,
		CallSid:    req.CallSid,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.EndSessionResponse{Success: true})
}

// ActiveSession reports the caller's current session. It never fails.
// GET /api/v1/me/active-session
func (h *Handler) ActiveSession(c *gin.Context) {
	snap := h.svc.ActiveSession(c.Request.Context(), callerFrom(c))
	httpkit.OK(c, transport.ActiveSessionResponse{
		Active:          snap.Active,
		Status:          snap.Status,
		IncidentID:      snap.IncidentID,
		CallSid:         snap.ProviderCallID,
		ProviderStatus:  snap.ProviderStatus,
		StartedAt:       snap.CreatedAt,
		ActivatedAt:     snap.ActivatedAt,
		ResolvedAt:      snap.ResolvedAt,
		DurationSeconds: snap.DurationSeconds,
	})
}

// LastIncident returns the caller's most recent resolved incident, or an
// empty object when there is none.
// GET /api/v1/me/last-incident
func (h *Handler) LastIncident(c *gin.Context) {
	inc, ok, err := h.svc.LastResolved(c.Request.Context(), callerFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	if !ok {
		httpkit.OK(c, gin.H{})
		return
	}
	httpkit.OK(c, transport.LastIncidentResponse{
		ID:         inc.ID,
		CreatedAt:  inc.CreatedAt,
		ResolvedAt: inc.ResolvedAt,
		OperatorID: inc.OperatorID,
	})
}

// GetIncident returns the public status view of an incident.
// GET /api/v1/incidents/:incidentId
func (h *Handler) GetIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	inc, err := h.svc.GetIncident(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, incidentStatus(inc))
}

func incidentStatus(inc domain.Incident) transport.IncidentStatusResponse {
	return transport.IncidentStatusResponse{
		ID:              inc.ID,
		SubjectID:       inc.SubjectID,
		Status:          string(inc.Status),
		ProviderStatus:  inc.ProviderStatus,
		CreatedAt:       inc.CreatedAt,
		ResolvedAt:      inc.ResolvedAt,
		DurationSeconds: inc.DurationSeconds,
		CallSid:         inc.ProviderCallID,
	}
}

// Presence returns partner availability for the caller's region.
// GET /api/v1/partners/presence
func (h *Handler) Presence(c *gin.Context) {
	roster, err := h.svc.TeamPresence(c.Request.Context(), callerFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PresenceResponse{Partners: roster})
}
