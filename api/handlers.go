/*
handlers.go - HTTP handlers for accounts, leaves, alarms, and admin

PURPOSE:
  Thin HTTP skin over the domain: decode, validate shape, call the engine,
  encode. No business rules live here.

ENDPOINTS:
  Public:
    POST   /join                      Create an account
    POST   /login                     Issue an identity token

  Authenticated:
    GET    /auth/user                 Current account
    POST   /auth/leave                Apply for leave/duty
    DELETE /auth/leave/{id}           Cancel own leave
    GET    /auth/leave                Query leaves (user_id, day|week|month)
    GET    /auth/alarm                Alarm feed (approved + rejected)
    GET    /auth/connect              Open the live push stream (stream.go)
    POST   /auth/disconnect           Close the live push stream
    POST   /auth/msg                  Fire-and-forget push to self

  Admin:
    POST   /admin/leave/{id}/approve  Approve a waiting leave
    POST   /admin/leave/{id}/reject   Reject a waiting leave
    PUT    /admin/users/{id}/annual   Reset remaining annual days
    PUT    /admin/users/{id}/role     Change a user's role
    GET    /admin/users               Paginated member search

ERROR HANDLING:
  Domain errors map to statuses in exactly one place (writeDomainError):
  validation 400, authorization 403, not-found 404, invalid-state 409,
  everything else 500. Responses always carry {error, field?, details?}.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/push"
)

// defaultAnnualDays is granted to every new account.
const defaultAnnualDays = 15

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    leave.TxStore
	Engine   *leave.Engine
	Alarms   *leave.Alarms
	Manager  *leave.Manager
	Registry *push.Registry
	Tokens   *TokenIssuer

	validate *validator.Validate
	log      *logrus.Logger
}

func NewHandler(store leave.TxStore, engine *leave.Engine, alarms *leave.Alarms,
	manager *leave.Manager, registry *push.Registry, tokens *TokenIssuer, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Store:    store,
		Engine:   engine,
		Alarms:   alarms,
		Manager:  manager,
		Registry: registry,
		Tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

// decodeValid decodes the body into dst and runs shape validation.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid request body", verrs[0].Field(), verrs[0].Tag())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return false
	}
	return true
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Join creates an account with the default annual-day grant.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password", "", err.Error())
		return
	}

	user := &leave.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         leave.RoleUser,
		RemainDays:   leave.DaysOf(defaultAnnualDays),
		Active:       true,
	}

	// Uniqueness check and insert share one transaction so concurrent joins
	// for the same email cannot both pass the check.
	ctx := r.Context()
	err = h.Store.WithTx(ctx, func(s leave.Store) error {
		existing, err := s.GetUserByEmail(ctx, req.Email)
		if err != nil {
			return &leave.StorageError{Op: "get user", Err: err}
		}
		if existing != nil {
			return &leave.ValidationError{Field: "email", Reason: "already registered"}
		}
		if err := s.SaveUser(ctx, user); err != nil {
			return &leave.StorageError{Op: "save user", Err: err}
		}
		return nil
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.WithFields(logrus.Fields{"user": user.ID, "email": user.Email}).Info("user joined")
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// Login verifies credentials and issues an identity token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.writeDomainError(w, &leave.StorageError{Op: "get user", Err: err})
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password", "", "")
		return
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token", "", err.Error())
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, http.StatusOK, LoginDTO{Token: token, User: toUserDTO(user)})
}

// CurrentUser returns the authenticated account.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	user, err := h.Store.GetUser(r.Context(), id.UserID)
	if err != nil {
		h.writeDomainError(w, &leave.StorageError{Op: "get user", Err: err})
		return
	}
	if user == nil {
		h.writeDomainError(w, &leave.NotFoundError{Entity: "user", ID: id.UserID})
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ApplyLeave submits a leave/duty request for the caller.
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req ApplyLeaveRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", "start_date", err.Error())
		return
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", "end_date", err.Error())
		return
	}

	result, err := h.Engine.Apply(r.Context(), id.UserID, leave.LeaveType(req.Type),
		calendar.Range{Start: start, End: end})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ApplyLeaveDTO{
		ID:         result.LeaveID,
		Type:       string(result.Type),
		UsingDays:  result.UsingDays.String(),
		RemainDays: result.RemainDays.String(),
		Status:     string(result.Status),
	})
}

// CancelLeave cancels a leave owned by the caller.
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	leaveID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid leave id", "id", err.Error())
		return
	}

	remain, err := h.Engine.Cancel(r.Context(), leaveID, id.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelLeaveDTO{RemainDays: remain.String()})
}

// ListLeaves queries leaves with an optional user scope and at most one
// date anchor (day, week, or month).
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var userID *int64
	if raw := q.Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id", "user_id", err.Error())
			return
		}
		userID = &parsed
	}

	filter := leave.NoFilter()
	anchors := 0
	for _, a := range []struct {
		name  string
		build func(calendar.Date) leave.DateFilter
	}{
		{"day", leave.OnDay},
		{"week", leave.InWeek},
		{"month", leave.InMonth},
	} {
		raw := q.Get(a.name)
		if raw == "" {
			continue
		}
		anchors++
		date, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+a.name+" anchor", a.name, err.Error())
			return
		}
		filter = a.build(date)
	}
	if anchors > 1 {
		writeError(w, http.StatusBadRequest, "supply at most one of day, week, month", "", "")
		return
	}

	seq, err := h.Engine.Leaves(r.Context(), userID, filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := []LeaveInfoDTO{}
	for info := range seq {
		dtos = append(dtos, toLeaveInfoDTO(info))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveLeave approves a waiting leave.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// RejectLeave rejects a waiting leave and releases its reservation.
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	leaveID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid leave id", "id", err.Error())
		return
	}

	decided, err := h.Engine.Decide(r.Context(), leaveID, approve)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecideLeaveDTO{ID: decided.ID, Status: string(decided.Status)})
}

// =============================================================================
// ALARM HANDLERS
// =============================================================================

// ListAlarms returns the caller's alarms for decided leaves: the approved
// set followed by the rejected set, duplicate-free, no re-sorting.
func (h *Handler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	alarms, err := h.Alarms.List(r.Context(), id.UserID, leave.StatusApproval, leave.StatusRejection)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]AlarmDTO, len(alarms))
	for i, a := range alarms {
		dtos[i] = AlarmDTO{
			ID:        a.ID,
			LeaveID:   a.LeaveID,
			Message:   a.Message,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SetAnnualDays resets a user's remaining annual-day balance.
func (h *Handler) SetAnnualDays(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id", "id", err.Error())
		return
	}

	var req SetAnnualRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.Manager.SetRemainingDays(r.Context(), userID, leave.DaysOf(*req.RemainDays))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// SetRole changes a user's role.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id", "id", err.Error())
		return
	}

	var req SetRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.Manager.SetRole(r.Context(), userID, leave.Role(req.Role))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// DeactivateUser retires an account. The row stays for the audit trail.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id", "id", err.Error())
		return
	}

	user, err := h.Manager.Deactivate(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// SearchUsers runs the paginated member search.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 0
	if raw := q.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page", "page", err.Error())
			return
		}
		page = parsed
	}
	size := 20
	if raw := q.Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid size", "size", err.Error())
			return
		}
		size = parsed
	}

	result, err := h.Manager.Search(r.Context(), q.Get("query"), page, size)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := UserPageDTO{
		Users:      make([]UserDTO, len(result.Users)),
		Page:       result.Page,
		Size:       result.Size,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	}
	for i := range result.Users {
		dto.Users[i] = toUserDTO(&result.Users[i])
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, field, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Field: field, Details: details})
}

// writeDomainError is the single mapping from domain errors to statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var ve *leave.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "validation failed", ve.Field, ve.Reason)
		return
	}
	var ae *leave.AuthorizationError
	if errors.As(err, &ae) {
		writeError(w, http.StatusForbidden, "not authorized", "", ae.Reason)
		return
	}
	var nfe *leave.NotFoundError
	if errors.As(err, &nfe) {
		writeError(w, http.StatusNotFound, nfe.Entity+" not found", "id", "")
		return
	}
	var ise *leave.InvalidStateError
	if errors.As(err, &ise) {
		writeError(w, http.StatusConflict, "illegal lifecycle transition", "status", ise.Error())
		return
	}
	var de *push.DeliveryError
	if errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, "push delivery failed", "", de.Error())
		return
	}

	h.log.WithError(err).Error("internal error")
	writeError(w, http.StatusInternalServerError, "internal error", "", err.Error())
}
