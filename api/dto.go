/*
dto.go - Request and response shapes for the HTTP API

PURPOSE:
  Decouples the wire contract from the domain model. Request types carry
  validator/v10 tags; shape validation runs before anything reaches the
  engine, so the domain only ever sees well-formed input.

NAMING CONVENTION:
  *Request: inbound bodies
  *DTO:     outbound payloads
*/
package api

import (
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type JoinRequest struct {
	Username string `json:"username" validate:"required,min=2,max=40"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserDTO struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	RemainDays string `json:"remain_days"`
}

func toUserDTO(u *leave.User) UserDTO {
	return UserDTO{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		RemainDays: u.RemainDays.String(),
	}
}

type LoginDTO struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// =============================================================================
// LEAVES
// =============================================================================

type ApplyLeaveRequest struct {
	Type      string `json:"type" validate:"required,oneof=ANNUAL DUTY"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type ApplyLeaveDTO struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	UsingDays  string `json:"using_days"`
	RemainDays string `json:"remain_days"`
	Status     string `json:"status"`
}

type CancelLeaveDTO struct {
	RemainDays string `json:"remain_days"`
}

type DecideLeaveDTO struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type LeaveInfoDTO struct {
	LeaveID   int64  `json:"leave_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func toLeaveInfoDTO(info leave.Info) LeaveInfoDTO {
	return LeaveInfoDTO{
		LeaveID:   info.LeaveID,
		UserID:    info.UserID,
		Username:  info.Username,
		Type:      string(info.Type),
		Status:    string(info.Status),
		StartDate: info.Range.Start.String(),
		EndDate:   info.Range.End.String(),
	}
}

// =============================================================================
// ALARMS
// =============================================================================

type AlarmDTO struct {
	ID        int64  `json:"id"`
	LeaveID   int64  `json:"leave_id,omitempty"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// PUSH
// =============================================================================

type SendMessageRequest struct {
	Event   string `json:"event" validate:"omitempty,max=64"`
	Message string `json:"message" validate:"max=500"`
}

type SendMessageDTO struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

type DisconnectDTO struct {
	Disconnected bool `json:"disconnected"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RemainDays is a pointer so that an absent field fails `required`
// instead of decoding to a silent zero; an explicit 0 remains valid.
type SetAnnualRequest struct {
	RemainDays *int `json:"remain_days" validate:"required,min=0"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN"`
}

type UserPageDTO struct {
	Users      []UserDTO `json:"users"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the single error shape every failure path produces.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
