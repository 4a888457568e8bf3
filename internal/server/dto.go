package server

import (
	"relaydesk/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email string `json:"email" format:"email"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type CreateUserRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email" format:"email"`
	Role       string `json:"role" enum:"admin,manager,teamlead,employee"`
	Department string `json:"department,omitempty"`
}

type SubmitTaskRequest struct {
	ID                *string  `json:"id,omitempty"`
	Title             string   `json:"title"`
	Description       *string  `json:"description,omitempty"`
	Department        string   `json:"department"`
	AssignedTeamLeads []string `json:"assigned_teamleads,omitempty"`
	AssignedEmployees []string `json:"assigned_employees,omitempty"`
}

type ShareTaskRequest struct {
	TaskID string `json:"task_id"`
}

type DelegateRequest struct {
	Stage  string `json:"stage" enum:"manager,teamlead,employee,operation_teamlead,operation_employee"`
	UserID string `json:"user_id"`
}

type UpdateStatusRequest struct {
	Axis  string `json:"axis" enum:"delegation_status,vendor_status,machine_status"`
	Value string `json:"value"`
}

type FeedbackRequest struct {
	Text string `json:"text"`
}

// Response payloads reuse the domain types directly; they carry their wire
// tags already.

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
