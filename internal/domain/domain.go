package domain

import "strings"

// Roles recognized by the delegation chain.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleTeamLead = "teamlead"
	RoleEmployee = "employee"
)

// Roles lists every valid role tag.
var Roles = []string{RoleAdmin, RoleManager, RoleTeamLead, RoleEmployee}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an email address. Participant identity
// keys and self-exclusion both compare normalized forms.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Actor is the authenticated identity acting on a request. Role is carried as
// data, resolved once at the request boundary; the core never infers it from
// store metadata.
type Actor struct {
	ID         string `json:"id"`
	Role       string `json:"role" enum:"admin,manager,teamlead,employee"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
}

// User is a directory record.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role" enum:"admin,manager,teamlead,employee"`
	Department string `json:"department,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Actor converts a directory record into an acting identity.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email, Department: u.Department}
}

// Task is an originating submission. Immutable once created; its own workflow
// status lives outside the delegation core.
type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Department        string   `json:"department"`
	SubmittedBy       string   `json:"submitted_by"`
	AssignedTeamLeads []string `json:"assigned_teamleads,omitempty"`
	AssignedEmployees []string `json:"assigned_employees,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

// Delegation status axis values.
const (
	DelegationPending       = "pending"
	DelegationSigned        = "signed"
	DelegationNotAvailable  = "not_available"
	DelegationNotInterested = "not_interested"
	DelegationReschedule    = "re_schedule"
	DelegationCompleted     = "completed"
	DelegationInProgress    = "in_progress"
	DelegationCancelled     = "cancelled"
)

// Vendor status axis values.
const (
	VendorPending     = "pending"
	VendorApproved    = "approved"
	VendorNotApproved = "not_approved"
)

// Machine status axis values.
const (
	MachinePending   = "pending"
	MachineDeployed  = "deployed"
	MachineCancelled = "cancelled"
)

// Status axis names on a SharedTask.
const (
	AxisDelegation = "delegation_status"
	AxisVendor     = "vendor_status"
	AxisMachine    = "machine_status"
)

// SharedTask is a delegation record over exactly one Task. Chain fields are
// optional and independently settable; each points at the actor holding one
// stage of the delegation. The three status axes are updated independently:
// writing one never alters the stored value of another.
type SharedTask struct {
	ID                      string  `json:"id"`
	TaskID                  string  `json:"task_id"`
	SharedBy                *string `json:"shared_by,omitempty"`
	SharedManager           *string `json:"shared_manager,omitempty"`
	SharedTeamlead          *string `json:"shared_teamlead,omitempty"`
	SharedEmployee          *string `json:"shared_employee,omitempty"`
	SharedOperationTeamlead *string `json:"shared_operation_teamlead,omitempty"`
	SharedOperationEmployee *string `json:"shared_operation_employee,omitempty"`
	DelegationStatus        string  `json:"delegation_status" enum:"pending,signed,not_available,not_interested,re_schedule,completed,in_progress,cancelled"`
	VendorStatus            string  `json:"vendor_status" enum:"pending,approved,not_approved"`
	MachineStatus           string  `json:"machine_status" enum:"pending,deployed,cancelled"`
	CreatedAt               string  `json:"created_at" format:"date-time"`
	UpdatedAt               string  `json:"updated_at" format:"date-time"`
}

// ChainRef is one chain field value with its role tag. ID is nil while the
// stage has not been delegated.
type ChainRef struct {
	ID   *string
	Role string
}

// ChainRefs returns the chain fields in their documented participant order,
// paired with the role each field carries.
func (s SharedTask) ChainRefs() []ChainRef {
	return []ChainRef{
		{s.SharedBy, RoleManager},
		{s.SharedManager, RoleManager},
		{s.SharedTeamlead, RoleTeamLead},
		{s.SharedEmployee, RoleEmployee},
		{s.SharedOperationTeamlead, RoleTeamLead},
		{s.SharedOperationEmployee, RoleEmployee},
	}
}

// FeedbackEntry is a top-level feedback post on a shared task. Only the
// original author may edit or delete it; replies are open to any access
// holder and immutable once posted.
type FeedbackEntry struct {
	ID          string  `json:"id"`
	SharedID    string  `json:"shared_id"`
	AuthorRef   string  `json:"author_ref"`
	AuthorRole  string  `json:"author_role"`
	Text        string  `json:"text"`
	SubmittedAt string  `json:"submitted_at" format:"date-time"`
	EditedAt    *string `json:"edited_at,omitempty" format:"date-time"`
	Replies     []Reply `json:"replies,omitempty"`
}

type Reply struct {
	ID         string `json:"id"`
	EntryID    string `json:"entry_id"`
	AuthorRef  string `json:"author_ref"`
	AuthorRole string `json:"author_role"`
	Text       string `json:"text"`
	RepliedAt  string `json:"replied_at" format:"date-time"`
}

// ParticipantRecord is one member of a shared task's communication channel.
// IdentityKey is the normalized lowercase email; a participant set never
// holds two records with the same key.
type ParticipantRecord struct {
	IdentityKey string `json:"identity_key"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	Department  string `json:"department,omitempty"`
}

// Notification is one in-app notification record.
type Notification struct {
	ID        string `json:"id"`
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey maps a hashed key to a user.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
