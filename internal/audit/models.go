package audit

import "time"

// Event is an append-only audit record of an admin action.
//
// Events are never updated or deleted. Actor and IP capture are best-effort;
// callers do not block money movement on audit failures.
type Event struct {
	ID     string `json:"id"`
	Action Action `json:"action"`

	// ActorID is the authenticated admin; ActorRole is their role claim.
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	// UserID is the account whose balance or record was affected.
	UserID string `json:"user_id,omitempty"`

	Message string `json:"message,omitempty"`
	// Metadata is a JSON object with action details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Action string

const (
	ActionRefundCall    Action = "refund_call"
	ActionRefundPayment Action = "refund_payment"
	ActionAddCredits    Action = "add_credits"
	ActionDeleteUser    Action = "delete_user"
	ActionToggleRate    Action = "toggle_rate"
)

type TargetType string

const (
	TargetCall    TargetType = "call"
	TargetPayment TargetType = "payment"
	TargetUser    TargetType = "user"
	TargetRate    TargetType = "rate"
)

// Actor identifies who performed an action.
type Actor struct {
	ID   string
	Role string
	IP   string
}
