package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewMessage       NotificationType = "new_message"
	NotificationNewProposal      NotificationType = "new_proposal"
	NotificationProposalAccepted NotificationType = "proposal_accepted"
	NotificationProposalRejected NotificationType = "proposal_rejected"
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationMilestoneUpdated NotificationType = "milestone_updated"
	NotificationReviewReceived   NotificationType = "review_received"
	NotificationSystem           NotificationType = "system"
)

// NotificationTypes lists every accepted type
var NotificationTypes = []NotificationType{
	NotificationNewMessage,
	NotificationNewProposal,
	NotificationProposalAccepted,
	NotificationProposalRejected,
	NotificationPaymentReceived,
	NotificationMilestoneUpdated,
	NotificationReviewReceived,
	NotificationSystem,
}

func (t NotificationType) Valid() bool {
	for _, v := range NotificationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Notification is a durable message addressed to one user
type Notification struct {
	ID          uuid.UUID            `json:"id"`
	RecipientID uuid.UUID            `json:"recipient"`
	SenderID    *uuid.UUID           `json:"sender,omitempty"`
	Type        NotificationType     `json:"type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Read        bool                 `json:"read"`
	Archived    bool                 `json:"archived"`
	Metadata    NotificationMetadata `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	ReadAt      *time.Time           `json:"read_at,omitempty"`
}

// NotificationMetadata is the per-type payload attached to a notification.
// Each notification type has exactly one metadata shape.
type NotificationMetadata interface {
	NotificationType() NotificationType
}

type MessageMetadata struct {
	ChatID    uuid.UUID `json:"chat_id"`
	MessageID uuid.UUID `json:"message_id"`
	Preview   string    `json:"preview"`
}

func (MessageMetadata) NotificationType() NotificationType { return NotificationNewMessage }

type ProposalMetadata struct {
	Kind       NotificationType `json:"-"`
	JobID      uuid.UUID        `json:"job_id"`
	ProposalID uuid.UUID        `json:"proposal_id"`
	JobTitle   string           `json:"job_title,omitempty"`
}

func (m ProposalMetadata) NotificationType() NotificationType { return m.Kind }

type PaymentMetadata struct {
	JobID       uuid.UUID  `json:"job_id"`
	MilestoneID *uuid.UUID `json:"milestone_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
}

func (PaymentMetadata) NotificationType() NotificationType { return NotificationPaymentReceived }

type MilestoneMetadata struct {
	JobID       uuid.UUID `json:"job_id"`
	MilestoneID uuid.UUID `json:"milestone_id"`
	Status      string    `json:"status"`
}

func (MilestoneMetadata) NotificationType() NotificationType { return NotificationMilestoneUpdated }

type ReviewMetadata struct {
	JobID  uuid.UUID `json:"job_id"`
	Rating int       `json:"rating"`
}

func (ReviewMetadata) NotificationType() NotificationType { return NotificationReviewReceived }

type SystemMetadata struct {
	Link string `json:"link,omitempty"`
}

func (SystemMetadata) NotificationType() NotificationType { return NotificationSystem }

// CheckMetadata verifies the metadata shape matches the notification type.
// A nil metadata is accepted for every type.
func CheckMetadata(t NotificationType, m NotificationMetadata) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidNotificationType, t)
	}
	if m == nil {
		return nil
	}
	if m.NotificationType() != t {
		return fmt.Errorf("%w: %s metadata on %s notification", ErrMetadataMismatch, m.NotificationType(), t)
	}
	return nil
}

// DecodeMetadata parses raw JSON metadata into the shape owned by t
func DecodeMetadata(t NotificationType, raw []byte) (NotificationMetadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var m NotificationMetadata
	switch t {
	case NotificationNewMessage:
		var v MessageMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		m = v
	case NotificationNewProposal, NotificationProposalAccepted, NotificationProposalRejected:
		var v ProposalMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		v.Kind = t
		m = v
	case NotificationPaymentReceived:
		var v PaymentMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		m = v
	case NotificationMilestoneUpdated:
		var v MilestoneMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		m = v
	case NotificationReviewReceived:
		var v ReviewMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		m = v
	case NotificationSystem:
		var v SystemMetadata
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidNotificationType, t)
	}
	return m, nil
}

// UnmarshalJSON decodes metadata according to the notification type
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m, err := DecodeMetadata(n.Type, aux.Metadata)
	if err != nil {
		return err
	}
	n.Metadata = m
	return nil
}

// NotificationQuery filters a recipient's notifications
type NotificationQuery struct {
	UnreadOnly      bool
	IncludeArchived bool
	Type            NotificationType
	Limit           int
	Before          *time.Time
}
