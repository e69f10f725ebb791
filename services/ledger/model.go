package ledger

import (
	"fmt"
	"strings"
	"time"

	"meeple-backoffice/pkg/errutil"

	"gorm.io/datatypes"
)

// Status is the closed set of reasons a balance can change.
type Status string

const (
	StatusGrant               Status = "GRANT"
	StatusUpdate              Status = "UPDATE"
	StatusDelete              Status = "DELETE"
	StatusCollectionCreated   Status = "COLLECTIONCREATED"
	StatusCollectionCancelled Status = "COLLECTIONCANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusGrant, StatusUpdate, StatusDelete, StatusCollectionCreated, StatusCollectionCancelled:
		return true
	}
	return false
}

// ParseStatuses parses a comma-separated status filter.
func ParseStatuses(raw string) ([]Status, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	statuses := make([]Status, 0, len(parts))
	for _, p := range parts {
		s := Status(strings.ToUpper(strings.TrimSpace(p)))
		if !s.Valid() {
			return nil, errutil.BadRequest(fmt.Sprintf("unknown status %q", p))
		}
		statuses = append(statuses, s)
	}

	return statuses, nil
}

type BeneficiaryKind string

const (
	KindUser     BeneficiaryKind = "user"
	KindConsumer BeneficiaryKind = "consumer"
)

// Beneficiary identifies the owner of a balance: a named user or a named
// consumer, never both. The tagged form keeps the mutual exclusion structural.
type Beneficiary struct {
	Kind BeneficiaryKind
	ID   int64
}

func ForUser(id int64) Beneficiary {
	return Beneficiary{Kind: KindUser, ID: id}
}

func ForConsumer(id int64) Beneficiary {
	return Beneficiary{Kind: KindConsumer, ID: id}
}

// BeneficiaryFrom builds a Beneficiary from the two optional identifiers a
// request may carry. Exactly one must be supplied.
func BeneficiaryFrom(userID, consumerID *int64) (Beneficiary, error) {
	switch {
	case userID != nil && consumerID != nil:
		return Beneficiary{}, errutil.BadRequest("user_id and consumer_id are mutually exclusive")
	case userID != nil:
		return ForUser(*userID), nil
	case consumerID != nil:
		return ForConsumer(*consumerID), nil
	default:
		return Beneficiary{}, errutil.BadRequest("either user_id or consumer_id is required")
	}
}

func (b Beneficiary) Validate() error {
	if b.Kind != KindUser && b.Kind != KindConsumer {
		return errutil.BadRequest("invalid beneficiary kind")
	}
	if b.ID == 0 {
		return errutil.BadRequest("beneficiary id is required")
	}
	return nil
}

// Balance is the current point total for one beneficiary. There is at most
// one row per beneficiary; a removed balance is zeroed, never deleted, so
// history rows keep a valid reference.
type Balance struct {
	ID         int64     `gorm:"column:id;primaryKey" json:"id"`
	UserID     *int64    `gorm:"column:user_id;uniqueIndex" json:"user_id,omitempty"`
	ConsumerID *int64    `gorm:"column:consumer_id;uniqueIndex" json:"consumer_id,omitempty"`
	Amount     int64     `gorm:"column:amount" json:"amount"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (b *Balance) Beneficiary() Beneficiary {
	if b.UserID != nil {
		return ForUser(*b.UserID)
	}
	if b.ConsumerID != nil {
		return ForConsumer(*b.ConsumerID)
	}
	return Beneficiary{}
}

// HistoryEntry is the immutable record of one balance change. Amount is the
// balance after the change; Delta is the signed change, so for any balance
// the sum of deltas reconciles to the current amount.
type HistoryEntry struct {
	ID           int64          `gorm:"column:id;primaryKey" json:"id"`
	BalanceID    int64          `gorm:"column:balance_id;index" json:"balance_id"`
	UserID       *int64         `gorm:"column:user_id;index" json:"user_id,omitempty"`
	ConsumerID   *int64         `gorm:"column:consumer_id;index" json:"consumer_id,omitempty"`
	ActorID      *int64         `gorm:"column:actor_id" json:"actor_id,omitempty"`
	OrderID      *int64         `gorm:"column:order_id" json:"order_id,omitempty"`
	CollectionID *int64         `gorm:"column:collection_id" json:"collection_id,omitempty"`
	TableID      *int64         `gorm:"column:table_id" json:"table_id,omitempty"`
	Status       Status         `gorm:"column:status;index" json:"status"`
	Amount       int64          `gorm:"column:amount" json:"amount"`
	Delta        int64          `gorm:"column:delta" json:"delta"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

// ContextRefs ties a purchase-linked change back to the order that caused it.
type ContextRefs struct {
	OrderID      *int64
	CollectionID *int64
	TableID      *int64
	Metadata     datatypes.JSON
}

// HistoryView is a HistoryEntry joined with display names for listings.
type HistoryView struct {
	HistoryEntry
	BeneficiaryName string `gorm:"column:beneficiary_name" json:"beneficiary_name"`
	ActorName       string `gorm:"column:actor_name" json:"actor_name"`
}
