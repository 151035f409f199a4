package models

import "time"

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestDeclined  RequestStatus = "declined"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status is final. A request never leaves or
// re-enters a terminal state.
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

// JoinRequest is a rider's request to join a party. Terminal requests are
// never deleted; they stay behind as an auditable record of the outcome.
type JoinRequest struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	PartyID     string        `gorm:"size:36;not null;index" json:"party_id"`
	LeaderID    string        `gorm:"size:64;not null" json:"leader_id"` // party leader at request time
	RequesterID string        `gorm:"size:64;not null;index" json:"requester_id"`
	Status      RequestStatus `gorm:"size:16;index;default:pending" json:"status"`
	Revision    int64         `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
}

func (JoinRequest) TableName() string { return "join_requests" }
