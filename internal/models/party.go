package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Party size limits. A party always includes its leader, so the floor is 2
// (leader plus at least one seat worth sharing a taxi for).
const (
	MinPartySize = 2
	MaxPartySize = 7
	MaxPartyTags = 3
)

type PartyStatus string

const (
	PartyOpen    PartyStatus = "open"
	PartyClosed  PartyStatus = "closed"
	PartyArrived PartyStatus = "arrived"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// The lifecycle is strictly monotonic: open -> closed -> arrived.
func (s PartyStatus) CanTransitionTo(next PartyStatus) bool {
	switch s {
	case PartyOpen:
		return next == PartyClosed
	case PartyClosed:
		return next == PartyArrived
	default:
		return false
	}
}

// Place is a named point on the campus map.
type Place struct {
	Name string  `json:"name" gorm:"size:200"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// StringList stores a []string as a JSON column so the member set lives
// inside the party row. Writes to it only ever happen through a conditional
// update on the owning row, never in place.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Party is a taxi-sharing group. The row is the unit of atomicity: every
// mutation re-reads it and writes back conditionally on Revision.
type Party struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	LeaderID      string      `gorm:"size:64;not null;index" json:"leader_id"`
	Departure     Place       `gorm:"embedded;embeddedPrefix:departure_" json:"departure"`
	Destination   Place       `gorm:"embedded;embeddedPrefix:destination_" json:"destination"`
	DepartureTime time.Time   `gorm:"index" json:"departure_time"`
	MaxMembers    int         `gorm:"not null" json:"max_members"`
	Members       StringList  `gorm:"type:text;not null" json:"members"` // insertion order preserved
	Tags          StringList  `gorm:"type:text" json:"tags"`
	Detail        string      `gorm:"type:text" json:"detail"`
	Status        PartyStatus `gorm:"size:16;index;default:open" json:"status"`
	Revision      int64       `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (Party) TableName() string { return "parties" }

// HasMember reports whether uid is currently a member.
func (p *Party) HasMember(uid string) bool {
	return p.Members.Contains(uid)
}

// IsFull reports whether the party has no seat left.
func (p *Party) IsFull() bool {
	return len(p.Members) >= p.MaxMembers
}

// AddMember appends uid, preserving insertion order. It is the caller's job
// to have checked capacity and status against a fresh read first.
func (p *Party) AddMember(uid string) {
	if p.HasMember(uid) {
		return
	}
	p.Members = append(p.Members, uid)
}

// RemoveMember drops uid from the member list. No-op if absent.
func (p *Party) RemoveMember(uid string) {
	out := p.Members[:0]
	for _, m := range p.Members {
		if m != uid {
			out = append(out, m)
		}
	}
	p.Members = out
}
