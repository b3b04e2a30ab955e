package models

import (
	"time"
)

// IssueCategory enum
type IssueCategory string

const (
	Roads    IssueCategory = "roads"
	Lighting IssueCategory = "lighting"
	Waste    IssueCategory = "waste"
	Water    IssueCategory = "water"
	Parks    IssueCategory = "parks"
	Safety   IssueCategory = "safety"
	Other    IssueCategory = "other"
)

var validCategories = map[IssueCategory]bool{
	Roads: true, Lighting: true, Waste: true, Water: true,
	Parks: true, Safety: true, Other: true,
}

// Valid reports whether c is one of the known categories.
func (c IssueCategory) Valid() bool {
	return validCategories[c]
}

// IssueStatus enum
type IssueStatus string

const (
	Pending    IssueStatus = "pending"
	InProgress IssueStatus = "in_progress"
	Resolved   IssueStatus = "resolved"
	Rejected   IssueStatus = "rejected"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []IssueStatus{Pending, InProgress, Resolved, Rejected}

var transitions = map[IssueStatus][]IssueStatus{
	Pending:    {InProgress, Rejected},
	InProgress: {Resolved, Rejected},
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case Pending, InProgress, Resolved, Rejected:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s IssueStatus) Terminal() bool {
	return s == Resolved || s == Rejected
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s IssueStatus) CanTransitionTo(next IssueStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DefaultDepartment is used whenever classification is missing or fails.
const DefaultDepartment = "Public Works"

// Issue represents a civic issue reported by a user
type Issue struct {
	ID          string        `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	Title       string        `bson:"title" json:"title" gorm:"size:200;not null"`
	Description string        `bson:"description" json:"description" gorm:"size:1000;not null"`
	Category    IssueCategory `bson:"category" json:"category" gorm:"size:32;index;not null"`
	Status      IssueStatus   `bson:"status" json:"status" gorm:"size:32;index;not null"`
	Address     *string       `bson:"address,omitempty" json:"address,omitempty"`
	Latitude    *float64      `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude   *float64      `bson:"longitude,omitempty" json:"longitude,omitempty"`
	PhotoURL    *string       `bson:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	ReporterID  string        `bson:"reporterId" json:"reporterId" gorm:"size:64;index;not null"`
	Department  string        `bson:"department" json:"department" gorm:"size:100"`
	VoteCount   int64         `bson:"voteCount" json:"votes" gorm:"not null;default:0"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
	ResolvedAt  *time.Time    `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}
