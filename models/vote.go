package models

import "time"

// Vote is an active upvote by User on Issue. The (issue, user) pair is unique.
type Vote struct {
	IssueID   string    `bson:"issue" json:"issueId" gorm:"primaryKey;size:36"`
	UserID    string    `bson:"user" json:"userId" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
