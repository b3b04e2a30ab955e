package models

import "time"

// Comment is a citizen update posted on an issue.
type Comment struct {
	ID             string      `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	IssueID        string      `bson:"issueId" json:"issueId" gorm:"size:36;index;not null"`
	AuthorID       string      `bson:"authorId" json:"authorId" gorm:"size:64;index;not null"`
	Text           string      `bson:"text" json:"text" gorm:"size:1000;not null"`
	StatusSnapshot IssueStatus `bson:"statusSnapshot" json:"status" gorm:"size:32"`
	CreatedAt      time.Time   `bson:"createdAt" json:"createdAt" gorm:"index"`
	EditedAt       *time.Time  `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
}
