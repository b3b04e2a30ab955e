package models

import "time"

// Notification is addressed to exactly one recipient and only they may mark it read.
type Notification struct {
	ID          string    `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	RecipientID string    `bson:"recipientId" json:"recipientId" gorm:"size:64;index;not null"`
	IssueID     string    `bson:"issueId" json:"issueId" gorm:"size:36;index"`
	Title       string    `bson:"title" json:"title"`
	Message     string    `bson:"message" json:"message"`
	Read        bool      `bson:"read" json:"read" gorm:"not null;default:false"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt" gorm:"index"`
}
