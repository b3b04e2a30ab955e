package models

import "time"

// PointsPerReport is credited to a reporter for every issue they create.
const PointsPerReport = 10

// Profile tracks a user's engagement points for the leaderboard.
type Profile struct {
	ID        string    `bson:"_id" json:"id" gorm:"primaryKey;size:64"`
	Points    int64     `bson:"points" json:"points" gorm:"not null;default:0;index"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
