package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicpulse-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	issuesCollection        = "issues"
	votesCollection         = "votes"
	commentsCollection      = "comments"
	notificationsCollection = "notifications"
	profilesCollection      = "profiles"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client        *mongo.Client
	issues        *mongo.Collection
	votes         *mongo.Collection
	comments      *mongo.Collection
	notifications *mongo.Collection
	profiles      *mongo.Collection
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:        client,
		issues:        db.Collection(issuesCollection),
		votes:         db.Collection(votesCollection),
		comments:      db.Collection(commentsCollection),
		notifications: db.Collection(notificationsCollection),
		profiles:      db.Collection(profilesCollection),
	}
}

// Migrate creates the unique compound index for (issue, user) and the lookup
// indexes used by listings.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.votes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "issue", Value: 1}, {Key: "user", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create vote index: %w", err)
	}
	if _, err := s.issues.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "reporterId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create issue indexes: %w", err)
	}
	if _, err := s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "issueId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create comment index: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create notification index: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if _, err := s.issues.InsertOne(ctx, issue); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *MongoStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	if err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &issue, nil
}

func (s *MongoStore) ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ReporterID != "" {
		query["reporterId"] = filter.ReporterID
	}

	total, err := s.issues.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	var sort bson.D
	switch filter.Sort {
	case SortOldest:
		sort = bson.D{{Key: "createdAt", Value: 1}}
	case SortVotes:
		sort = bson.D{{Key: "voteCount", Value: -1}, {Key: "createdAt", Value: -1}}
	default:
		sort = bson.D{{Key: "createdAt", Value: -1}}
	}
	findOptions := options.Find().
		SetSort(sort).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(normalizeLimit(filter.Limit, 10, 100)))

	cursor, err := s.issues.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("find issues: %w", err)
	}
	defer cursor.Close(ctx)

	issues := []models.Issue{}
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, 0, fmt.Errorf("decode issues: %w", err)
	}
	return issues, total, nil
}

func (s *MongoStore) UpdateIssueStatus(ctx context.Context, id string, from, to models.IssueStatus, resolvedAt *time.Time) (bool, error) {
	set := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	if resolvedAt != nil {
		set["resolvedAt"] = *resolvedAt
	}
	res, err := s.issues.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("update issue status: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoStore) SetIssueDepartment(ctx context.Context, id, department string) error {
	return s.setIssueFields(ctx, id, bson.M{"department": department, "updatedAt": time.Now().UTC()})
}

func (s *MongoStore) SetIssueVoteCount(ctx context.Context, id string, count int64) error {
	return s.setIssueFields(ctx, id, bson.M{"voteCount": count})
}

func (s *MongoStore) setIssueFields(ctx context.Context, id string, set bson.M) error {
	res, err := s.issues.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	pipeline := []bson.M{
		{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	}
	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate issue status: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.IssueStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode issue status: %w", err)
	}
	counts := make(map[models.IssueStatus]int64, len(models.AllStatuses))
	for _, status := range models.AllStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *MongoStore) HasVote(ctx context.Context, issueID, userID string) (bool, error) {
	count, err := s.votes.CountDocuments(ctx, bson.M{"issue": issueID, "user": userID})
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return count > 0, nil
}

func (s *MongoStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	if _, err := s.votes.InsertOne(ctx, vote); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteVote(ctx context.Context, issueID, userID string) (bool, error) {
	res, err := s.votes.DeleteOne(ctx, bson.M{"issue": issueID, "user": userID})
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) CountVotes(ctx context.Context, issueID string) (int64, error) {
	count, err := s.votes.CountDocuments(ctx, bson.M{"issue": issueID})
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

func (s *MongoStore) CountVotesFor(ctx context.Context, issueIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(issueIDs))
	if len(issueIDs) == 0 {
		return counts, nil
	}
	cursor, err := s.votes.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"issue": bson.M{"$in": issueIDs}}},
		{"$group": bson.M{"_id": "$issue", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate votes: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		IssueID string `bson:"_id"`
		Count   int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode vote counts: %w", err)
	}
	for _, id := range issueIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.IssueID] = row.Count
	}
	return counts, nil
}

func (s *MongoStore) VotedIn(ctx context.Context, userID string, issueIDs []string) (map[string]bool, error) {
	voted := make(map[string]bool, len(issueIDs))
	if len(issueIDs) == 0 {
		return voted, nil
	}
	ids, err := s.votes.Distinct(ctx, "issue", bson.M{"user": userID, "issue": bson.M{"$in": issueIDs}})
	if err != nil {
		return nil, fmt.Errorf("find votes: %w", err)
	}
	for _, id := range ids {
		if issueID, ok := id.(string); ok {
			voted[issueID] = true
		}
	}
	return voted, nil
}

func (s *MongoStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if _, err := s.comments.InsertOne(ctx, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *MongoStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &comment, nil
}

func (s *MongoStore) UpdateCommentText(ctx context.Context, id, text string, editedAt time.Time) error {
	res, err := s.comments.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"text": text, "editedAt": editedAt}})
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteComment(ctx context.Context, id string) error {
	res, err := s.comments.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListComments(ctx context.Context, issueID string) ([]models.Comment, error) {
	cursor, err := s.comments.Find(ctx, bson.M{"issueId": issueID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

func (s *MongoStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.notifications.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	cursor, err := s.notifications.Find(ctx, bson.M{"recipientId": recipientID},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(int64(normalizeLimit(limit, 20, 100))))
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return notifications, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.notifications.CountDocuments(ctx, bson.M{"recipientId": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *MongoStore) AwardPoints(ctx context.Context, userID string, points int64) error {
	_, err := s.profiles.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"points": points},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

func (s *MongoStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) Leaderboard(ctx context.Context, limit int) ([]models.Profile, error) {
	cursor, err := s.profiles.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "points", Value: -1}}).
			SetLimit(int64(normalizeLimit(limit, 10, 100))))
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	defer cursor.Close(ctx)

	profiles := []models.Profile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return profiles, nil
}
