package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicpulse-be/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore implements Store with gorm on postgres or sqlite.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens a gorm database for driver "postgres" or "sqlite".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite only supports one writer at a time.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
			if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing gorm handle.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Issue{},
		&models.Vote{},
		&models.Comment{},
		&models.Notification{},
		&models.Profile{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *SQLStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	if err := s.db.WithContext(ctx).First(&issue, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "find issue")
	}
	return &issue, nil
}

func (s *SQLStore) ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Issue{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ReporterID != "" {
		query = query.Where("reporter_id = ?", filter.ReporterID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	switch filter.Sort {
	case SortOldest:
		query = query.Order("created_at asc")
	case SortVotes:
		query = query.Order("vote_count desc").Order("created_at desc")
	default:
		query = query.Order("created_at desc")
	}

	issues := []models.Issue{}
	err := query.Offset(filter.Offset).Limit(normalizeLimit(filter.Limit, 10, 100)).Find(&issues).Error
	if err != nil {
		return nil, 0, fmt.Errorf("find issues: %w", err)
	}
	return issues, total, nil
}

func (s *SQLStore) UpdateIssueStatus(ctx context.Context, id string, from, to models.IssueStatus, resolvedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	if resolvedAt != nil {
		updates["resolved_at"] = *resolvedAt
	}
	res := s.db.WithContext(ctx).Model(&models.Issue{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update issue status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLStore) SetIssueDepartment(ctx context.Context, id, department string) error {
	return s.updateIssue(ctx, id, map[string]any{"department": department, "updated_at": time.Now().UTC()})
}

func (s *SQLStore) SetIssueVoteCount(ctx context.Context, id string, count int64) error {
	return s.updateIssue(ctx, id, map[string]any{"vote_count": count})
}

func (s *SQLStore) updateIssue(ctx context.Context, id string, columns map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Issue{}).Where("id = ?", id).UpdateColumns(columns)
	if res.Error != nil {
		return fmt.Errorf("update issue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	var rows []struct {
		Status models.IssueStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Issue{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count issues by status: %w", err)
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

func (s *SQLStore) HasVote(ctx context.Context, issueID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("issue_id = ? AND user_id = ?", issueID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return count > 0, nil
}

// InsertVote relies on the (issue_id, user_id) primary key: a concurrent
// duplicate inserts nothing and reports ErrDuplicate.
func (s *SQLStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(vote)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert vote: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLStore) DeleteVote(ctx context.Context, issueID, userID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("issue_id = ? AND user_id = ?", issueID, userID).
		Delete(&models.Vote{})
	if res.Error != nil {
		return false, fmt.Errorf("delete vote: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLStore) CountVotes(ctx context.Context, issueID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Vote{}).Where("issue_id = ?", issueID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

func (s *SQLStore) CountVotesFor(ctx context.Context, issueIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(issueIDs))
	if len(issueIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		IssueID string
		Count   int64
	}
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Select("issue_id, count(*) as count").
		Where("issue_id IN ?", issueIDs).
		Group("issue_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	for _, id := range issueIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.IssueID] = row.Count
	}
	return counts, nil
}

func (s *SQLStore) VotedIn(ctx context.Context, userID string, issueIDs []string) (map[string]bool, error) {
	voted := make(map[string]bool, len(issueIDs))
	if len(issueIDs) == 0 {
		return voted, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND issue_id IN ?", userID, issueIDs).
		Pluck("issue_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find votes: %w", err)
	}
	for _, id := range ids {
		voted[id] = true
	}
	return voted, nil
}

func (s *SQLStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *SQLStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "find comment")
	}
	return &comment, nil
}

func (s *SQLStore) UpdateCommentText(ctx context.Context, id, text string, editedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"text": text, "edited_at": editedAt})
	if res.Error != nil {
		return fmt.Errorf("update comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteComment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return fmt.Errorf("delete comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListComments(ctx context.Context, issueID string) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.WithContext(ctx).Where("issue_id = ?", issueID).Order("created_at desc").Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	return comments, nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *SQLStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "find notification")
	}
	return &n, nil
}

func (s *SQLStore) MarkNotificationRead(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).UpdateColumn("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at desc").
		Limit(normalizeLimit(limit, 20, 100)).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	return notifications, nil
}

func (s *SQLStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *SQLStore) AwardPoints(ctx context.Context, userID string, points int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Profile{}).Where("id = ?", userID).
			UpdateColumns(map[string]any{"points": gorm.Expr("points + ?", points), "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("award points: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		profile := models.Profile{ID: userID, Points: points, UpdatedAt: now}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err, "find profile")
	}
	return &p, nil
}

func (s *SQLStore) Leaderboard(ctx context.Context, limit int) ([]models.Profile, error) {
	profiles := []models.Profile{}
	err := s.db.WithContext(ctx).Order("points desc").Limit(normalizeLimit(limit, 10, 100)).Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	return profiles, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
