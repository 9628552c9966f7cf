package repository

import (
	"context"
	"errors"

	"github.com/rofiliofernandes/somudai/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SocialRepository handles users, posts and the like/comment/follow edges
type SocialRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error)
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID string) (*models.Post, error)

	// AddLike returns false when the like already existed.
	AddLike(ctx context.Context, postID, userID string) (bool, error)
	// RemoveLike returns false when there was nothing to remove.
	RemoveLike(ctx context.Context, postID, userID string) (bool, error)
	CreateComment(ctx context.Context, comment *models.Comment) error

	// ToggleFollow follows when not following and unfollows otherwise; it
	// returns true when the edge now exists.
	ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)

	GetTotalUserCount(ctx context.Context) (int64, error)
	GetTotalPostCount(ctx context.Context) (int64, error)
	GetRecentUsers(ctx context.Context, limit int) ([]*models.User, error)
}

type socialRepository struct {
	db *gorm.DB
}

// NewSocialRepository creates a new social repository
func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

// CreateUser creates a new user
func (r *socialRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUser gets a user by ID
func (r *socialRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsers gets multiple users by IDs
func (r *socialRepository) GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&users).Error
	return users, err
}

// CreatePost creates a post and bumps the author's post count
func (r *socialRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post == nil || post.UserID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", post.UserID).
			UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error
	})
}

// GetPost gets a post by ID
func (r *socialRepository) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// AddLike records a like and keeps posts.like_count in step
func (r *socialRepository) AddLike(ctx context.Context, postID, userID string) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Like{PostID: postID, UserID: userID})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		created = true
		return tx.Model(&models.Post{}).
			Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	return created, err
}

// RemoveLike deletes a like and keeps posts.like_count in step
func (r *socialRepository) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		removed = true
		return tx.Model(&models.Post{}).
			Where("id = ? AND like_count > 0", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	return removed, err
}

// CreateComment stores a comment and bumps the post's comment count
func (r *socialRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment == nil || comment.PostID == "" || comment.UserID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).
			Where("id = ?", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	})
}

// ToggleFollow flips the follow edge and both users' counters
func (r *socialRepository) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	following := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}

		delta := -1
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.Follow{FollowerID: followerID, FolloweeID: followeeID}).Error; err != nil {
				return err
			}
			delta = 1
			following = true
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", followerID).
			UpdateColumn("following_count", gorm.Expr("following_count + ?", delta)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", followeeID).
			UpdateColumn("follower_count", gorm.Expr("follower_count + ?", delta)).Error
	})
	return following, err
}

// IsFollowing checks if follower follows followee
func (r *socialRepository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error
	return count > 0, err
}

// GetTotalUserCount gets total user count
func (r *socialRepository) GetTotalUserCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// GetTotalPostCount gets total post count
func (r *socialRepository) GetTotalPostCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&count).Error
	return count, err
}

// GetRecentUsers returns the newest accounts first
func (r *socialRepository) GetRecentUsers(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 5
	}
	users := make([]*models.User, 0, limit)
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
