package social

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/repository"
	"github.com/rofiliofernandes/somudai/internal/telemetry"
	"go.uber.org/zap"
)

// MaxCommentLength is the longest comment accepted, in runes
const MaxCommentLength = 2000

// Notifier delivers like, comment and follow events to online users
type Notifier interface {
	NotifyLike(ownerID string, actor *models.User, postID string) int
	NotifyComment(ownerID string, actor *models.User, comment *models.Comment) int
	NotifyFollow(followeeID string, actor *models.User) int
}

// PresenceCounter reports how many distinct users are connected
type PresenceCounter interface {
	OnlineUserCount() int
}

// Service handles likes, comments and follows and emits the matching
// notifications once the write has committed
type Service struct {
	repo     repository.SocialRepository
	notifier Notifier
	presence PresenceCounter
	metrics  *metrics.Metrics
	events   *telemetry.BusinessEvents
}

// NewService creates a new social service
func NewService(repo repository.SocialRepository, notifier Notifier, presence PresenceCounter, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		presence: presence,
		metrics:  m,
		events:   telemetry.NewBusinessEvents(),
	}
}

// LikePost likes postID as userID. Liking twice is a no-op and only the
// first like notifies the owner.
func (s *Service) LikePost(ctx context.Context, userID, postID string) (_ *models.Post, err error) {
	ctx, span := s.events.TraceSocialInteraction(ctx, "like", userID, postID)
	defer func() { telemetry.EndSpan(span, err) }()

	actor, post, err := s.loadActorAndPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.AddLike(ctx, post.ID, actor.ID)
	if err != nil {
		return nil, apperrors.Persistence("like post", err)
	}
	if created {
		s.metrics.LikesTotal.WithLabelValues("like").Inc()
		if post.UserID != actor.ID {
			telemetry.RecordDispatch(span, s.notifier.NotifyLike(post.UserID, actor, post.ID))
		}
	}
	return s.reloadPost(ctx, post)
}

// UnlikePost removes userID's like from postID, if any
func (s *Service) UnlikePost(ctx context.Context, userID, postID string) (*models.Post, error) {
	actor, post, err := s.loadActorAndPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	removed, err := s.repo.RemoveLike(ctx, post.ID, actor.ID)
	if err != nil {
		return nil, apperrors.Persistence("unlike post", err)
	}
	if removed {
		s.metrics.LikesTotal.WithLabelValues("unlike").Inc()
	}
	return s.reloadPost(ctx, post)
}

// AddComment stores text as a comment by userID on postID
func (s *Service) AddComment(ctx context.Context, userID, postID, text string) (_ *models.Comment, err error) {
	ctx, span := s.events.TraceSocialInteraction(ctx, "comment", userID, postID)
	defer func() { telemetry.EndSpan(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ValidationError("text", "comment cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperrors.ValidationError("text", "comment is too long")
	}

	actor, post, err := s.loadActorAndPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: post.ID, UserID: actor.ID, Text: text}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, apperrors.Persistence("create comment", err)
	}
	comment.User = *actor
	s.metrics.CommentsTotal.Inc()

	if post.UserID != actor.ID {
		telemetry.RecordDispatch(span, s.notifier.NotifyComment(post.UserID, actor, comment))
	}
	return comment, nil
}

// FollowOrUnfollow toggles the follow edge from userID to targetID and
// reports whether userID now follows targetID
func (s *Service) FollowOrUnfollow(ctx context.Context, userID, targetID string) (_ bool, err error) {
	ctx, span := s.events.TraceSocialInteraction(ctx, "follow", userID, targetID)
	defer func() { telemetry.EndSpan(span, err) }()

	if userID == targetID {
		return false, apperrors.ValidationError("user_id", "you can't follow/unfollow yourself")
	}

	actor, err := s.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if _, err := s.loadUser(ctx, targetID); err != nil {
		return false, err
	}

	following, err := s.repo.ToggleFollow(ctx, actor.ID, targetID)
	if err != nil {
		return false, apperrors.Persistence("update follow", err)
	}

	if following {
		s.metrics.FollowsTotal.WithLabelValues("follow").Inc()
		telemetry.RecordDispatch(span, s.notifier.NotifyFollow(targetID, actor))
	} else {
		s.metrics.FollowsTotal.WithLabelValues("unfollow").Inc()
	}

	logger.Log.Debug("Follow toggled",
		logger.WithUserID(actor.ID),
		zap.String("target_id", targetID),
		zap.Bool("following", following))
	return following, nil
}

// Overview is the admin analytics snapshot
type Overview struct {
	UserCount   int64          `json:"userCount"`
	PostCount   int64          `json:"postCount"`
	RecentUsers []*models.User `json:"recentUsers"`
	OnlineUsers int            `json:"onlineUsers"`
}

// Overview collects totals, the newest accounts and the live online count
func (s *Service) Overview(ctx context.Context, recent int) (*Overview, error) {
	userCount, err := s.repo.GetTotalUserCount(ctx)
	if err != nil {
		return nil, apperrors.Persistence("count users", err)
	}
	postCount, err := s.repo.GetTotalPostCount(ctx)
	if err != nil {
		return nil, apperrors.Persistence("count posts", err)
	}
	recentUsers, err := s.repo.GetRecentUsers(ctx, recent)
	if err != nil {
		return nil, apperrors.Persistence("load recent users", err)
	}

	return &Overview{
		UserCount:   userCount,
		PostCount:   postCount,
		RecentUsers: recentUsers,
		OnlineUsers: s.presence.OnlineUserCount(),
	}, nil
}

// GetUser loads a user, mapping absence to NOT_FOUND
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.loadUser(ctx, userID)
}

// GetUsers loads users by id, skipping unknown ids
func (s *Service) GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error) {
	users, err := s.repo.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, apperrors.Persistence("load users", err)
	}
	return users, nil
}

func (s *Service) loadActorAndPost(ctx context.Context, userID, postID string) (*models.User, *models.Post, error) {
	actor, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	post, err := s.repo.GetPost(ctx, postID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, nil, apperrors.NotFound("Post")
	}
	if err != nil {
		return nil, nil, apperrors.Persistence("load post", err)
	}
	return actor, post, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperrors.NotFound("User")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperrors.NotFound("User")
	}
	if err != nil {
		return nil, apperrors.Persistence("load user", err)
	}
	return user, nil
}

func (s *Service) reloadPost(ctx context.Context, post *models.Post) (*models.Post, error) {
	updated, err := s.repo.GetPost(ctx, post.ID)
	if err != nil {
		return nil, apperrors.Persistence("load post", err)
	}
	return updated, nil
}
