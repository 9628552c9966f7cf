// Package seed fills a database with fake users, posts, follows and
// conversations for local development and end-to-end tests.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/messaging"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options sizes a development seed
type Options struct {
	Users                   int
	PostsPerUser            int
	FollowsPerUser          int
	LikesPerPost            int
	CommentsPerPost         int
	Conversations           int
	MessagesPerConversation int
}

// DefaultOptions is a small but lively dataset
func DefaultOptions() Options {
	return Options{
		Users:                   50,
		PostsPerUser:            3,
		FollowsPerUser:          8,
		LikesPerPost:            5,
		CommentsPerPost:         2,
		Conversations:           40,
		MessagesPerConversation: 6,
	}
}

// Summary counts what a seed run created
type Summary struct {
	Users         int
	Posts         int
	Follows       int
	Likes         int
	Comments      int
	Conversations int
	Messages      int
}

// Seeder handles database seeding operations
type Seeder struct {
	db        *gorm.DB
	social    repository.SocialRepository
	convs     repository.ConversationRepository
	messaging *messaging.Service
	faker     *gofakeit.Faker
}

type discardNotifier struct{}

func (discardNotifier) NotifyNewMessage(*models.Message) int { return 0 }

// NewSeeder creates a seeder. A zero seed picks a random one.
func NewSeeder(db *gorm.DB, seed uint64) *Seeder {
	convs := repository.NewConversationRepository(db)
	m := metrics.NewForRegistry(prometheus.NewRegistry())
	return &Seeder{
		db:        db,
		social:    repository.NewSocialRepository(db),
		convs:     convs,
		messaging: messaging.NewService(convs, discardNotifier{}, m, nil),
		faker:     gofakeit.New(seed),
	}
}

// SeedDev creates a random dataset sized by opts
func (s *Seeder) SeedDev(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{}

	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(ctx, opts.Users)
	if err != nil {
		return sum, fmt.Errorf("failed to seed users: %w", err)
	}
	sum.Users = len(users)

	logger.Log.Info("Creating posts...")
	posts, err := s.seedPosts(ctx, users, opts.PostsPerUser)
	if err != nil {
		return sum, fmt.Errorf("failed to seed posts: %w", err)
	}
	sum.Posts = len(posts)

	logger.Log.Info("Creating follows...")
	if sum.Follows, err = s.seedFollows(ctx, users, opts.FollowsPerUser); err != nil {
		return sum, fmt.Errorf("failed to seed follows: %w", err)
	}

	logger.Log.Info("Creating likes and comments...")
	if sum.Likes, sum.Comments, err = s.seedEngagement(ctx, users, posts, opts.LikesPerPost, opts.CommentsPerPost); err != nil {
		return sum, fmt.Errorf("failed to seed engagement: %w", err)
	}

	logger.Log.Info("Creating conversations...")
	if sum.Conversations, sum.Messages, err = s.seedConversations(ctx, users, opts.Conversations, opts.MessagesPerConversation); err != nil {
		return sum, fmt.Errorf("failed to seed conversations: %w", err)
	}

	logger.Log.Info("Seed complete",
		zap.Int("users", sum.Users),
		zap.Int("posts", sum.Posts),
		zap.Int("follows", sum.Follows),
		zap.Int("likes", sum.Likes),
		zap.Int("comments", sum.Comments),
		zap.Int("conversations", sum.Conversations),
		zap.Int("messages", sum.Messages))
	return sum, nil
}

// TestUser is one of the fixed accounts created by SeedTest
type TestUser struct {
	Username    string
	Email       string
	DisplayName string
	Role        string
}

// TestUsers are stable fixtures for end-to-end tests
var TestUsers = []TestUser{
	{"alice", "alice@example.com", "Alice Smith", models.RoleAdmin},
	{"bob", "bob@example.com", "Bob Johnson", models.RoleUser},
	{"charlie", "charlie@example.com", "Charlie Brown", models.RoleUser},
	{"diana", "diana@example.com", "Diana Prince", models.RoleUser},
	{"eve", "eve@example.com", "Eve Wilson", models.RoleUser},
}

// SeedTest creates the fixed test users, a post each, follows from alice to
// everyone, and one alice/bob conversation. Running it twice is a no-op.
func (s *Seeder) SeedTest(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, len(TestUsers))
	for _, fixture := range TestUsers {
		var user models.User
		err := s.db.WithContext(ctx).Where("username = ?", fixture.Username).First(&user).Error
		switch {
		case err == nil:
			users = append(users, &user)
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}

		user = models.User{
			Username:    fixture.Username,
			Email:       fixture.Email,
			DisplayName: fixture.DisplayName,
			Role:        fixture.Role,
		}
		if err := s.social.CreateUser(ctx, &user); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", fixture.Username, err)
		}
		post := &models.Post{UserID: user.ID, Caption: fmt.Sprintf("Hello from %s", fixture.DisplayName)}
		if err := s.social.CreatePost(ctx, post); err != nil {
			return nil, fmt.Errorf("failed to create post for %s: %w", fixture.Username, err)
		}
		users = append(users, &user)
	}

	alice, bob := users[0], users[1]
	for _, other := range users[1:] {
		following, err := s.social.IsFollowing(ctx, alice.ID, other.ID)
		if err != nil {
			return nil, err
		}
		if !following {
			if _, err := s.social.ToggleFollow(ctx, alice.ID, other.ID); err != nil {
				return nil, err
			}
		}
	}

	_, err := s.convs.FindConversation(ctx, alice.ID, bob.ID)
	switch {
	case errors.Is(err, apperrors.ErrConversationNotFound):
		if _, err := s.messaging.SendMessage(ctx, alice.ID, bob.ID, "hey bob, welcome aboard"); err != nil {
			return nil, err
		}
		if _, err := s.messaging.SendMessage(ctx, bob.ID, alice.ID, "thanks alice!"); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	logger.Log.Info("Test users ready", zap.Int("count", len(users)))
	return users, nil
}

// Clean removes every row from the tables the seeder writes to
func (s *Seeder) Clean(ctx context.Context) error {
	// children before parents
	tables := []string{"messages", "conversations", "comments", "likes", "follows", "posts", "users"}
	for _, table := range tables {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		// collisions on the unique username index are skipped
		handle := fmt.Sprintf("%s%d", s.faker.Username(), s.faker.IntRange(1000, 9999))
		user := &models.User{
			Username:       handle,
			Email:          handle + "@example.com",
			DisplayName:    s.faker.Name(),
			Bio:            s.faker.HipsterSentence(),
			ProfilePicture: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", handle),
		}
		if err := s.social.CreateUser(ctx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	logger.Log.Info("Created users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []*models.User, perUser int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(users)*perUser)
	for _, user := range users {
		for i := 0; i < perUser; i++ {
			post := &models.Post{
				UserID:  user.ID,
				Caption: s.faker.HipsterSentence(),
			}
			if s.faker.Bool() {
				post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/600/400", s.faker.Word())
			}
			if err := s.social.CreatePost(ctx, post); err != nil {
				return nil, err
			}
			posts = append(posts, post)
		}
	}
	return posts, nil
}

func (s *Seeder) seedFollows(ctx context.Context, users []*models.User, perUser int) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}
	created := 0
	for _, follower := range users {
		for i := 0; i < perUser; i++ {
			followee := s.pick(users)
			if followee.ID == follower.ID {
				continue
			}
			following, err := s.social.IsFollowing(ctx, follower.ID, followee.ID)
			if err != nil {
				return created, err
			}
			if following {
				continue
			}
			if _, err := s.social.ToggleFollow(ctx, follower.ID, followee.ID); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedEngagement(ctx context.Context, users []*models.User, posts []*models.Post, likesPerPost, commentsPerPost int) (int, int, error) {
	if len(users) == 0 {
		return 0, 0, nil
	}
	likes, comments := 0, 0
	for _, post := range posts {
		for i := 0; i < likesPerPost; i++ {
			added, err := s.social.AddLike(ctx, post.ID, s.pick(users).ID)
			if err != nil {
				return likes, comments, err
			}
			if added {
				likes++
			}
		}
		for i := 0; i < commentsPerPost; i++ {
			comment := &models.Comment{
				PostID: post.ID,
				UserID: s.pick(users).ID,
				Text:   s.faker.HipsterSentence(),
			}
			if err := s.social.CreateComment(ctx, comment); err != nil {
				return likes, comments, err
			}
			comments++
		}
	}
	return likes, comments, nil
}

// seedConversations goes through the messaging service so conversations are
// created by the same find-or-create path the API uses
func (s *Seeder) seedConversations(ctx context.Context, users []*models.User, count, perConversation int) (int, int, error) {
	if len(users) < 2 || perConversation <= 0 {
		return 0, 0, nil
	}
	pairs := make(map[[2]string]struct{}, count)
	messages := 0
	for attempts := 0; len(pairs) < count && attempts < count*4; attempts++ {
		a, b := s.pick(users), s.pick(users)
		if a.ID == b.ID {
			continue
		}
		low, high := models.PairKey(a.ID, b.ID)
		key := [2]string{low, high}
		if _, seen := pairs[key]; seen {
			continue
		}
		pairs[key] = struct{}{}

		for i := 0; i < perConversation; i++ {
			sender, receiver := a, b
			if i%2 == 1 {
				sender, receiver = b, a
			}
			if _, err := s.messaging.SendMessage(ctx, sender.ID, receiver.ID, s.faker.HipsterSentence()); err != nil {
				return len(pairs), messages, err
			}
			messages++
		}
	}
	return len(pairs), messages, nil
}

func (s *Seeder) pick(users []*models.User) *models.User {
	return users[s.faker.IntRange(0, len(users)-1)]
}

