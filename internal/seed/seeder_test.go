package seed

import (
	"context"
	"testing"

	"github.com/rofiliofernandes/somudai/internal/database"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeedDevCreatesConsistentData(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	opts := Options{
		Users:                   8,
		PostsPerUser:            2,
		FollowsPerUser:          3,
		LikesPerPost:            2,
		CommentsPerPost:         1,
		Conversations:           4,
		MessagesPerConversation: 3,
	}
	sum, err := NewSeeder(db, 42).SeedDev(ctx, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(sum.Users), count(t, db, &models.User{}))
	assert.Equal(t, int64(sum.Posts), count(t, db, &models.Post{}))
	assert.Equal(t, int64(sum.Follows), count(t, db, &models.Follow{}))
	assert.Equal(t, int64(sum.Likes), count(t, db, &models.Like{}))
	assert.Equal(t, int64(sum.Comments), count(t, db, &models.Comment{}))
	assert.Equal(t, int64(sum.Conversations), count(t, db, &models.Conversation{}))
	assert.Equal(t, int64(sum.Messages), count(t, db, &models.Message{}))
	assert.Equal(t, sum.Conversations*opts.MessagesPerConversation, sum.Messages)

	var selfFollows int64
	require.NoError(t, db.Model(&models.Follow{}).Where("follower_id = followee_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)

	var convs []models.Conversation
	require.NoError(t, db.Find(&convs).Error)
	for _, c := range convs {
		assert.Less(t, c.ParticipantA, c.ParticipantB)
		assert.Equal(t, int64(opts.MessagesPerConversation), c.MessageCount)
	}
}

func TestSeedTestIsIdempotent(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	seeder := NewSeeder(db, 1)

	users, err := seeder.SeedTest(ctx)
	require.NoError(t, err)
	require.Len(t, users, len(TestUsers))
	assert.True(t, users[0].IsAdmin())

	again, err := seeder.SeedTest(ctx)
	require.NoError(t, err)
	for i := range users {
		assert.Equal(t, users[i].ID, again[i].ID)
	}

	assert.Equal(t, int64(len(TestUsers)), count(t, db, &models.User{}))
	assert.Equal(t, int64(len(TestUsers)), count(t, db, &models.Post{}))
	assert.Equal(t, int64(len(TestUsers)-1), count(t, db, &models.Follow{}))

	convs := repository.NewConversationRepository(db)
	conv, err := convs.FindConversation(ctx, users[1].ID, users[0].ID)
	require.NoError(t, err)
	msgs, err := convs.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, users[0].ID, msgs[0].SenderID)
	assert.Equal(t, users[1].ID, msgs[1].SenderID)
}

func TestClean(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	seeder := NewSeeder(db, 7)

	_, err := seeder.SeedTest(ctx)
	require.NoError(t, err)
	require.NoError(t, seeder.Clean(ctx))

	assert.Zero(t, count(t, db, &models.User{}))
	assert.Zero(t, count(t, db, &models.Message{}))
	assert.Zero(t, count(t, db, &models.Conversation{}))
}
