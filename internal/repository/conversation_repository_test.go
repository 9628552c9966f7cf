package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rofiliofernandes/somudai/internal/database"
	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type ConversationRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo ConversationRepository
	ctx  context.Context
}

func (s *ConversationRepositoryTestSuite) SetupTest() {
	db, err := database.OpenSQLite(":memory:")
	s.Require().NoError(err)
	s.db = db
	s.repo = NewConversationRepository(db)
	s.ctx = context.Background()
}

func (s *ConversationRepositoryTestSuite) TearDownTest() {
	_ = database.Close(s.db)
}

func TestConversationRepositorySuite(t *testing.T) {
	suite.Run(t, new(ConversationRepositoryTestSuite))
}

func (s *ConversationRepositoryTestSuite) TestFindMissing() {
	_, err := s.repo.FindConversation(s.ctx, "u1", "u2")
	s.ErrorIs(err, apperrors.ErrConversationNotFound)
}

func (s *ConversationRepositoryTestSuite) TestFindIsOrderIndependent() {
	created, err := s.repo.CreateConversation(s.ctx, "u2", "u1")
	s.Require().NoError(err)
	s.Equal("u1", created.ParticipantA)
	s.Equal("u2", created.ParticipantB)

	found, err := s.repo.FindConversation(s.ctx, "u1", "u2")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	found, err = s.repo.FindConversation(s.ctx, "u2", "u1")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
}

func (s *ConversationRepositoryTestSuite) TestCreateDuplicatePair() {
	_, err := s.repo.CreateConversation(s.ctx, "u1", "u2")
	s.Require().NoError(err)

	_, err = s.repo.CreateConversation(s.ctx, "u2", "u1")
	s.ErrorIs(err, apperrors.ErrDuplicateConversation)
}

func (s *ConversationRepositoryTestSuite) TestCreateRejectsEmptyParticipant() {
	_, err := s.repo.CreateConversation(s.ctx, "", "u2")
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *ConversationRepositoryTestSuite) TestConcurrentCreateLeavesOneConversation() {
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, duplicates := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			_, err := s.repo.CreateConversation(s.ctx, a, b)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(s.T(), err, apperrors.ErrDuplicateConversation) {
				duplicates++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, created)
	s.Equal(workers-1, duplicates)

	var count int64
	s.Require().NoError(s.db.Model(&models.Conversation{}).Count(&count).Error)
	s.Equal(int64(1), count)
}

func (s *ConversationRepositoryTestSuite) TestAppendAndListInOrder() {
	conv, err := s.repo.CreateConversation(s.ctx, "u1", "u2")
	s.Require().NoError(err)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.repo.AppendMessage(s.ctx, conv.ID, "u1", "u2", "hello", base)
	s.Require().NoError(err)
	_, err = s.repo.AppendMessage(s.ctx, conv.ID, "u2", "u1", "world", base.Add(time.Second))
	s.Require().NoError(err)

	msgs, err := s.repo.ListMessages(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("hello", msgs[0].Body)
	s.Equal(int64(1), msgs[0].Seq)
	s.Equal("world", msgs[1].Body)
	s.Equal(int64(2), msgs[1].Seq)

	reloaded, err := s.repo.FindConversation(s.ctx, "u1", "u2")
	s.Require().NoError(err)
	s.Equal(int64(2), reloaded.MessageCount)
	s.Require().NotNil(reloaded.LastMessageAt)
	s.True(reloaded.LastMessageAt.Equal(base.Add(time.Second)))
}

func (s *ConversationRepositoryTestSuite) TestAppendClampsClockSkew() {
	conv, err := s.repo.CreateConversation(s.ctx, "u1", "u2")
	s.Require().NoError(err)

	later := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	first, err := s.repo.AppendMessage(s.ctx, conv.ID, "u1", "u2", "first", later)
	s.Require().NoError(err)

	second, err := s.repo.AppendMessage(s.ctx, conv.ID, "u1", "u2", "second", later.Add(-5*time.Second))
	s.Require().NoError(err)

	s.False(second.CreatedAt.Before(first.CreatedAt))
	s.Greater(second.Seq, first.Seq)
}

func (s *ConversationRepositoryTestSuite) TestAppendUnknownConversation() {
	_, err := s.repo.AppendMessage(s.ctx, "missing", "u1", "u2", "hi", time.Now())
	s.ErrorIs(err, apperrors.ErrConversationNotFound)
}

func (s *ConversationRepositoryTestSuite) TestListMessagesEmpty() {
	msgs, err := s.repo.ListMessages(s.ctx, "nothing-here")
	s.Require().NoError(err)
	s.NotNil(msgs)
	s.Empty(msgs)
}

func (s *ConversationRepositoryTestSuite) TestListConversationsByActivity() {
	older, err := s.repo.CreateConversation(s.ctx, "me", "old")
	s.Require().NoError(err)
	newer, err := s.repo.CreateConversation(s.ctx, "me", "new")
	s.Require().NoError(err)
	_, err = s.repo.CreateConversation(s.ctx, "other", "someone")
	s.Require().NoError(err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.repo.AppendMessage(s.ctx, older.ID, "me", "old", "a", t0)
	s.Require().NoError(err)
	_, err = s.repo.AppendMessage(s.ctx, newer.ID, "me", "new", "b", t0.Add(time.Hour))
	s.Require().NoError(err)

	convs, err := s.repo.ListConversations(s.ctx, "me", 10)
	s.Require().NoError(err)
	s.Require().Len(convs, 2)
	s.Equal(newer.ID, convs[0].ID)
	s.Equal(older.ID, convs[1].ID)
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(gorm.ErrRecordNotFound))
}
