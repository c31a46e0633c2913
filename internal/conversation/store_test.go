package conversation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/blocking"
	"nexochat/backend/internal/conversation"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/localization"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"
	"nexochat/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	broker *realtime.MemoryBroker
	blocks *blocking.Registry
	store  *conversation.Store
	alice  models.Profile
	bob    models.Profile
	carol  models.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewDB(t)
	dir := directory.NewService(db)
	broker := realtime.NewMemoryBroker()
	blocks := blocking.NewRegistry(db, dir)
	return &fixture{
		db:     db,
		broker: broker,
		blocks: blocks,
		store:  conversation.NewStore(db, dir, blocks, broker, localization.Default(), "en"),
		alice:  storagetest.CreateProfile(t, db, "alice@example.com", "Alice"),
		bob:    storagetest.CreateProfile(t, db, "bob@example.com"),
		carol:  storagetest.CreateProfile(t, db, "carol@example.com"),
	}
}

func (f *fixture) addMessage(t *testing.T, convID, senderID, content string, kind models.MessageKind) models.Message {
	t.Helper()
	m := models.Message{ConversationID: convID, SenderID: senderID, Content: content, Kind: kind}
	require.NoError(t, f.db.Create(&m).Error)
	_, err := f.store.Touch(context.Background(), convID)
	require.NoError(t, err)
	return m
}

func TestFindOrCreate_IsIdempotentInBothOrders(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)

	// Act
	first, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	again, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	reversed, err := f.store.FindOrCreate(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ID, reversed.ID)
	var n int64
	require.NoError(t, f.db.Model(&models.Conversation{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestFindOrCreate_ConcurrentCallsConverge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.alice.ID, f.bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := f.store.FindOrCreate(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestFindOrCreate_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.FindOrCreate(ctx, f.alice.ID, f.alice.ID)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = f.store.FindOrCreate(ctx, f.alice.ID, "ghost")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	_, err = f.blocks.Block(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	_, err = f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	assert.ErrorIs(t, err, blocking.ErrBlocked)
	assert.True(t, apperror.Is(err, apperror.CodePermissionDenied))

	var n int64
	require.NoError(t, f.db.Model(&models.Conversation{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFindOrCreate_PublishesToBothParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	subA, err := f.broker.Subscribe(ctx, realtime.ConversationsTopic(f.alice.ID))
	require.NoError(t, err)
	defer subA.Close()
	subB, err := f.broker.Subscribe(ctx, realtime.ConversationsTopic(f.bob.ID))
	require.NoError(t, err)
	defer subB.Close()

	c, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	for _, sub := range []realtime.Subscription{subA, subB} {
		select {
		case ev := <-sub.C():
			assert.Equal(t, models.ChangeInsert, ev.Type)
			assert.Equal(t, c.ID, ev.RecordID)
		case <-time.After(time.Second):
			t.Fatal("no conversation event")
		}
	}

	// Finding an existing conversation publishes nothing.
	_, err = f.store.FindOrCreate(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, subA.C(), 0)
}

func TestList_OrderAndPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	withBob, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	withCarol, err := f.store.FindOrCreate(ctx, f.carol.ID, f.alice.ID)
	require.NoError(t, err)

	list, err := f.store.List(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "No messages yet", list[0].Preview)
	assert.Nil(t, list[0].LastMessage)

	f.addMessage(t, withCarol.ID, f.carol.ID, "first", models.KindText)
	time.Sleep(2 * time.Millisecond)
	f.addMessage(t, withBob.ID, f.alice.ID, "hey bob", models.KindText)

	list, err = f.store.List(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withBob.ID, list[0].ID, "most recently active first")
	assert.Equal(t, "You: hey bob", list[0].Preview)
	assert.Equal(t, "bob", list[0].OtherUser.Name())
	assert.Equal(t, withCarol.ID, list[1].ID)
	assert.Equal(t, "first", list[1].Preview)
	assert.Equal(t, f.carol.ID, list[1].OtherUser.ID)

	time.Sleep(2 * time.Millisecond)
	f.addMessage(t, withCarol.ID, f.carol.ID, "https://media.giphy.com/media/26ufdipQqU2lhNA4g/giphy.gif", models.KindGIF)
	list, err = f.store.List(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, withCarol.ID, list[0].ID)
	assert.Equal(t, "GIF", list[0].Preview)

	// Bob only sees his own conversation, with Alice's name.
	list, err = f.store.List(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0].OtherUser.Name())
	assert.Equal(t, "hey bob", list[0].Preview)
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	at, err := f.store.Touch(ctx, c.ID)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(c.UpdatedAt))
	assert.True(t, got.UpdatedAt.Equal(at))
	assert.True(t, got.LastInteractionAt.Equal(at))

	_, err = f.store.Touch(ctx, "missing")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	f.addMessage(t, c.ID, f.alice.ID, "one", models.KindText)
	f.addMessage(t, c.ID, f.bob.ID, "two", models.KindText)

	err = f.store.Delete(ctx, f.carol.ID, c.ID)
	assert.True(t, apperror.Is(err, apperror.CodePermissionDenied))

	require.NoError(t, f.store.Delete(ctx, f.bob.ID, c.ID))

	_, err = f.store.Get(ctx, c.ID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("conversation_id = ?", c.ID).Count(&n).Error)
	assert.Zero(t, n)

	err = f.store.Delete(ctx, f.bob.ID, c.ID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	// Recreating the pair yields a fresh, empty conversation.
	fresh, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, fresh.ID)
	list, err := f.store.List(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastMessage)
}

func TestGetForParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.store.FindOrCreate(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.store.GetForParticipant(ctx, c.ID, f.bob.ID)
	assert.NoError(t, err)
	_, err = f.store.GetForParticipant(ctx, c.ID, f.carol.ID)
	assert.True(t, apperror.Is(err, apperror.CodePermissionDenied))
}
