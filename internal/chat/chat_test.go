package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/models"
)

func TestDirectRoomIDSymmetric(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, DirectRoomID(a, b), DirectRoomID(b, a))
	assert.Len(t, DirectRoomID(a, b), 16)
}

func TestDirectRoomIDDistinctPairs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	assert.NotEqual(t, DirectRoomID(a, b), DirectRoomID(a, c))
}

type fakeChatStore struct {
	failAppend bool
	appended   []models.Message
}

func (f *fakeChatStore) GetOrCreateChat(_ context.Context, a, b uuid.UUID) (*models.Chat, error) {
	ua, ub := a, b
	if ub.String() < ua.String() {
		ua, ub = ub, ua
	}
	return &models.Chat{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(ua.String()+ub.String())), UserA: ua, UserB: ub}, nil
}

func (f *fakeChatStore) GetOrCreateForum(_ context.Context, courseID uuid.UUID) (*models.Forum, error) {
	return &models.Forum{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(courseID.String())), CourseID: courseID}, nil
}

func (f *fakeChatStore) appendMessage(convID, senderID uuid.UUID, body string) (*models.Message, error) {
	if f.failAppend {
		return nil, fmt.Errorf("storage unavailable")
	}
	m := models.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	f.appended = append(f.appended, m)
	return &m, nil
}

func (f *fakeChatStore) AppendChatMessage(_ context.Context, chatID, senderID uuid.UUID, body string) (*models.Message, error) {
	return f.appendMessage(chatID, senderID, body)
}

func (f *fakeChatStore) AppendForumMessage(_ context.Context, forumID, senderID uuid.UUID, body string) (*models.Message, error) {
	return f.appendMessage(forumID, senderID, body)
}

func (f *fakeChatStore) ListChatMessages(context.Context, uuid.UUID, int, int) ([]models.Message, error) {
	return f.appended, nil
}

func (f *fakeChatStore) ListForumMessages(context.Context, uuid.UUID, int, int) ([]models.Message, error) {
	return f.appended, nil
}

type wsFixture struct {
	hub   *Hub
	store *fakeChatStore
	svc   *Service
}

func newWsFixture() *wsFixture {
	store := &fakeChatStore{}
	return &wsFixture{
		hub:   NewHub(zap.NewNop(), nil, nil),
		store: store,
		svc:   NewService(store),
	}
}

func (f *wsFixture) newClient() *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: uuid.New(),
		hub:    f.hub,
		svc:    f.svc,
		send:   make(chan WSMessage, 16),
		logger: zap.NewNop(),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func event(t *testing.T, name string, payload interface{}) WSMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return WSMessage{Event: name, Data: data}
}

func TestSendMessageBroadcastsToBothSides(t *testing.T) {
	f := newWsFixture()
	alice, bob := f.newClient(), f.newClient()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: bob.UserID}))
	bob.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: alice.UserID}))
	require.Equal(t, 2, f.hub.RoomCount(DirectRoomID(alice.UserID, bob.UserID)))

	alice.handleEvent(ctx, event(t, "sendMessage", sendMessagePayload{
		PeerID: bob.UserID, Body: "namaste", CorrelationID: "c-1",
	}))

	bobMsgs := drain(bob)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, "receiveMessage", bobMsgs[0].Event)

	var echo broadcastMessage
	require.NoError(t, json.Unmarshal(bobMsgs[0].Data, &echo))
	assert.Equal(t, "namaste", echo.Body)
	assert.Equal(t, alice.UserID, echo.SenderID)
	assert.Equal(t, "c-1", echo.CorrelationID)

	// sender gets the broadcast echo plus the saved ack
	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 2)
	assert.Equal(t, "receiveMessage", aliceMsgs[0].Event)
	assert.Equal(t, "messageSaved", aliceMsgs[1].Event)

	var saved savedPayload
	require.NoError(t, json.Unmarshal(aliceMsgs[1].Data, &saved))
	assert.Equal(t, "c-1", saved.CorrelationID)
	require.Len(t, f.store.appended, 1)
	assert.Equal(t, saved.MessageID, f.store.appended[0].ID)
}

func TestPersistenceFailureNoBroadcast(t *testing.T) {
	f := newWsFixture()
	f.store.failAppend = true
	alice, bob := f.newClient(), f.newClient()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: bob.UserID}))
	bob.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: alice.UserID}))

	alice.handleEvent(ctx, event(t, "sendMessage", sendMessagePayload{
		PeerID: bob.UserID, Body: "lost", CorrelationID: "c-2",
	}))

	assert.Empty(t, drain(bob), "peer must not observe an unpersisted message")
	aliceMsgs := drain(alice)
	require.Len(t, aliceMsgs, 1)
	assert.Equal(t, "messageError", aliceMsgs[0].Event)
}

func TestEmptyBodyRejectedToSenderOnly(t *testing.T) {
	f := newWsFixture()
	alice, bob := f.newClient(), f.newClient()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: bob.UserID}))
	bob.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: alice.UserID}))

	alice.handleEvent(ctx, event(t, "sendMessage", sendMessagePayload{PeerID: bob.UserID, Body: "   "}))

	assert.Empty(t, drain(bob))
	msgs := drain(alice)
	require.Len(t, msgs, 1)
	assert.Equal(t, "messageError", msgs[0].Event)
	assert.Empty(t, f.store.appended)
}

func TestJoinSecondDirectRoomEvictsFirst(t *testing.T) {
	f := newWsFixture()
	alice := f.newClient()
	peer1, peer2 := uuid.New(), uuid.New()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: peer1}))
	room1 := DirectRoomID(alice.UserID, peer1)
	require.Equal(t, 1, f.hub.RoomCount(room1))

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: peer2}))
	assert.Zero(t, f.hub.RoomCount(room1))
	assert.Equal(t, 1, f.hub.RoomCount(DirectRoomID(alice.UserID, peer2)))
}

func TestDirectAndForumRoomsCoexist(t *testing.T) {
	f := newWsFixture()
	alice := f.newClient()
	peer, course := uuid.New(), uuid.New()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: peer}))
	alice.handleEvent(ctx, event(t, "joinForum", joinForumPayload{CourseID: course}))

	assert.Equal(t, 1, f.hub.RoomCount(DirectRoomID(alice.UserID, peer)))
	assert.Equal(t, 1, f.hub.RoomCount(ForumRoomID(course)))
}

func TestForumMessageReachesAllMembers(t *testing.T) {
	f := newWsFixture()
	course := uuid.New()
	members := []*Client{f.newClient(), f.newClient(), f.newClient()}
	ctx := context.Background()
	for _, m := range members {
		m.handleEvent(ctx, event(t, "joinForum", joinForumPayload{CourseID: course}))
	}

	members[0].handleEvent(ctx, event(t, "sendForumMessage", sendForumPayload{
		CourseID: course, Body: "question about lesson 3", CorrelationID: "f-1",
	}))

	for i, m := range members[1:] {
		msgs := drain(m)
		require.Len(t, msgs, 1, "member %d", i+1)
		assert.Equal(t, "receiveForumMessage", msgs[0].Event)
	}
	senderMsgs := drain(members[0])
	require.Len(t, senderMsgs, 2)
	assert.Equal(t, "receiveForumMessage", senderMsgs[0].Event)
	assert.Equal(t, "forumMessageSaved", senderMsgs[1].Event)
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	f := newWsFixture()
	alice := f.newClient()
	peer, course := uuid.New(), uuid.New()
	ctx := context.Background()

	alice.handleEvent(ctx, event(t, "joinChat", joinChatPayload{PeerID: peer}))
	alice.handleEvent(ctx, event(t, "joinForum", joinForumPayload{CourseID: course}))
	f.hub.Unregister(alice)

	assert.Zero(t, f.hub.RoomCount(DirectRoomID(alice.UserID, peer)))
	assert.Zero(t, f.hub.RoomCount(ForumRoomID(course)))
}

func TestSelfMessageRejected(t *testing.T) {
	f := newWsFixture()
	alice := f.newClient()
	alice.handleEvent(context.Background(), event(t, "sendMessage", sendMessagePayload{
		PeerID: alice.UserID, Body: "hi me",
	}))
	msgs := drain(alice)
	require.Len(t, msgs, 1)
	assert.Equal(t, "messageError", msgs[0].Event)
}

func TestBroadcastDuringChurn(t *testing.T) {
	f := newWsFixture()
	room := ForumRoomID(uuid.New())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c := f.newClient()
			f.hub.Join(c, RoomForum, room)
			f.hub.Unregister(c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.hub.Broadcast(room, "receiveMessage", map[string]string{"body": "om"})
		}
	}()
	wg.Wait()
	assert.Zero(t, f.hub.RoomCount(room))
}
