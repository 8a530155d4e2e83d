package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the websocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is a single websocket connection. It holds at most one direct room
// and one forum room at a time; room fields are touched only from readPump.
type Client struct {
	ID     string
	UserID uuid.UUID
	Role   string

	directRoom string
	forumRoom  string

	hub    *Hub
	svc    *Service
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

func (c *Client) room(kind RoomKind) string {
	if kind == RoomDirect {
		return c.directRoom
	}
	return c.forumRoom
}

func (c *Client) setRoom(kind RoomKind, roomID string) {
	if kind == RoomDirect {
		c.directRoom = roomID
	} else {
		c.forumRoom = roomID
	}
}

// deliver pushes an event to this connection only, bypassing rooms. Used for
// save acknowledgements and sender-only errors.
func (c *Client) deliver(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// ServeWs upgrades the connection and runs the client loop. The token travels
// as a query parameter because browsers cannot set headers on websocket dials.
func ServeWs(hub *Hub, svc *Service, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: userID,
			Role:   role,
			hub:    hub,
			svc:    svc,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.readPump()
	}
}

type joinChatPayload struct {
	PeerID uuid.UUID `json:"peer_id"`
}

type sendMessagePayload struct {
	PeerID        uuid.UUID `json:"peer_id"`
	Body          string    `json:"body"`
	CorrelationID string    `json:"correlation_id"`
}

type joinForumPayload struct {
	CourseID uuid.UUID `json:"course_id"`
}

type sendForumPayload struct {
	CourseID      uuid.UUID `json:"course_id"`
	Body          string    `json:"body"`
	CorrelationID string    `json:"correlation_id"`
}

// messageErrorPayload goes to the sender only and references the payload that
// was not sent so the client can roll back its optimistic render.
type messageErrorPayload struct {
	Event    string          `json:"event"`
	Reason   string          `json:"reason"`
	Original json.RawMessage `json:"original,omitempty"`
}

// savedPayload acknowledges persistence to the sender, echoing the caller's
// correlation id so the broadcast copy can be deduplicated client-side.
type savedPayload struct {
	MessageID     uuid.UUID `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type broadcastMessage struct {
	MessageID     uuid.UUID `json:"message_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	Body          string    `json:"body"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleEvent dispatches one inbound frame. Split out of readPump so the
// routing logic is exercisable without a live connection.
func (c *Client) handleEvent(ctx context.Context, msg WSMessage) {
	switch msg.Event {
	case "joinChat":
		var p joinChatPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.PeerID == uuid.Nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: "peer id required", Original: msg.Data})
			return
		}
		c.hub.Join(c, RoomDirect, DirectRoomID(c.UserID, p.PeerID))

	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: "malformed payload", Original: msg.Data})
			return
		}
		saved, err := c.svc.SendDirect(ctx, c.UserID, p.PeerID, p.Body)
		if err != nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: errs.Reason(err), Original: msg.Data})
			return
		}
		room := DirectRoomID(c.UserID, p.PeerID)
		c.hub.Publish(room, "receiveMessage", broadcastMessage{
			MessageID:     saved.ID,
			SenderID:      saved.SenderID,
			Body:          saved.Body,
			CorrelationID: p.CorrelationID,
			CreatedAt:     saved.CreatedAt,
		})
		c.deliver("messageSaved", savedPayload{
			MessageID:     saved.ID,
			CorrelationID: p.CorrelationID,
			CreatedAt:     saved.CreatedAt,
		})

	case "joinForum":
		var p joinForumPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.CourseID == uuid.Nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: "course id required", Original: msg.Data})
			return
		}
		c.hub.Join(c, RoomForum, ForumRoomID(p.CourseID))

	case "sendForumMessage":
		var p sendForumPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: "malformed payload", Original: msg.Data})
			return
		}
		saved, err := c.svc.SendForum(ctx, c.UserID, p.CourseID, p.Body)
		if err != nil {
			c.deliver("messageError", messageErrorPayload{Event: msg.Event, Reason: errs.Reason(err), Original: msg.Data})
			return
		}
		c.hub.Publish(ForumRoomID(p.CourseID), "receiveForumMessage", broadcastMessage{
			MessageID:     saved.ID,
			SenderID:      saved.SenderID,
			Body:          saved.Body,
			CorrelationID: p.CorrelationID,
			CreatedAt:     saved.CreatedAt,
		})
		c.deliver("forumMessageSaved", savedPayload{
			MessageID:     saved.ID,
			CorrelationID: p.CorrelationID,
			CreatedAt:     saved.CreatedAt,
		})

	default:
		// ignore
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handleEvent(context.Background(), msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
