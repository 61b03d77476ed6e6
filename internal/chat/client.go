package chat

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/stats"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Identity is the denormalized author identity carried by a connection
// for its lifetime and stamped onto every message it sends.
type Identity struct {
	Email   string
	Name    string
	Picture string
}

// Client is one live connection joined to a single room. Its inbound
// events are processed in arrival order by the Read pump; outbound
// events go through the buffered send channel drained by the Write pump.
type Client struct {
	conn     *websocket.Conn
	server   *ChatServer
	log      *log.Logger
	identity Identity
	roomId   string
	send     chan *ServerEvent
	stop     chan struct{}
}

func NewClient(identity Identity, roomId string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		server:   cs,
		log:      l,
		identity: identity,
		roomId:   roomId,
		send:     make(chan *ServerEvent, 256),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(evt)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Println("error parsing event:", err)
			continue
		}

		switch evt.Type {
		case EventMessage:
			c.handleMessage(&evt)
		case EventTyping:
			c.server.registry.Broadcast(c.roomId, TypingEvent(c.identity.Name))
		default:
			c.log.Printf("ignoring unknown event type %q", evt.Type)
		}
	}
}

// handleMessage runs the inbound message pipeline: validate, moderate,
// persist, enforce retention, broadcast.
func (c *Client) handleMessage(evt *ClientEvent) {
	content := strings.TrimSpace(evt.Content)
	messageType := evt.MessageType
	if messageType == "" {
		messageType = "text"
	}

	// empty frames are dropped silently, the loop continues
	if content == "" && evt.MediaUrl == "" {
		return
	}

	if content != "" && messageType == "text" {
		allowed, reason := c.server.gate.Check(context.Background(), content)
		if !allowed {
			c.server.stats.Incr(stats.MessagesBlocked)
			c.queueEvent(ModerationWarningEvent(reason, evt.ClientId))
			return
		}
	}

	msg, err := c.server.store.Append(database.CreateMessageParams{
		RoomId:      c.roomId,
		UserEmail:   c.identity.Email,
		UserName:    c.identity.Name,
		UserPicture: c.identity.Picture,
		Content:     content,
		MessageType: messageType,
		MediaUrl:    evt.MediaUrl,
	})
	if err != nil {
		c.log.Println("error saving message:", err)
		c.queueEvent(ErrorEvent("failed to send message", evt.ClientId))
		return
	}

	if _, err := c.server.store.EnforceRetention(c.roomId); err != nil {
		c.log.Printf("enforce retention in %q: %v", c.roomId, err)
	}

	c.server.stats.Incr(stats.MessagesSent)
	c.server.registry.Broadcast(c.roomId, NewMessageEvent(msg, evt.ClientId))
}

// queueEvent enqueues without blocking; a full channel drops the event.
func (c *Client) queueEvent(evt *ServerEvent) bool {
	select {
	case c.send <- evt:
	default:
		c.log.Println("failed to queue event, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// cleanup runs unconditionally when the read pump exits, whether the
// peer closed, timed out or errored: it deregisters the connection and
// lets the room know.
func (c *Client) cleanup() {
	c.server.DeregisterClient(c)
	c.stopClient()
}
