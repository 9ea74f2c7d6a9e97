package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/algodrill/algodrill/internal/attempt"
	"github.com/algodrill/algodrill/internal/session"
	"github.com/algodrill/algodrill/internal/sessioncache"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	submitTimeout  = 30 * time.Second
	cacheTimeout   = 2 * time.Second
)

// client hosts one session for one websocket connection.
type client struct {
	conn   *websocket.Conn
	sess   *session.Session
	svc    *attempt.Service
	cache  *sessioncache.Cache
	userID string
	quizID string
	key    string

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	submitting atomic.Bool
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live: user %s quiz %s: %v", c.userID, c.quizID, err)
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *client) handle(ctx context.Context, msg Inbound) error {
	var ev session.Event
	switch msg.Type {
	case MessageTypeSetAnswer:
		if len(msg.Payload) == 0 {
			return errors.New("set_answer needs a payload")
		}
		ev = session.SetAnswer{Answer: msg.Payload}
	case MessageTypeUseHint:
		var p UseHintPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.HintID == "" {
			return errors.New("use_hint needs a hintId")
		}
		ev = session.UseHint{HintID: p.HintID}
	case MessageTypeNext:
		ev = session.Next{}
	case MessageTypePrev:
		ev = session.Prev{}
	case MessageTypeGoTo:
		var p GoToPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.New("goto needs an index")
		}
		ev = session.GoTo{Index: p.Index}
	case MessageTypeSubmit:
		ev = session.Submit{}
	default:
		return errors.New("unknown message type: " + string(msg.Type))
	}

	st := c.sess.Dispatch(ev)
	if msg.Type == MessageTypeSubmit && st.Status == session.StatusSubmitted {
		// also covers a retry after a failed submission, which changes no state
		c.trySubmit(ctx)
	}
	return nil
}

// watch forwards every state change to the client, keeps the resume snapshot
// current and grades the session once it is submitted.
func (c *client) watch(ctx context.Context, changes <-chan session.State) {
	for st := range changes {
		c.sendMessage(MessageTypeState, st.View())
		switch st.Status {
		case session.StatusInProgress:
			c.save(st)
		case session.StatusSubmitted:
			c.save(st)
			c.trySubmit(ctx)
		}
	}
}

func (c *client) save(st session.State) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := c.cache.Save(ctx, c.key, st); err != nil {
		log.Printf("live: cache %s: %v", c.key, err)
	}
}

// trySubmit grades the session in the background. Only one submission runs at a
// time; the attempt id makes repeats harmless.
func (c *client) trySubmit(ctx context.Context) {
	if !c.submitting.CompareAndSwap(false, true) {
		return
	}
	st := c.sess.Snapshot()
	if st.Status != session.StatusSubmitted {
		c.submitting.Store(false)
		return
	}
	req := attempt.SubmitRequest{AttemptID: st.ID, Submission: c.sess.Submission()}
	go func() {
		defer c.submitting.Store(false)
		// finish grading even if the socket drops mid-way
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
		defer cancel()

		res, err := c.svc.Submit(sctx, c.userID, c.quizID, req)
		if err != nil {
			log.Printf("live: submit %s: %v", req.AttemptID, err)
			c.sendError("submission failed, send submit to retry")
			return
		}
		c.sess.Dispatch(session.ShowResults{Results: res.Results})
		c.sendMessage(MessageTypeResults, res.Results)
		if err := c.cache.Delete(sctx, c.key); err != nil {
			log.Printf("live: cache delete %s: %v", c.key, err)
		}
	}()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("live: write to %s: %v", c.userID, err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) sendMessage(t MessageType, payload any) {
	data, err := json.Marshal(Outbound{Type: t, Payload: payload})
	if err != nil {
		log.Printf("live: marshal %s: %v", t, err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Printf("live: send buffer full for %s, dropping %s", c.userID, t)
	}
}

func (c *client) sendError(message string) {
	c.sendMessage(MessageTypeError, ErrorPayload{Message: message})
}
