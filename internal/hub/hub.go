package hub

import (
	"context"

	"github.com/DoyleJ11/pixel-battle-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

// CreateSession creates the session for Options.Code, or returns the
// existing one.
type CreateSession struct {
	Options session.Options
	Reply   chan *session.Session
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type ListSessions struct {
	Reply chan []string
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct {
	Done chan struct{}
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (ListSessions) isHubMsg()  {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Get looks a session up by code; nil if there is none or the hub is gone.
func (h *Hub) Get(ctx context.Context, code string) *session.Session {
	if h.ctx.Err() != nil {
		return nil
	}
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- GetSession{Code: code, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.Options.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Options)
				h.sessions[msg.Options.Code] = s
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // May be nil

			case ListSessions:
				codes := make([]string, 0, len(h.sessions))
				for code := range h.sessions {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case RemoveSession:
				if s := h.sessions[msg.Code]; s != nil {
					select {
					case s.Inbox() <- session.Shutdown{}:
					case <-s.Done():
					}
					delete(h.sessions, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

// shutdown stops every session and waits for their exports to finish.
func (h *Hub) shutdown() {
	for code, s := range h.sessions {
		select {
		case s.Inbox() <- session.Shutdown{}:
		case <-s.Done():
		}
		<-s.Done()
		s.Wait()
		delete(h.sessions, code)
	}
	h.cancel()
}
