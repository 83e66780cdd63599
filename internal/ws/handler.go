package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pixel-battle-backend/internal/events"
	"github.com/DoyleJ11/pixel-battle-backend/internal/hub"
	"github.com/DoyleJ11/pixel-battle-backend/internal/session"
	"github.com/DoyleJ11/pixel-battle-backend/internal/types"
)

type Config struct {
	DefaultSession  string
	OutboxSize      int
	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration // 0 disables
	MaxBadMessages  int
	// Frames above MaxMessageBytes close the connection with
	// StatusMessageTooBig. Keep it well above the largest valid envelope so
	// an oversized but otherwise ordinary message is answered with an error.
	MaxMessageBytes int64
	OriginPatterns  []string
}

func DefaultConfig() Config {
	return Config{
		DefaultSession:  "main",
		OutboxSize:      64,
		WriteTimeout:    5 * time.Second,
		MaxBadMessages:  10,
		MaxMessageBytes: 64 << 10,
	}
}

func Handler(h *hub.Hub, cfg Config, logger *zap.Logger) http.HandlerFunc {
	logger = logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			code = cfg.DefaultSession
		}

		sess := h.Get(r.Context(), code)
		if sess == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		if cfg.MaxMessageBytes > 0 {
			conn.SetReadLimit(cfg.MaxMessageBytes)
		}

		connID := uuid.NewString()
		log := logger.With(zap.String("conn_id", connID), zap.String("session", code))
		log.Debug("connection opened", zap.String("remote", r.RemoteAddr))

		out := make(chan events.Event, cfg.OutboxSize)

		// Writer goroutine
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, conn, out, cfg.WriteTimeout, log)

		reason := readLoop(ctx, conn, sess, connID, out, cfg, log)

		// The session may already have dropped us; Disconnect is then a no-op.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), time.Second)
		defer leaveCancel()
		if err := sess.Send(leaveCtx, session.Disconnect{ConnID: connID, Reason: reason}); err != nil && !errors.Is(err, session.ErrClosed) {
			log.Warn("disconnect not delivered", zap.Error(err))
		}
		log.Debug("connection closed", zap.String("reason", reason))
	}
}

// writeLoop drains the outbox onto the socket. A closed outbox means the
// session let go of this client, so the socket is closed too.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan events.Event, timeout time.Duration, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "dropped by server")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				log.Info("write failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, connID string, out chan events.Event, cfg Config, log *zap.Logger) string {
	bad := 0
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.ReadIdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, cfg.ReadIdleTimeout)
		}
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return "closed"
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return "idle timeout"
			}
			log.Debug("read failed", zap.Error(err))
			return "read error"
		}

		if typ != websocket.MessageText {
			err = types.ErrBadJSON
		}
		var intent any
		if err == nil {
			intent, err = types.Decode(data)
		}
		if err != nil {
			bad++
			log.Info("malformed message", zap.Int("consecutive", bad), zap.Error(err))
			if cfg.MaxBadMessages > 0 && bad >= cfg.MaxBadMessages {
				conn.Close(websocket.StatusPolicyViolation, "too many malformed messages")
				return "malformed messages"
			}
			wctx, wcancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			_ = wsjson.Write(wctx, conn, events.NewError(err.Error()))
			wcancel()
			continue
		}
		bad = 0

		if err := sess.Send(ctx, toSessionMsg(connID, out, intent)); err != nil {
			if errors.Is(err, session.ErrClosed) {
				conn.Close(websocket.StatusGoingAway, "session closed")
			}
			return "session closed"
		}
	}
}

func toSessionMsg(connID string, out chan events.Event, intent any) session.Msg {
	switch m := intent.(type) {
	case types.Signup:
		return session.Signup{ConnID: connID, Name: m.Name, Outbox: out}
	case types.PlaceIntent:
		return session.Place{ConnID: connID, X: m.X, Y: m.Y, Color: m.Color}
	case types.Chat:
		return session.Chat{ConnID: connID, Text: m.Text}
	default:
		return session.RequestSave{ConnID: connID}
	}
}
