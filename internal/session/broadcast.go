package session

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/pixel-battle-backend/internal/canvas"
	"github.com/DoyleJ11/pixel-battle-backend/internal/events"
	"github.com/DoyleJ11/pixel-battle-backend/internal/registry"
	"github.com/DoyleJ11/pixel-battle-backend/pkg/types"
)

// SystemSender signs join and leave notices.
const SystemSender = types.SystemSender

// broadcast delivers ev to every registered client without blocking. A client
// whose outbox is full is dropped, and its departure notice is queued behind
// ev, so cascading drops are handled here without recursion.
func (s *Session) broadcast(ev events.Event) {
	queue := []events.Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		s.publish(next)

		for _, c := range s.clients.Targets() {
			select {
			case c.Outbox <- next:
			default:
				if gone, ok := s.drop(c, "outbox full"); ok {
					queue = append(queue, events.NewChat(SystemSender, gone.Name+" left"))
				}
			}
		}
	}
}

// send delivers ev to one client. It reports false if the client had to be
// dropped instead.
func (s *Session) send(c *registry.Client, ev events.Event) bool {
	select {
	case c.Outbox <- ev:
		return true
	default:
	}
	if gone, ok := s.drop(c, "outbox full"); ok {
		s.broadcast(events.NewChat(SystemSender, gone.Name+" left"))
	}
	return false
}

// drop unregisters a client that cannot keep up. Closing its outbox tells the
// connection's writer to hang up.
func (s *Session) drop(c *registry.Client, reason string) (*registry.Client, bool) {
	gone, ok := s.clients.Unregister(c.ID)
	if !ok {
		return nil, false
	}
	s.closed[c.ID] = struct{}{}
	s.logger.Warn("client dropped",
		zap.String("conn_id", c.ID),
		zap.String("name", c.Name),
		zap.String("reason", reason))
	return gone, true
}

func (s *Session) publish(ev events.Event) {
	if err := s.publisher.Publish(s.ctx, s.code, ev); err != nil {
		s.logger.Warn("mirror publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// offer is a best-effort send to a connection that is not registered.
func offer(out chan events.Event, ev events.Event) {
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
	}
}

func wirePixels(pixels []canvas.Pixel) []types.Pixel {
	out := make([]types.Pixel, len(pixels))
	for i, p := range pixels {
		out[i] = types.Pixel{X: p.X, Y: p.Y, Color: p.Color.Hex()}
	}
	return out
}
