package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pixel-battle-backend/internal/canvas"
	"github.com/DoyleJ11/pixel-battle-backend/internal/clock"
	"github.com/DoyleJ11/pixel-battle-backend/internal/events"
	"github.com/DoyleJ11/pixel-battle-backend/internal/export"
	"github.com/DoyleJ11/pixel-battle-backend/internal/registry"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// Signup asks to register the connection under Name. Outbox is where the
// connection wants its events; on success the registry owns it.
type Signup struct {
	ConnID string
	Name   string
	Outbox chan events.Event
}

func (Signup) isSessionMsg() {}

type Place struct {
	ConnID string
	X, Y   int
	Color  canvas.Color
}

func (Place) isSessionMsg() {}

type Chat struct {
	ConnID string
	Text   string
}

func (Chat) isSessionMsg() {}

// RequestSave exports the canvas and broadcasts the image. ConnID may be
// empty when the request does not come from a connection.
type RequestSave struct {
	ConnID string
}

func (RequestSave) isSessionMsg() {}

type Disconnect struct {
	ConnID string
	Reason string
}

func (Disconnect) isSessionMsg() {}

type Start struct {
	Reply chan error
}

func (Start) isSessionMsg() {}

// End ends the session early. Reply receives true if this request made the
// transition.
type End struct {
	Reply chan bool
}

func (End) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type exportDone struct {
	artifact export.Artifact
	trigger  export.Trigger
	err      error
}

func (exportDone) isSessionMsg() {}

type View struct {
	Code      string
	Phase     clock.Phase
	Remaining time.Duration
	Clients   []string
	Pixels    int
	Exports   int
}

type Options struct {
	Code         string
	Duration     time.Duration
	TickInterval time.Duration
	Clock        clockwork.Clock
	Exporter     *export.Exporter
	Publisher    events.Publisher
	Logger       *zap.Logger
}

type Session struct {
	code      string
	inbox     chan Msg
	canvas    *canvas.Store
	clients   *registry.Registry
	clock     *clock.Clock
	exporter  *export.Exporter
	publisher events.Publisher
	logger    *zap.Logger

	// connections whose outbox was closed by a drop; they may not sign up
	// again until their reader reports the disconnect.
	closed  map[string]struct{}
	exports int
	wall    clockwork.Clock

	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	logger := opts.Logger.Named("session").With(zap.String("session", opts.Code))
	if opts.Exporter == nil {
		opts.Exporter = export.NewExporter("", opts.Code, opts.Clock, nil, logger)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		code:      opts.Code,
		inbox:     make(chan Msg, 64),
		canvas:    canvas.NewStore(),
		clients:   registry.New(),
		clock:     clock.New(opts.Clock, opts.Duration, opts.TickInterval),
		exporter:  opts.Exporter,
		publisher: opts.Publisher,
		logger:    logger,
		closed:    make(map[string]struct{}),
		wall:      opts.Clock,
		ctx:       ctx,
		cancel:    cancel,
	}

	go s.loop()
	return s
}

// Expose the inbox so tests or the ws layer can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send delivers m to the session unless the session or ctx is done first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Code() string { return s.code }

// Canvas is safe for concurrent reads; only the session writes to it.
func (s *Session) Canvas() *canvas.Store { return s.canvas }

func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Exports lists the artifacts recorded for this session, oldest first.
func (s *Session) Exports(ctx context.Context) ([]export.Artifact, error) {
	return s.exporter.Catalog().List(ctx, s.code)
}

// Wait blocks until in-flight exports have finished.
func (s *Session) Wait() { s.pending.Wait() }

func (s *Session) loop() {
	done := s.clock.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case d := <-s.clock.Ticks():
			if s.clock.Phase() == clock.PhaseActive {
				s.broadcast(events.NewTimeRemaining(clock.Seconds(d)))
			}

		case <-done:
			done = nil
			s.onEnd()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Signup:
				s.signup(msg)
			case Place:
				s.place(msg)
			case Chat:
				s.chat(msg)
			case RequestSave:
				s.logger.Debug("save requested", zap.String("conn_id", msg.ConnID))
				s.startExport(export.TriggerSave)
			case Disconnect:
				s.disconnect(msg)
			case Start:
				s.start(msg)
			case End:
				ok := s.clock.End()
				if msg.Reply != nil {
					msg.Reply <- ok
				}
			case GetState:
				msg.Reply <- s.view()
			case exportDone:
				s.finishExport(msg)
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) start(msg Start) {
	err := s.clock.Start()
	if err == nil {
		s.logger.Info("session started", zap.Duration("duration", s.clock.Duration()))
		s.broadcast(events.NewTimeRemaining(clock.Seconds(s.clock.Remaining())))
	}
	if msg.Reply != nil {
		msg.Reply <- err
	}
}

func (s *Session) signup(msg Signup) {
	if _, dropped := s.closed[msg.ConnID]; dropped || msg.Outbox == nil {
		return
	}

	c := &registry.Client{
		ID:       msg.ConnID,
		Name:     strings.TrimSpace(msg.Name),
		Outbox:   msg.Outbox,
		JoinedAt: s.wall.Now(),
	}
	if err := s.clients.Register(c); err != nil {
		s.logger.Info("signup rejected",
			zap.String("conn_id", msg.ConnID),
			zap.String("name", c.Name),
			zap.Error(err))
		offer(msg.Outbox, events.NewError(err.Error()))
		return
	}

	s.logger.Info("client joined", zap.String("conn_id", c.ID), zap.String("name", c.Name))
	if !s.send(c, events.NewCanvasSnapshot(wirePixels(s.canvas.Snapshot()))) {
		return
	}
	if !s.send(c, events.NewTimeRemaining(clock.Seconds(s.clock.Remaining()))) {
		return
	}
	s.broadcast(events.NewChat(SystemSender, c.Name+" joined"))
}

func (s *Session) place(msg Place) {
	if _, ok := s.clients.Lookup(msg.ConnID); !ok {
		s.logger.Debug("place before signup dropped", zap.String("conn_id", msg.ConnID))
		return
	}

	var err error
	active := s.clock.IfActive(func() {
		err = s.canvas.Set(msg.X, msg.Y, msg.Color)
	})
	switch {
	case !active:
		s.logger.Debug("place outside active phase dropped", zap.String("conn_id", msg.ConnID))
		return
	case err != nil:
		s.logger.Debug("place dropped",
			zap.String("conn_id", msg.ConnID),
			zap.Int("x", msg.X),
			zap.Int("y", msg.Y),
			zap.Error(err))
		return
	}

	s.broadcast(events.NewPixelUpdate(msg.X, msg.Y, msg.Color.Hex()))
}

func (s *Session) chat(msg Chat) {
	c, ok := s.clients.Lookup(msg.ConnID)
	if !ok {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	s.broadcast(events.NewChat(c.Name, text))
}

func (s *Session) disconnect(msg Disconnect) {
	delete(s.closed, msg.ConnID)
	c, ok := s.clients.Unregister(msg.ConnID)
	if !ok {
		return
	}
	s.logger.Info("client left",
		zap.String("conn_id", c.ID),
		zap.String("name", c.Name),
		zap.String("reason", msg.Reason))
	s.broadcast(events.NewChat(SystemSender, c.Name+" left"))
}

func (s *Session) onEnd() {
	s.logger.Info("session ended", zap.Int("pixels", s.canvas.Count()), zap.Int("clients", s.clients.Len()))
	s.broadcast(events.NewSessionEnd())
	s.startExport(export.TriggerEnd)
}

// startExport copies the canvas here, in one read pass, and leaves encoding
// and I/O to a goroutine that reports back through the inbox.
func (s *Session) startExport(trigger export.Trigger) {
	img := s.canvas.Image()
	pixels := s.canvas.Count()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		// Let a running export finish its catalog write during shutdown.
		a, err := s.exporter.Save(context.WithoutCancel(s.ctx), img, pixels, trigger)
		select {
		case s.inbox <- exportDone{artifact: a, trigger: trigger, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) finishExport(msg exportDone) {
	if msg.err != nil {
		s.logger.Error("export failed", zap.String("trigger", string(msg.trigger)), zap.Error(msg.err))
	} else {
		s.exports++
	}
	// An image that could not be written to disk is still handed out.
	if len(msg.artifact.Image) == 0 {
		return
	}
	s.broadcast(events.NewFinalImage(msg.artifact.Filename, msg.artifact.Image))
}

func (s *Session) view() View {
	return View{
		Code:      s.code,
		Phase:     s.clock.Phase(),
		Remaining: s.clock.Remaining(),
		Clients:   s.clients.Names(),
		Pixels:    s.canvas.Count(),
		Exports:   s.exports,
	}
}

func (s *Session) shutdown() {
	for _, c := range s.clients.Clear() {
		s.logger.Debug("closing client on shutdown", zap.String("name", c.Name))
	}
	s.clock.End()
	s.cancel()
}
