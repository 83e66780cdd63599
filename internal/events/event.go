package events

import (
	"context"

	"github.com/DoyleJ11/pixel-battle-backend/pkg/types"
)

type Kind string

const (
	KindPixelUpdate    Kind = types.MsgPixelUpdate
	KindCanvasSnapshot Kind = types.MsgCanvasSnapshot
	KindTimeRemaining  Kind = types.MsgTimeRemaining
	KindChat           Kind = types.MsgChat
	KindSessionEnd     Kind = types.MsgSessionEnd
	KindFinalImage     Kind = types.MsgFinalImage
	KindError          Kind = types.MsgError
)

// Event is one outbound message, already in wire shape.
type Event struct {
	Kind Kind `json:"type"`
	Data any  `json:"data"`
}

type PixelUpdate types.Pixel

type CanvasSnapshot struct {
	Pixels []types.Pixel `json:"pixels"`
}

type TimeRemaining struct {
	Seconds int `json:"seconds"`
}

type Chat struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type SessionEnd struct{}

type FinalImage struct {
	Filename string `json:"filename"`
	Image    []byte `json:"image"`
}

type Error struct {
	Error string `json:"error"`
}

func NewPixelUpdate(x, y int, hex string) Event {
	return Event{Kind: KindPixelUpdate, Data: PixelUpdate{X: x, Y: y, Color: hex}}
}

func NewCanvasSnapshot(pixels []types.Pixel) Event {
	return Event{Kind: KindCanvasSnapshot, Data: CanvasSnapshot{Pixels: pixels}}
}

func NewTimeRemaining(seconds int) Event {
	return Event{Kind: KindTimeRemaining, Data: TimeRemaining{Seconds: seconds}}
}

func NewChat(sender, text string) Event {
	return Event{Kind: KindChat, Data: Chat{Sender: sender, Text: text}}
}

func NewSessionEnd() Event {
	return Event{Kind: KindSessionEnd, Data: SessionEnd{}}
}

func NewFinalImage(filename string, image []byte) Event {
	return Event{Kind: KindFinalImage, Data: FinalImage{Filename: filename, Image: image}}
}

func NewError(msg string) Event {
	return Event{Kind: KindError, Data: Error{Error: msg}}
}

// Publisher mirrors broadcast events to something outside the process.
type Publisher interface {
	Publish(ctx context.Context, session string, ev Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
