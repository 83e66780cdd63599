// Package types is the wire vocabulary shared with clients.
//
// Every frame is one JSON object of the form {"type": <kind>, "data": <payload>}.
//
// Client -> Server
//
//	signup:  {"name": string}
//	place:   {"x": number, "y": number, "color": "#RRGGBB"}
//	chat:    {"text": string}
//	save:    {} (data may be omitted)
//
// Server -> Client
//
//	pixelUpdate:    {"x": number, "y": number, "color": "#RRGGBB"}
//	canvasSnapshot: {"pixels": [{"x","y","color"}, ...]}  // colored cells only, row-major
//	timeRemaining:  {"seconds": number}
//	chat:           {"sender": string, "text": string}
//	sessionEnd:     {}
//	finalImage:     {"filename": string, "image": base64 PNG}
//	error:          {"error": string}
package types

// Client -> Server kinds.
const (
	MsgSignup = "signup"
	MsgPlace  = "place"
	MsgChat   = "chat"
	MsgSave   = "save"
)

// Server -> Client kinds.
const (
	MsgPixelUpdate    = "pixelUpdate"
	MsgCanvasSnapshot = "canvasSnapshot"
	MsgTimeRemaining  = "timeRemaining"
	MsgSessionEnd     = "sessionEnd"
	MsgFinalImage     = "finalImage"
	MsgError          = "error"
)

// SystemSender is the chat sender name used for join and leave notices.
const SystemSender = "PixelBattle"
