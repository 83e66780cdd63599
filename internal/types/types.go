package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/DoyleJ11/pixel-battle-backend/internal/canvas"
	wire "github.com/DoyleJ11/pixel-battle-backend/pkg/types"
)

var ErrBadJSON = errors.New("bad json")
var ErrUnknownType = errors.New("unknown type")
var ErrBadPayload = errors.New("bad payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Signup struct {
	Name string `json:"name" validate:"required,max=32"`
}

type Place struct {
	X     *int   `json:"x" validate:"required"`
	Y     *int   `json:"y" validate:"required"`
	Color string `json:"color" validate:"required,max=16"`
}

type Chat struct {
	Text string `json:"text" validate:"required,max=500"`
}

type Save struct{}

// PlaceIntent is a decoded place message with its color canonicalised.
// Coordinates are not range checked here; the session drops those.
type PlaceIntent struct {
	X, Y  int
	Color canvas.Color
}

// Decode parses one inbound frame into Signup, PlaceIntent, Chat or Save.
func Decode(raw []byte) (any, error) {
	var cm ClientMessage
	if err := json.Unmarshal(raw, &cm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}

	switch cm.Type {
	case wire.MsgSignup:
		var m Signup
		if err := decodeData(cm.Data, &m); err != nil {
			return nil, err
		}
		return m, nil

	case wire.MsgPlace:
		var m Place
		if err := decodeData(cm.Data, &m); err != nil {
			return nil, err
		}
		c, err := canvas.ParseColor(m.Color)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return PlaceIntent{X: *m.X, Y: *m.Y, Color: c}, nil

	case wire.MsgChat:
		var m Chat
		if err := decodeData(cm.Data, &m); err != nil {
			return nil, err
		}
		return m, nil

	case wire.MsgSave:
		return Save{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cm.Type)
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
