package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/hypebeast/go-osc/osc"
)

var (
	// ErrMalformed is returned when a datagram is not a valid OSC packet.
	ErrMalformed = errors.New("malformed packet")
	// ErrUnknownAddress is returned for address patterns outside the protocol.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrArgumentMismatch is returned when arguments do not match the address schema.
	ErrArgumentMismatch = errors.New("argument mismatch")
	// ErrUnknownKind is returned when a record has no creation message.
	ErrUnknownKind = errors.New("no message for record kind")
)

// Encode serializes m as an OSC message.
func Encode(m Message) ([]byte, error) {
	data, err := osc.NewMessage(m.Address(), m.args()...).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Address(), err)
	}
	return data, nil
}

// Decode parses one datagram. A bundle yields every message it contains,
// in order; the first message that fails to decode aborts the rest.
func Decode(payload []byte) ([]Message, error) {
	packet, err := osc.ParsePacket(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if packet == nil {
		// neither a message nor a bundle
		return nil, fmt.Errorf("%w: no address or bundle tag", ErrMalformed)
	}

	var raw []*osc.Message
	collect(packet, &raw)

	out := make([]Message, 0, len(raw))
	for _, m := range raw {
		msg, err := decodeMessage(m)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func collect(p osc.Packet, out *[]*osc.Message) {
	switch v := p.(type) {
	case *osc.Message:
		*out = append(*out, v)
	case *osc.Bundle:
		*out = append(*out, v.Messages...)
		for _, b := range v.Bundles {
			collect(b, out)
		}
	}
}

var decoders = map[string]func(r *argReader) Message{
	AddrPeerUp: func(r *argReader) Message {
		return PeerUp{Addr: r.i64(), Port: r.i32()}
	},
	AddrPeerDown: func(r *argReader) Message {
		return PeerDown{Addr: r.i64(), Port: r.i32()}
	},
	AddrPeerText: func(r *argReader) Message {
		return PeerText{Addr: r.i64(), Port: r.i32(), Text: r.str()}
	},
	AddrMousePosition: func(r *argReader) Message {
		return CursorPosition{Port: r.i32(), X: r.f32(), Y: r.f32(), Pressed: r.flag()}
	},
	AddrPad: func(r *argReader) Message {
		return PadCreate{ID: r.str(), X: r.f32(), Y: r.f32(), Radius: r.f32()}
	},
	AddrPadText: func(r *argReader) Message {
		return PadText{ID: r.str(), Text: r.str()}
	},
	AddrPlucker: func(r *argReader) Message {
		return PluckerSpawn{PathID: r.str()}
	},
	AddrCurvedPath: func(r *argReader) Message {
		return CurvedPathCreate{
			ID:          r.str(),
			PadID:       r.str(),
			StartAngle:  r.f32(),
			StartRadius: r.f32(),
			EndAngle:    r.f32(),
			EndRadius:   r.f32(),
		}
	},
	AddrStraightPath: func(r *argReader) Message {
		return StraightPathCreate{
			ID: r.str(), PadID: r.str(),
			X1: r.f32(), Y1: r.f32(),
			X2: r.f32(), Y2: r.f32(),
		}
	},
	AddrString: func(r *argReader) Message {
		return StringCreate{
			ID: r.str(), PadID: r.str(),
			X1: r.f32(), Y1: r.f32(),
			X2: r.f32(), Y2: r.f32(),
		}
	},
	AddrDelete: func(r *argReader) Message {
		return ObjectDelete{ID: r.str()}
	},
	AddrQuery: func(r *argReader) Message {
		return ObjectQuery{}
	},
}

func decodeMessage(m *osc.Message) (Message, error) {
	decode, ok := decoders[m.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, m.Address)
	}
	r := &argReader{address: m.Address, args: m.Arguments}
	msg := decode(r)
	if err := r.finish(); err != nil {
		return nil, err
	}
	return msg, nil
}

// argReader consumes typed OSC arguments in order and remembers the first
// mismatch. Numeric types are widened where no precision is lost.
type argReader struct {
	address string
	args    []interface{}
	pos     int
	err     error
}

func (r *argReader) next(want string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	if r.pos >= len(r.args) {
		r.err = fmt.Errorf("%w: %s: missing argument %d (%s)", ErrArgumentMismatch, r.address, r.pos, want)
		return nil, false
	}
	v := r.args[r.pos]
	r.pos++
	return v, true
}

func (r *argReader) mismatch(want string, got interface{}) {
	r.err = fmt.Errorf("%w: %s: argument %d is %T, want %s", ErrArgumentMismatch, r.address, r.pos-1, got, want)
}

func (r *argReader) i64() int64 {
	v, ok := r.next("int64")
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	}
	r.mismatch("int64", v)
	return 0
}

func (r *argReader) i32() int32 {
	v, ok := r.next("int32")
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return n
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n)
		}
	}
	r.mismatch("int32", v)
	return 0
}

func (r *argReader) f32() float32 {
	v, ok := r.next("float32")
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float32:
		return n
	case float64:
		return float32(n)
	case int32:
		return float32(n)
	}
	r.mismatch("float32", v)
	return 0
}

func (r *argReader) str() string {
	v, ok := r.next("string")
	if !ok {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		r.mismatch("string", v)
	}
	return s
}

func (r *argReader) flag() bool {
	v, ok := r.next("bool")
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int32:
		return b != 0
	}
	r.mismatch("bool", v)
	return false
}

func (r *argReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.args) {
		return fmt.Errorf("%w: %s: %d extra arguments", ErrArgumentMismatch, r.address, len(r.args)-r.pos)
	}
	return nil
}
