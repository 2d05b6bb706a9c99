package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"nhooyr.io/websocket"
)

// Subprotocols offered during the websocket upgrade. The first entry is
// used when the client names none.
const (
	SubprotocolJSON = "dietpi.v1.json"
	SubprotocolCBOR = "dietpi.v1.cbor"
)

var Subprotocols = []string{SubprotocolJSON, SubprotocolCBOR}

// Codec serializes frames for one websocket subprotocol.
type Codec interface {
	Name() string
	MessageType() websocket.MessageType
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SubprotocolJSON }

func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after message")
	}
	return nil
}

// cborCodec uses core deterministic encoding with RFC 3339 timestamps so
// frames decode to the same shape as their JSON counterparts.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	enc, err := encOptions.EncMode()
	if err != nil {
		panic("stream: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("stream: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return SubprotocolCBOR }

func (cborCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// CodecFor returns the codec for a negotiated subprotocol, JSON when none
// was agreed.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolCBOR {
		return CBOR
	}
	return JSON
}
