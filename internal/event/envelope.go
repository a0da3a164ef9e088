package event

import (
	"errors"
	"fmt"

	"github.com/roach88/lobbysync/internal/codec"
)

// ErrUnknownKind is returned by Decode for a frame whose discriminator is not
// one of the known kinds. Receivers ignore such frames.
var ErrUnknownKind = errors.New("unknown event kind")

// Envelope is what travels over the bus: the event plus the identity of the
// process that sent it and that process's logical sequence number.
type Envelope struct {
	Origin string
	Seq    int64
	Event  Event
}

// frame is the wire shape of an Envelope.
type frame struct {
	Type    Kind             `cbor:"type"`
	Origin  string           `cbor:"origin"`
	Seq     int64            `cbor:"seq"`
	Payload codec.RawMessage `cbor:"payload"`
}

// Encode serializes an envelope into a bus frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == nil {
		return nil, errors.New("encode envelope: nil event")
	}
	payload, err := codec.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", env.Event.Kind(), err)
	}
	data, err := codec.Marshal(frame{
		Type:    env.Event.Kind(),
		Origin:  env.Origin,
		Seq:     env.Seq,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", env.Event.Kind(), err)
	}
	return data, nil
}

// Decode parses a bus frame. Unknown kinds yield ErrUnknownKind; any other
// error means the frame was malformed.
func Decode(data []byte) (Envelope, error) {
	var f frame
	if err := codec.Unmarshal(data, &f); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}

	ev, err := decodePayload(f.Type, f.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Origin: f.Origin, Seq: f.Seq, Event: ev}, nil
}

func decodePayload(kind Kind, payload []byte) (Event, error) {
	switch kind {
	case KindSyncRequest:
		return SyncRequest{}, nil
	case KindSyncResponse:
		return decodeAs[SyncResponse](kind, payload)
	case KindNewPost:
		return decodeAs[NewPost](kind, payload)
	case KindNewReply:
		return decodeAs[NewReply](kind, payload)
	case KindDeletePost:
		return decodeAs[DeletePost](kind, payload)
	case KindMetricUpdate:
		return decodeAs[MetricUpdate](kind, payload)
	case KindNewMessage:
		return decodeAs[NewMessage](kind, payload)
	case KindProfileUplink:
		return decodeAs[ProfileUplink](kind, payload)
	case KindFollowUpdate:
		return decodeAs[FollowUpdate](kind, payload)
	case KindLiveViewHeartbeat:
		return decodeAs[LiveViewHeartbeat](kind, payload)
	case KindPresence:
		return decodeAs[Presence](kind, payload)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func decodeAs[T Event](kind Kind, payload []byte) (Event, error) {
	var ev T
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode %s: empty payload", kind)
	}
	if err := codec.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ev, nil
}
