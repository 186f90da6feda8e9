// Package decode implements the protocol decoders (§4.7): stateful
// byte-stream-to-StreamChunk transformers for SSE, NDJSON, and AWS
// event-stream framing. Each decoder carries its own residual byte
// buffer so Feed is pure with respect to that buffer — callers may
// split the underlying transport read at any byte boundary and get the
// same chunk sequence as if it had been split at frame boundaries.
package decode

import (
	"bytes"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/exrt/exllm/pkg/types"
)

// Decoder turns raw transport bytes into canonical StreamChunks.
type Decoder interface {
	Feed(chunk []byte) ([]types.StreamChunk, error)
}

// Mapper turns one decoded protocol event into a StreamChunk. ok=false
// means the event carried no user-visible content (keep-alive, a
// metadata-only SSE event, a ping) and should be dropped silently.
type Mapper func(eventType string, payload []byte) (chunk types.StreamChunk, ok bool, err error)

const (
	ssePrefixData  = "data: "
	ssePrefixEvent = "event: "
	sseDone        = "[DONE]"
)

// SSEDecoder decodes Server-Sent Events. It splits on blank-line event
// boundaries ("\n\n") regardless of how the underlying reads are
// chunked, accumulating "data:" lines per event and passing the
// concatenated payload (plus the last seen "event:" name) to Mapper.
type SSEDecoder struct {
	Map  Mapper
	buf  bytes.Buffer
}

// NewSSEDecoder builds a decoder using the given event mapper.
func NewSSEDecoder(mapper Mapper) *SSEDecoder {
	return &SSEDecoder{Map: mapper}
}

func (d *SSEDecoder) Feed(chunk []byte) ([]types.StreamChunk, error) {
	d.buf.Write(chunk)
	var out []types.StreamChunk

	for {
		data := d.buf.Bytes()
		idx := bytes.Index(data, []byte("\n\n"))
		if idx < 0 {
			break
		}
		event := data[:idx]
		d.buf.Next(idx + 2)

		eventType := ""
		var payload bytes.Buffer
		for _, line := range bytes.Split(event, []byte("\n")) {
			line = bytes.TrimRight(line, "\r")
			switch {
			case bytes.HasPrefix(line, []byte(ssePrefixEvent)):
				eventType = string(bytes.TrimPrefix(line, []byte(ssePrefixEvent)))
			case bytes.HasPrefix(line, []byte(ssePrefixData)):
				if payload.Len() > 0 {
					payload.WriteByte('\n')
				}
				payload.Write(bytes.TrimPrefix(line, []byte(ssePrefixData)))
			}
		}
		if payload.Len() == 0 {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(payload.Bytes()), []byte(sseDone)) {
			out = append(out, types.StreamChunk{FinishReason: "stop"})
			continue
		}

		sc, ok, err := d.Map(eventType, payload.Bytes())
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

// NDJSONDecoder decodes newline-delimited JSON (Ollama's /api/chat
// wire format). No chunk is emitted until a '\n' is observed, so a
// transport read that splits mid-line is tolerated.
type NDJSONDecoder struct {
	Map Mapper
	buf bytes.Buffer
}

// NewNDJSONDecoder builds a decoder using the given line mapper.
func NewNDJSONDecoder(mapper Mapper) *NDJSONDecoder {
	return &NDJSONDecoder{Map: mapper}
}

func (d *NDJSONDecoder) Feed(chunk []byte) ([]types.StreamChunk, error) {
	d.buf.Write(chunk)
	var out []types.StreamChunk

	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(data[:idx])
		d.buf.Next(idx + 1)
		if len(line) == 0 {
			continue
		}

		sc, ok, err := d.Map("", line)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

// EventStreamDecoder decodes AWS event-stream framed messages
// (Bedrock's invoke-with-response-stream). It buffers fed bytes and
// repeatedly attempts to decode a full frame; on a short read it keeps
// the unconsumed tail for the next Feed call. The event type comes
// from the frame's ":event-type" header when present, falling back to
// ":message-type" (e.g. "exception" frames from Bedrock).
type EventStreamDecoder struct {
	Map Mapper
	buf bytes.Buffer
}

// NewEventStreamDecoder builds a decoder using the given message mapper.
func NewEventStreamDecoder(mapper Mapper) *EventStreamDecoder {
	return &EventStreamDecoder{Map: mapper}
}

func (d *EventStreamDecoder) Feed(chunk []byte) ([]types.StreamChunk, error) {
	d.buf.Write(chunk)
	var out []types.StreamChunk
	decoder := eventstream.NewDecoder()
	scratch := make([]byte, 64*1024)

	for {
		remaining := d.buf.Bytes()
		if len(remaining) == 0 {
			break
		}
		r := bytes.NewReader(remaining)
		msg, err := decoder.Decode(r, scratch)
		if err != nil {
			// Not enough bytes yet for a full frame; keep what's
			// buffered and wait for the next Feed.
			break
		}
		consumed := len(remaining) - r.Len()
		d.buf.Next(consumed)

		eventType := headerString(msg.Headers, ":event-type")
		if eventType == "" {
			eventType = headerString(msg.Headers, ":message-type")
		}

		sc, ok, err := d.Map(eventType, msg.Payload)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func headerString(headers eventstream.Headers, name string) string {
	for _, h := range headers {
		if h.Name == name {
			if s, ok := h.Value.Get().(string); ok {
				return s
			}
		}
	}
	return ""
}
