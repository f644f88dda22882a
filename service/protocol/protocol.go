// Package protocol defines the message envelopes exchanged between the
// scheduler and compute workers. Every message is encoded as
// {"kind": ..., "id": ..., "payload": ...}; id correlates a response with the
// request that caused it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
)

// Kind identifies a message type.
type Kind string

const (
	// KindStart loads a layer into a worker.
	KindStart Kind = "start"
	// KindForward runs the kernel against the loaded layer.
	KindForward Kind = "forward"
	// KindLog carries a human readable acknowledgement.
	KindLog Kind = "log"
	// KindResult carries the output volume of a forward request.
	KindResult Kind = "result"
	// KindFault reports a failed request.
	KindFault Kind = "fault"
)

// FaultCode classifies a fault.
type FaultCode string

const (
	FaultLayerNotLoaded FaultCode = "LayerNotLoaded"
	FaultWorker         FaultCode = "WorkerFault"
	FaultTimeout        FaultCode = "Timeout"
	FaultInvalidVolume  FaultCode = "InvalidVolumeShape"
)

var (
	// ErrLayerNotLoaded is reported when forward is requested before start.
	ErrLayerNotLoaded = errors.New("worker: layer not loaded")
	// ErrWorkerFault is reported when a worker fails to produce a result.
	ErrWorkerFault = errors.New("worker: fault")
	// ErrTimeout is reported when no response arrives within the deadline.
	ErrTimeout = errors.New("worker: request timed out")
)

// Request is sent to a worker.
type Request struct {
	Kind   Kind
	ID     string
	Layer  *layer.Layer
	Volume *volume.Volume
}

// Fault describes a failed request.
type Fault struct {
	Code    FaultCode `json:"code"`
	Message string    `json:"message"`
}

// Response is emitted by a worker.
type Response struct {
	Kind     Kind
	ID       string
	WorkerID int
	Text     string
	Volume   *volume.Volume
	Fault    *Fault
}

// NewStart returns a start request.
func NewStart(id string, l *layer.Layer) *Request {
	return &Request{Kind: KindStart, ID: id, Layer: l}
}

// NewForward returns a forward request.
func NewForward(id string, v *volume.Volume) *Request {
	return &Request{Kind: KindForward, ID: id, Volume: v}
}

// NewLog returns a log response.
func NewLog(id string, workerID int, text string) *Response {
	return &Response{Kind: KindLog, ID: id, WorkerID: workerID, Text: text}
}

// NewResult returns a result response.
func NewResult(id string, workerID int, v *volume.Volume) *Response {
	return &Response{Kind: KindResult, ID: id, WorkerID: workerID, Volume: v}
}

// NewFault returns a fault response for err, classifying it by sentinel.
func NewFault(id string, workerID int, err error) *Response {
	code := FaultWorker
	switch {
	case errors.Is(err, ErrLayerNotLoaded):
		code = FaultLayerNotLoaded
	case errors.Is(err, ErrTimeout):
		code = FaultTimeout
	case errors.Is(err, volume.ErrInvalidShape):
		code = FaultInvalidVolume
	}
	return &Response{Kind: KindFault, ID: id, WorkerID: workerID, Fault: &Fault{Code: code, Message: err.Error()}}
}

// Err returns the error carried by a fault response, nil otherwise.
func (r *Response) Err() error {
	if r.Kind != KindFault || r.Fault == nil {
		return nil
	}
	var sentinel error
	switch r.Fault.Code {
	case FaultLayerNotLoaded:
		sentinel = ErrLayerNotLoaded
	case FaultTimeout:
		sentinel = ErrTimeout
	case FaultInvalidVolume:
		sentinel = volume.ErrInvalidShape
	default:
		sentinel = ErrWorkerFault
	}
	return fmt.Errorf("%w: %s", sentinel, r.Fault.Message)
}

// Terminal reports whether the response completes its request.
func (r *Response) Terminal() bool {
	return r.Kind == KindResult || r.Kind == KindFault
}

type envelope struct {
	Kind     Kind            `json:"kind"`
	ID       string          `json:"id,omitempty"`
	WorkerID int             `json:"worker,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the request as a {kind, id, payload} envelope.
func (r Request) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch r.Kind {
	case KindStart:
		payload = r.Layer
	case KindForward:
		payload = r.Volume
	default:
		return nil, fmt.Errorf("unsupported request kind: %q", r.Kind)
	}
	return marshalEnvelope(r.Kind, r.ID, 0, payload)
}

// UnmarshalJSON decodes a {kind, id, payload} envelope.
func (r *Request) UnmarshalJSON(data []byte) error {
	env := &envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return err
	}
	*r = Request{Kind: env.Kind, ID: env.ID}
	switch env.Kind {
	case KindStart:
		r.Layer = &layer.Layer{}
		return unmarshalPayload(env, r.Layer)
	case KindForward:
		r.Volume = &volume.Volume{}
		return unmarshalPayload(env, r.Volume)
	}
	return fmt.Errorf("unsupported request kind: %q", env.Kind)
}

// MarshalJSON encodes the response as a {kind, id, payload} envelope.
func (r Response) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch r.Kind {
	case KindLog:
		payload = r.Text
	case KindResult:
		payload = r.Volume
	case KindFault:
		payload = r.Fault
	default:
		return nil, fmt.Errorf("unsupported response kind: %q", r.Kind)
	}
	return marshalEnvelope(r.Kind, r.ID, r.WorkerID, payload)
}

// UnmarshalJSON decodes a {kind, id, payload} envelope.
func (r *Response) UnmarshalJSON(data []byte) error {
	env := &envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return err
	}
	*r = Response{Kind: env.Kind, ID: env.ID, WorkerID: env.WorkerID}
	switch env.Kind {
	case KindLog:
		return unmarshalPayload(env, &r.Text)
	case KindResult:
		r.Volume = &volume.Volume{}
		return unmarshalPayload(env, r.Volume)
	case KindFault:
		r.Fault = &Fault{}
		return unmarshalPayload(env, r.Fault)
	}
	return fmt.Errorf("unsupported response kind: %q", env.Kind)
}

func marshalEnvelope(kind Kind, id string, workerID int, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %v payload: %w", kind, err)
	}
	return json.Marshal(&envelope{Kind: kind, ID: id, WorkerID: workerID, Payload: data})
}

func unmarshalPayload(env *envelope, target interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("missing %v payload", env.Kind)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %v payload: %w", env.Kind, err)
	}
	return nil
}
