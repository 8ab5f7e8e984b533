package entitystore

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

type decodeFunc func(data []byte) (Object, error)

// Registry maps type tags to decoders. Encoding is plain JSON of the object.
type Registry struct {
	decoders map[string]decodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]decodeFunc)}
}

// Register binds tag to the pointer type *E. Registering the same tag twice
// replaces the earlier decoder.
func Register[E any, T interface {
	*E
	Object
}](r *Registry, tag string) {
	r.decoders[tag] = func(data []byte) (Object, error) {
		var v T = new(E)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, errors.Wrapf(err, "decode %s", tag)
		}
		return v, nil
	}
}

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.decoders))
	for tag := range r.decoders {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) knows(tag string) bool {
	_, ok := r.decoders[tag]
	return ok
}

type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func (r *Registry) encode(obj Object) ([]byte, error) {
	tag := obj.ObjectType()
	if !r.knows(tag) {
		return nil, errors.Wrapf(ErrUnknownType, "encode %q", tag)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s %s", tag, obj.ObjectID())
	}
	return json.Marshal(envelope{Type: tag, ID: obj.ObjectID(), Data: data})
}

func (r *Registry) decode(data []byte) (Object, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	dec, ok := r.decoders[env.Type]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "decode %q", env.Type)
	}
	obj, err := dec(env.Data)
	if err != nil {
		return nil, err
	}
	if obj.ObjectID() != env.ID {
		return nil, errors.Wrapf(ErrInvalidObject, "record %s decoded to id %s", env.ID, obj.ObjectID())
	}
	return obj, nil
}
