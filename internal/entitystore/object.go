package entitystore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownType    = errors.New("unknown object type")
	ErrInvalidObject  = errors.New("invalid object")
	ErrIndexTypeClash = errors.New("index already open with a different type")
)

// Object is anything the Database can persist.
//
// ObjectID is the domain identifier (e.g. "/datasets/<identifier>"). ObjectType is
// the codec tag used to decode the persisted record.
type Object interface {
	ObjectID() string
	ObjectType() string
}

// Freezer is implemented by objects that become read-only once committed.
type Freezer interface {
	Freeze()
}

// OIDFor derives the internal key of an object from its domain identifier.
func OIDFor(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:16])
}

func objectKey(oid string) string { return "obj/" + oid }

func indexKey(name string) string { return "idx/" + name }
