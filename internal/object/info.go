package object

import (
	"strings"
	"time"
)

// ObjectIDHashType is the hash algorithm whose digest doubles as the
// object's primary identity (object_id).
const ObjectIDHashType = "sha256"

// Info is the JSON record describing the object a job request or result is
// about. It is intentionally flat and typed — the only untyped extension
// points in the system are Metadata and the result payload, both confined
// to their own boundaries.
type Info struct {
	Org            string            `json:"org"`
	ObjectID       string            `json:"object_id"`
	ObjectType     string            `json:"object_type"`
	ObjectSubtype  *string           `json:"object_subtype"`
	RecursionLevel uint32            `json:"recursion_level"`
	Size           uint64            `json:"size"`
	Hashes         map[string]string `json:"hashes"`
	Ctime          float64           `json:"ctime"`
	Entropy        *float64          `json:"entropy,omitempty"`
}

// zeroDigests holds the all-zero placeholder hash of the correct length for
// each algorithm, used for SKIPPED nodes.
var zeroDigests = map[string]string{
	"md5":    strings.Repeat("0", 32),
	"sha1":   strings.Repeat("0", 40),
	"sha256": strings.Repeat("0", 64),
	"sha512": strings.Repeat("0", 128),
}

// NewFailed returns a placeholder Info for a child that could not be
// produced (a SKIPPED node): all-zero hashes, size zero, object_type
// "SKIPPED".
func NewFailed(org string, recursionLevel uint32, ctime float64) Info {
	hashes := make(map[string]string, len(zeroDigests))
	for algo, digest := range zeroDigests {
		hashes[algo] = digest
	}
	return Info{
		Org:            org,
		ObjectID:       hashes[ObjectIDHashType],
		ObjectType:     "SKIPPED",
		RecursionLevel: recursionLevel,
		Size:           0,
		Hashes:         hashes,
		Ctime:          ctime,
	}
}

// IsSkipped reports whether this Info describes a SKIPPED placeholder.
func (i Info) IsSkipped() bool { return i.ObjectType == "SKIPPED" }

// IsEmpty reports whether the object payload has zero size.
func (i Info) IsEmpty() bool { return i.Size == 0 }

// WorkCreationTime converts Ctime (floating seconds since the Unix epoch)
// into a time.Time, used to compute end-to-end work latency.
func (i Info) WorkCreationTime() time.Time {
	secs := int64(i.Ctime)
	nanos := int64((i.Ctime - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}

// RequestQueue returns the name of the type-specific request queue this
// object's next processing step should be published to.
func (i Info) RequestQueue() string {
	return QueueForType(i.ObjectType)
}

// SetType splits a "type/subtype" string (as produced by a worker) into
// ObjectType and ObjectSubtype.
func (i *Info) SetType(objectType string) {
	main, sub, found := strings.Cut(objectType, "/")
	i.ObjectType = main
	if found {
		i.ObjectSubtype = &sub
	} else {
		i.ObjectSubtype = nil
	}
}

// QueueForType maps an object type to the AMQP request queue its worker
// pool consumes from. The convention is lowercase-type plus a fixed suffix,
// matching the per-type "request" queues named in the broker topology.
func QueueForType(objectType string) string {
	return strings.ToLower(objectType) + "_request"
}
