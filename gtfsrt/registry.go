package gtfsrt

import (
	"fmt"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// FeedMessageName is the fully qualified name of the GTFS-RT root message.
var FeedMessageName = (&gtfsrtpb.FeedMessage{}).ProtoReflect().Descriptor().FullName()

// Registry resolves message names to their generated types.
// Build one at startup and hand it to every Decoder.
type Registry struct {
	types *protoregistry.Types
}

// NewRegistry returns a registry holding the GTFS-RT FeedMessage type.
func NewRegistry() (*Registry, error) {
	r := &Registry{types: new(protoregistry.Types)}
	if err := r.Register(&gtfsrtpb.FeedMessage{}); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds the type of m to the registry.
func (r *Registry) Register(m proto.Message) error {
	mt := m.ProtoReflect().Type()
	if err := r.types.RegisterMessage(mt); err != nil {
		return fmt.Errorf("register %s: %w", mt.Descriptor().FullName(), err)
	}
	return nil
}

// New allocates an empty message of the named type.
func (r *Registry) New(name protoreflect.FullName) (proto.Message, error) {
	mt, err := r.types.FindMessageByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	return mt.New().Interface(), nil
}
