package superframe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
)

// ErrDecode matches every failure reported by a Decoder.
var ErrDecode = errors.New("super frame decode failed")

// DecodeError wraps the cause of a failed decode.
type DecodeError struct {
	Path string
	Err  error
}

// NewDecodeError returns a DecodeError for path.
func NewDecodeError(path string, err error) error {
	return &DecodeError{Path: path, Err: err}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %q: %v", ErrDecode, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecode) hold.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// A Handle owns one decoded super frame. Release must be called exactly once; the Frame is
// invalid afterwards.
type Handle interface {
	Frame() *Frame
	Release() error
}

// A Decoder decodes super frame files. Each successful Decode returns a new Handle that the
// caller owns. Decoders must be safe for concurrent use.
type Decoder interface {
	Decode(ctx context.Context, path string) (Handle, error)
}

// A CreateDecoder creates a decoder from free-form attributes.
type CreateDecoder func(ctx context.Context, attributes map[string]interface{}, logger logging.Logger) (Decoder, error)

var (
	decoderRegistryMu sync.RWMutex
	decoderRegistry   = map[string]CreateDecoder{}
)

// RegisterDecoder registers a decoder name to a creator.
func RegisterDecoder(name string, creator CreateDecoder) {
	decoderRegistryMu.Lock()
	defer decoderRegistryMu.Unlock()
	_, old := decoderRegistry[name]
	if old {
		panic(errors.Errorf("trying to register two decoders with same name %s", name))
	}
	decoderRegistry[name] = creator
}

// DecoderLookup looks up a decoder creator by the given name. nil is returned if
// there is no creator registered.
func DecoderLookup(name string) CreateDecoder {
	decoderRegistryMu.RLock()
	defer decoderRegistryMu.RUnlock()
	return decoderRegistry[name]
}

// RegisteredDecoders returns the sorted names of every registered decoder.
func RegisteredDecoders() []string {
	decoderRegistryMu.RLock()
	defer decoderRegistryMu.RUnlock()
	names := make([]string, 0, len(decoderRegistry))
	for name := range decoderRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDecoder creates the decoder registered under name.
func NewDecoder(ctx context.Context, name string, attributes map[string]interface{}, logger logging.Logger) (Decoder, error) {
	creator := DecoderLookup(name)
	if creator == nil {
		return nil, errors.Errorf("unknown super frame decoder %q, registered decoders are %v", name, RegisteredDecoders())
	}
	dec, err := creator(ctx, attributes, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating %q decoder", name)
	}
	return dec, nil
}
