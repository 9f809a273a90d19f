package superframe

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
)

type nopDecoder struct{}

func (nopDecoder) Decode(ctx context.Context, path string) (Handle, error) {
	return nil, NewDecodeError(path, errors.New("nothing to decode"))
}

func TestDecoderRegistry(t *testing.T) {
	logger := logging.NewTestLogger(t)
	name := "registry_test"
	RegisterDecoder(name, func(ctx context.Context, attributes map[string]interface{}, logger logging.Logger) (Decoder, error) {
		if attributes["broken"] == true {
			return nil, errors.New("broken attributes")
		}
		return nopDecoder{}, nil
	})
	test.That(t, DecoderLookup(name), test.ShouldNotBeNil)
	test.That(t, RegisteredDecoders(), test.ShouldContain, name)

	test.That(t, func() {
		RegisterDecoder(name, func(context.Context, map[string]interface{}, logging.Logger) (Decoder, error) {
			return nil, nil
		})
	}, test.ShouldPanic)

	dec, err := NewDecoder(context.Background(), name, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = dec.Decode(context.Background(), "a.sf")
	test.That(t, errors.Is(err, ErrDecode), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "a.sf")
	test.That(t, err.Error(), test.ShouldContainSubstring, "nothing to decode")

	_, err = NewDecoder(context.Background(), name, map[string]interface{}{"broken": true}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "broken attributes")

	test.That(t, DecoderLookup("missing"), test.ShouldBeNil)
	_, err = NewDecoder(context.Background(), "missing", nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown super frame decoder")
}
