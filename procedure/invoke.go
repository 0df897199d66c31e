package procedure

import (
	"context"

	"github.com/leggettc18/chirp/wire"
)

// Invoke encodes input, runs the procedure through c and decodes the result
// into the wire value domain. Page generation and live client fetches both
// go through Invoke, so they see identical values.
func Invoke(ctx context.Context, c Caller, procedure string, input any) (any, error) {
	payload, err := wire.Encode(input)
	if err != nil {
		return nil, err
	}
	out, err := c.Call(ctx, procedure, payload)
	if err != nil {
		return nil, err
	}
	return wire.Decode(out)
}

// Typed adapts a typed function into a Handler. The input is decoded from
// the wire format into *In and the result encoded back.
func Typed[In any, Out any](fn func(ctx context.Context, in *In) (Out, error)) Handler {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		var in In
		if len(input) > 0 {
			v, err := wire.Decode(input)
			if err != nil {
				return nil, err
			}
			if v != nil {
				if err := wire.Convert(v, &in); err != nil {
					return nil, err
				}
			}
		}
		out, err := fn(ctx, &in)
		if err != nil {
			return nil, err
		}
		return wire.Encode(out)
	}
}
