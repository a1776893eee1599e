package database

import (
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

// PayloadCodec encodes pending record payloads. Canonical CBOR keeps the
// stored bytes stable for identical payloads.
type PayloadCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewPayloadCodec returns the codec used for pending_records.payload
func NewPayloadCodec() (*PayloadCodec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}
	return &PayloadCodec{enc: em, dec: dm}, nil
}

func (c *PayloadCodec) ContentType() string { return "application/cbor" }

func (c *PayloadCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

func (c *PayloadCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
