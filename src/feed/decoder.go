package feed

// Decoder converts a raw transport payload into a typed Item. Parsing the
// wire format belongs to the transport collaborator; the reconciler only
// sees the typed result or a decode failure, which it drops.
type Decoder interface {
	Decode(raw []byte) (*Item, error)
}

// JSONDecoder decodes JSON-encoded items. If the payload does not carry an
// intrinsic id, a content hash is computed so that identical payloads map to
// the same identity.
type JSONDecoder struct{}

// NewJSONDecoder ...
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode implements the Decoder interface.
func (d *JSONDecoder) Decode(raw []byte) (*Item, error) {
	item := new(Item)
	if err := item.Unmarshal(raw); err != nil {
		return nil, err
	}

	if item.ID == "" {
		hash, err := item.Hash()
		if err != nil {
			return nil, err
		}
		item.ID = hash
	}

	return item, nil
}
