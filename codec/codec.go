// Package codec turns stored blobs into cache values and back.
//
// A blob is an optionally compressed frame around an encoded value. The
// blobstore loader decompresses the frame and decodes it with a Codec.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name, as used in
// configuration files.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json", "":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// MustMarshal is a helper for tests and fixtures.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}

// Encode marshals v and wraps it in a frame compressed with ct.
func Encode(c Codec, ct Compression, v any) ([]byte, error) {
	raw, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", c.Name(), err)
	}
	return Compress(raw, ct)
}

// Decode unwraps a frame produced by Encode and unmarshals it into v.
func Decode(c Codec, data []byte, v any) error {
	raw, err := Decompress(data)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", c.Name(), err)
	}
	return nil
}
