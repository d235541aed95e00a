package biometric

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Kind identifies the backend family that produced a face reference.
type Kind string

const (
	KindLocal     Kind = "local"
	KindRemote    Kind = "remote"
	KindSimulated Kind = "simulated"
)

// ParseKind accepts the configuration spelling of a provider.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLocal, KindRemote, KindSimulated:
		return k, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// FaceReference is an enrolled face representation tagged with the provider
// kind that produced it. The payload is only interpreted by that provider.
type FaceReference struct {
	Provider Kind
	Payload  []byte
}

// NewVectorReference encodes an embedding as little-endian float32.
func NewVectorReference(kind Kind, vec []float32) FaceReference {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return FaceReference{Provider: kind, Payload: buf}
}

// NewHandleReference wraps a backend-assigned identifier.
func NewHandleReference(kind Kind, handle string) FaceReference {
	return FaceReference{Provider: kind, Payload: []byte(handle)}
}

func (r FaceReference) IsZero() bool {
	return r.Provider == "" && len(r.Payload) == 0
}

// Vector decodes a vector payload. Only Local references carry one.
func (r FaceReference) Vector() ([]float32, error) {
	if r.Provider != KindLocal {
		return nil, fmt.Errorf("%w: %s references carry no vector", ErrProviderMismatch, r.Provider)
	}
	return decodeVector(r.Payload)
}

// Handle returns the payload of a Remote reference.
func (r FaceReference) Handle() (string, error) {
	if r.Provider != KindRemote {
		return "", fmt.Errorf("%w: %s references carry no handle", ErrProviderMismatch, r.Provider)
	}
	if len(r.Payload) == 0 {
		return "", ErrCorruptReference
	}
	return string(r.Payload), nil
}

// String renders the reference as "<kind>:<base64 payload>" for logs and
// text columns.
func (r FaceReference) String() string {
	return string(r.Provider) + ":" + base64.StdEncoding.EncodeToString(r.Payload)
}

// ParseReference is the inverse of String.
func ParseReference(s string) (FaceReference, error) {
	kindStr, payload, ok := strings.Cut(s, ":")
	if !ok {
		return FaceReference{}, fmt.Errorf("%w: missing provider tag", ErrCorruptReference)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return FaceReference{}, fmt.Errorf("%w: %v", ErrCorruptReference, err)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return FaceReference{}, fmt.Errorf("%w: %v", ErrCorruptReference, err)
	}
	return FaceReference{Provider: kind, Payload: data}, nil
}

func decodeVector(payload []byte) ([]float32, error) {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return nil, fmt.Errorf("%w: vector payload of %d bytes", ErrCorruptReference, len(payload))
	}
	vec := make([]float32, len(payload)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return vec, nil
}

// checkKind guards a comparison against references from another backend.
func checkKind(ref FaceReference, want Kind) error {
	if ref.Provider != want {
		return fmt.Errorf("%w: got %q, provider is %q", ErrProviderMismatch, ref.Provider, want)
	}
	return nil
}
