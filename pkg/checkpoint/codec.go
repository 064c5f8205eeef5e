package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/persist"
)

// FormatVersion is the current checkpoint format version. Checkpoints with
// any other version are rejected.
const FormatVersion = 1

// Extension is the file extension of checkpoint files.
const Extension = ".ckpt"

// Sentinel errors for checkpoint decoding.
var (
	ErrVersionMismatch = outcome.Sentinel(outcome.ConfigurationError, "checkpoint format version mismatch")
	ErrCorrupt         = outcome.Sentinel(outcome.ConfigurationError, "checkpoint is corrupt")
	ErrNotFound        = outcome.Sentinel(outcome.ConfigurationError, "checkpoint not found")
	ErrInvalidState    = errors.New("invalid checkpoint state")
)

type envelope struct {
	Meta    Metadata
	Payload []byte
}

var (
	envelopeCodec = persist.NewLZ4Codec(persist.NewGobCodec())
	payloadCodec  = persist.NewGobCodec()
)

// Encode serializes state into a self-describing, checksummed envelope.
func Encode(state *State) ([]byte, error) {
	if state == nil || state.Variant == "" {
		return nil, fmt.Errorf("%w: missing variant", ErrInvalidState)
	}

	payload, err := persist.Marshal(payloadCodec, state)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint payload: %w", err)
	}

	sum := sha256.Sum256(payload)

	env := envelope{
		Meta: Metadata{
			Version:     FormatVersion,
			Variant:     state.Variant,
			Model:       state.Model,
			EntryPoint:  state.EntryPoint,
			ProjectName: state.ProjectName,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			Checksum:    hex.EncodeToString(sum[:]),
			Frontier:    len(state.Frontier),
			Executions:  state.Counters.Executions,
		},
		Payload: payload,
	}

	data, err := persist.Marshal(envelopeCodec, env)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint envelope: %w", err)
	}

	return data, nil
}

// DecodeMetadata reads only the envelope header.
func DecodeMetadata(data []byte) (*Metadata, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	return &env.Meta, nil
}

// Decode verifies the version and checksum of data and returns the state.
func Decode(data []byte) (*State, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Meta.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var state State

	err = persist.Unmarshal(payloadCodec, env.Payload, &state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if state.Variant != env.Meta.Variant {
		return nil, fmt.Errorf("%w: variant %q does not match header %q", ErrCorrupt, state.Variant, env.Meta.Variant)
	}

	return &state, nil
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var env envelope

	err := persist.Unmarshal(envelopeCodec, data, &env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if env.Meta.Version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, env.Meta.Version, FormatVersion)
	}

	return &env, nil
}
