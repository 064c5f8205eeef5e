package checkpoint

import "github.com/Sumatoshi-tech/boundcheck/pkg/persist"

// EncodeRawEnvelope builds an envelope with arbitrary header and payload.
func EncodeRawEnvelope(meta Metadata, payload []byte) ([]byte, error) {
	return persist.Marshal(envelopeCodec, envelope{Meta: meta, Payload: payload})
}
