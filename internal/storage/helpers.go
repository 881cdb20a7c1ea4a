package storage

import (
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// fingerprintFromHex decodes a hex-encoded fingerprint column back into an
// ids.CredentialFingerprint. An empty or malformed value (used for the
// nullable signed_by_fp column on self-signed root credentials) decodes to
// the zero fingerprint rather than erroring.
func fingerprintFromHex(s string) ids.CredentialFingerprint {
	var fp ids.CredentialFingerprint
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != len(fp) {
		return fp
	}
	copy(fp[:], decoded)
	return fp
}

// parseUserID reassembles an ids.UserId from its stored uuid column and an
// already-parsed domain.
func parseUserID(rawUUID string, domain fqdn.Fqdn) (ids.UserId, error) {
	parsed, err := uuid.Parse(rawUUID)
	if err != nil {
		return ids.UserId{}, err
	}
	return ids.UserId{UUID: parsed, Domain: domain}, nil
}
