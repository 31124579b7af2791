package record

import "time"

// Record lengths for the identity schemas.
const (
	AuthorizationLen = discriminatorLen + idLen + idLen + 1 + 1 + 1 + 8
	IdentityLen      = discriminatorLen + idLen + 1
)

var (
	authorizationDisc = Discriminator("WhitelistEntry")
	identityDisc      = Discriminator("SovereignIdentity")
)

// Authorization is a KYC whitelist entry.
type Authorization struct {
	Owner        ID
	Registry     ID
	Active       bool
	Level        uint8
	Jurisdiction uint8
	ExpiresAt    time.Time
}

// DecodeAuthorization decodes a whitelist entry.
func DecodeAuthorization(data []byte) (Authorization, error) {
	if err := requireLen(data, AuthorizationLen, "authorization"); err != nil {
		return Authorization{}, err
	}
	return Authorization{
		Owner:        readID(data, 8),
		Registry:     readID(data, 40),
		Active:       data[72] != 0,
		Level:        data[73],
		Jurisdiction: data[74],
		ExpiresAt:    readTime(data, 75),
	}, nil
}

// EncodeAuthorization encodes a whitelist entry.
func EncodeAuthorization(a Authorization) []byte {
	w := newWriter(authorizationDisc, AuthorizationLen)
	w.id(a.Owner)
	w.id(a.Registry)
	w.bool(a.Active)
	w.u8(a.Level)
	w.u8(a.Jurisdiction)
	w.time(a.ExpiresAt)
	return w.buf
}

// Identity carries the tier code of an identity. Fields after the tier byte are ignored.
type Identity struct {
	Owner ID
	Tier  uint8
}

// DecodeIdentity decodes an identity record.
func DecodeIdentity(data []byte) (Identity, error) {
	if err := requireLen(data, IdentityLen, "identity"); err != nil {
		return Identity{}, err
	}
	return Identity{Owner: readID(data, 8), Tier: data[40]}, nil
}

// EncodeIdentity encodes an identity record.
func EncodeIdentity(i Identity) []byte {
	w := newWriter(identityDisc, IdentityLen)
	w.id(i.Owner)
	w.u8(i.Tier)
	return w.buf
}
