package domain

import "time"

// SigningKey is the RSA key pair owned by exactly one client, used to sign
// that client's ID tokens. Private key material is stored AES-GCM encrypted
// and only ever decrypted inside the token issuance path.
type SigningKey struct {
	ClientID            string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
}
