package app

import (
	"fmt"
	"log/slog"

	"github.com/initiumportal/stance/pkg/cryptox"
	"github.com/initiumportal/stance/pkg/jwtx"
)

const sessionKeySize = 64

// LinkKeys signs and verifies the JWTs embedded in emailed links.
type LinkKeys struct {
	Signer   *jwtx.EdDSASigner
	Verifier *jwtx.EdDSAVerifier
	KeySet   *jwtx.KeySet
}

// InitLinkKeys loads the Ed25519 link signing key, generating it on first
// start. Links issued before a key change stop verifying.
func InitLinkKeys(cfg Config, logger *slog.Logger) (*LinkKeys, error) {
	pem, err := cryptox.LoadOrGenerateFile(cfg.TokenKeyFile, cryptox.GenerateEd25519Key)
	if err != nil {
		return nil, fmt.Errorf("load token key: %w", err)
	}

	signer, err := jwtx.NewSignerEdDSA("links", pem)
	if err != nil {
		return nil, fmt.Errorf("parse token key: %w", err)
	}
	keys := jwtx.NewKeySet()
	keys.AddSigner(signer)

	logger.Info("link signing key loaded", "file", cfg.TokenKeyFile, "kid", signer.KID())
	return &LinkKeys{
		Signer:   signer,
		Verifier: jwtx.NewVerifierEdDSA(keys, cfg.Issuer),
		KeySet:   keys,
	}, nil
}

// InitSessionKeys returns the cookie hash and block keys, generating them on
// first start.
func InitSessionKeys(cfg Config) (hashKey, blockKey []byte, err error) {
	raw, err := cryptox.LoadOrGenerateFile(cfg.SessionKeyFile, func() ([]byte, error) {
		return cryptox.GenerateKey(sessionKeySize)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load session keys: %w", err)
	}
	if len(raw) != sessionKeySize {
		return nil, nil, fmt.Errorf("session key file %s: want %d bytes, got %d", cfg.SessionKeyFile, sessionKeySize, len(raw))
	}
	return raw[:32], raw[32:], nil
}
