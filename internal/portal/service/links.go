package service

import (
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/pkg/jwtx"
)

// LinkSerializer turns security tokens into the opaque strings embedded in
// emailed links and back.
type LinkSerializer interface {
	Serialize(token domain.SecurityToken) (string, error)
	Deserialize(link string, purpose domain.TokenPurpose) (domain.SecurityToken, error)
}

// JWTLinks encodes tokens as signed JWTs: jti holds the token id, exp its
// expiry and pur its purpose.
type JWTLinks struct {
	signer   jwtx.Signer
	verifier jwtx.Verifier
	issuer   string
	now      func() time.Time
}

func NewJWTLinks(signer jwtx.Signer, verifier jwtx.Verifier, issuer string) *JWTLinks {
	return &JWTLinks{signer: signer, verifier: verifier, issuer: issuer, now: time.Now}
}

// WithClock overrides the time used for the iat claim.
func (l *JWTLinks) WithClock(now func() time.Time) *JWTLinks {
	l.now = now
	return l
}

func (l *JWTLinks) Serialize(token domain.SecurityToken) (string, error) {
	return l.signer.Sign(jwtx.NewLinkClaims(token.ID, string(token.Purpose), l.issuer, token.WhenExpires, l.now()))
}

func (l *JWTLinks) Deserialize(link string, purpose domain.TokenPurpose) (domain.SecurityToken, error) {
	claims, err := l.verifier.Verify(link)
	if err != nil {
		return domain.SecurityToken{}, err
	}
	if err := claims.ValidatePurpose(string(purpose)); err != nil {
		return domain.SecurityToken{}, err
	}
	if err := domain.ValidateTokenID(claims.ID); err != nil {
		return domain.SecurityToken{}, err
	}

	return domain.SecurityToken{
		ID:          claims.ID,
		Purpose:     purpose,
		WhenExpires: claims.ExpiresAt.Time.UTC(),
	}, nil
}
