package service

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Email codes stay valid for three steps either side so slow mail still
// arrives in time. App codes use the usual single step.
var (
	emailCodeOpts = totp.ValidateOpts{
		Period:    30,
		Skew:      3,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	appCodeOpts = totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
)

// emailSecret derives the email TOTP secret from a security stamp. Rotating
// the stamp invalidates outstanding codes.
func emailSecret(securityStamp string) (string, error) {
	id, err := uuid.Parse(securityStamp)
	if err != nil {
		return "", fmt.Errorf("parse security stamp: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:]), nil
}

func generateEmailCode(securityStamp string, now time.Time) (string, error) {
	secret, err := emailSecret(securityStamp)
	if err != nil {
		return "", err
	}
	return totp.GenerateCodeCustom(secret, now, emailCodeOpts)
}

func validateEmailCode(code, securityStamp string, now time.Time) bool {
	secret, err := emailSecret(securityStamp)
	if err != nil {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, emailCodeOpts)
	return err == nil && ok
}

func validateAppCode(code, key string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, key, now, appCodeOpts)
	return err == nil && ok
}

func generateAppKey(issuer, account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}
