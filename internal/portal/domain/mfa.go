package domain

import "strings"

// MfaProvider is a set of second factors available to a principal.
type MfaProvider uint8

const (
	MfaProviderNone   MfaProvider = 0
	MfaProviderApp    MfaProvider = 1 << 0
	MfaProviderDevice MfaProvider = 1 << 1
	MfaProviderEmail  MfaProvider = 1 << 2
)

// Has reports whether every flag in p2 is set in p.
func (p MfaProvider) Has(p2 MfaProvider) bool {
	return p2 != MfaProviderNone && p&p2 == p2
}

// Names lists the set flags in a fixed order: app, device, email.
func (p MfaProvider) Names() []string {
	names := make([]string, 0, 3)
	if p.Has(MfaProviderApp) {
		names = append(names, "app")
	}
	if p.Has(MfaProviderDevice) {
		names = append(names, "device")
	}
	if p.Has(MfaProviderEmail) {
		names = append(names, "email")
	}
	return names
}

func (p MfaProvider) String() string {
	if p == MfaProviderNone {
		return "none"
	}
	return strings.Join(p.Names(), "|")
}
