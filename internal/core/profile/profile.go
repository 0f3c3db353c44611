package profile

import (
	"context"
	"strings"
)

// Profile holds the issuer identity and IDP credentials for one environment,
// plus the per-document-type sequence counters used to build consecutivos.
type Profile struct {
	Name                 string           `json:"name"`
	Environment          string           `json:"environment"`
	IdentificationType   string           `json:"identificationType"`
	IdentificationNumber string           `json:"identificationNumber"`
	Username             string           `json:"username"`
	Password             string           `json:"password"`
	Sequences            map[string]int64 `json:"sequences,omitempty"`
}

// Store is the contract for the profile and sequence store, a collaborator of
// the submission layer. The request pipeline itself never touches it.
type Store interface {
	// Load returns the stored profile.
	Load(ctx context.Context) (Profile, error)

	// Save replaces the stored profile.
	Save(ctx context.Context, p Profile) error

	// NextSequence atomically increments and returns the sequence counter for
	// a document type. Counters start at 1.
	NextSequence(ctx context.Context, docType string) (int64, error)
}

// ResolveUsername derives the IDP login name from an identification type and
// number plus the environment's account suffix, for example
// cpj-3-101-123456@prod.comprobanteselectronicos.go.cr. Profiles that store an
// explicit Username take precedence over derivation.
func ResolveUsername(idType, idNumber, suffix string) string {
	user := strings.ToLower(strings.TrimSpace(idType)) + "-" + strings.TrimSpace(idNumber)
	if suffix == "" {
		return user
	}
	return user + "@" + suffix
}
