package domain

// IdentitySource says how a provider token was verified.
type IdentitySource string

const (
	SourceIDToken     IdentitySource = "id_token"
	SourceAccessToken IdentitySource = "access_token"
)

// ExternalIdentity is the profile asserted by a federated identity provider.
type ExternalIdentity struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
	Picture    string
	Source     IdentitySource
}
