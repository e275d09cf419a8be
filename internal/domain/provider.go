package domain

// Provider identifies an external OAuth identity provider.
type Provider string

// Supported identity providers.
const (
	ProviderGoogle Provider = "google"
	ProviderKakao  Provider = "kakao"
)

// ValidProviders returns every supported provider.
func ValidProviders() []Provider {
	return []Provider{ProviderGoogle, ProviderKakao}
}

// IsValidProvider checks whether p names a supported provider.
func IsValidProvider(p Provider) bool {
	for _, v := range ValidProviders() {
		if v == p {
			return true
		}
	}
	return false
}
