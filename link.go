package identity

// LinkedAccount is a provider-side OAuth account in provider-neutral form.
// The Type field carries the provider's account-type string ("oauth_google").
type LinkedAccount struct {
	Type    string
	Subject string
}

// SelectProviderIdentity derives the (provider, subject) unique key for a
// local user from the external record's linked accounts. With several linked
// providers the fixed priority order wins; with none, the default provider is
// paired with the external id itself so the key stays deterministic.
func SelectProviderIdentity(accounts []LinkedAccount, externalID string) (Provider, string) {
	best := -1
	var bestProvider Provider
	var bestSubject string

	for _, acc := range accounts {
		p, ok := ParseProvider(acc.Type)
		if !ok || acc.Subject == "" {
			continue
		}
		rank := providerRank(p)
		if best == -1 || rank < best {
			best = rank
			bestProvider = p
			bestSubject = acc.Subject
		}
	}

	if best >= 0 {
		return bestProvider, bestSubject
	}

	return DefaultProvider, externalID
}

func providerRank(p Provider) int {
	for i, candidate := range providerPriority {
		if candidate == p {
			return i
		}
	}
	return len(providerPriority)
}
