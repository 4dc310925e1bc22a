package moderation

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed policies.yaml
var defaultPolicies []byte

// Policy holds the publisher-specific moderation overrides.
type Policy struct {
	PublisherID string `yaml:"publisher_id"`
	Name        string `yaml:"name"`

	// Trusted publishers bypass every moderation rule.
	Trusted bool `yaml:"trusted"`

	// ForcedDomain replaces whatever domain the feed declares.
	ForcedDomain string `yaml:"forced_domain"`

	// DomainLabels maps taxonomy slugs back to the publisher's legacy labels,
	// stored as domainOriginal.
	DomainLabels map[string]string `yaml:"domain_labels"`
}

// PolicySet indexes policies by publisher id.
type PolicySet struct {
	byPublisher map[string]Policy
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// ParsePolicies decodes a YAML policy document.
func ParsePolicies(data []byte) (*PolicySet, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "moderation: parse policies")
	}
	set := &PolicySet{byPublisher: make(map[string]Policy, len(f.Policies))}
	for _, p := range f.Policies {
		if p.PublisherID == "" {
			return nil, eris.Errorf("moderation: policy %q has no publisher_id", p.Name)
		}
		if p.ForcedDomain != "" && !Domains[p.ForcedDomain] {
			return nil, eris.Errorf("moderation: policy %q forces unknown domain %q", p.Name, p.ForcedDomain)
		}
		set.byPublisher[p.PublisherID] = p
	}
	return set, nil
}

// LoadPolicies reads the policy file at path, or the embedded defaults when
// path is empty.
func LoadPolicies(path string) (*PolicySet, error) {
	if path == "" {
		return ParsePolicies(defaultPolicies)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "moderation: read policies %s", path)
	}
	return ParsePolicies(data)
}

// Lookup returns the policy of a publisher; publishers without overrides get
// an empty policy.
func (s *PolicySet) Lookup(publisherID string) Policy {
	if s == nil {
		return Policy{PublisherID: publisherID}
	}
	if p, ok := s.byPublisher[publisherID]; ok {
		return p
	}
	return Policy{PublisherID: publisherID}
}
