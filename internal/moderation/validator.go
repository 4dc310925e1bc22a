// Package moderation decides whether an imported mission is published.
package moderation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/mission-sync/internal/model"
)

// Status comments shown to publishers.
const (
	CommentMissingTitle       = "Titre manquant"
	CommentShortTitle         = "Le titre doit contenir au moins 2 mots"
	CommentEncodedTitle       = "Titre mal encodé"
	CommentMissingClientID    = "ClientId manquant"
	CommentMissingDescription = "Description manquante"
	CommentMissingApplication = "URL de candidature manquante"
	commentInvalidDomain      = "Domaine non valide : %q"
)

// Decision is the moderation outcome of one mission.
type Decision struct {
	StatusCode     model.ModerationStatus
	StatusComment  string
	Domain         string
	DomainOriginal string
}

// doubleEncoded matches an HTML entity still present once the feed has been
// decoded ("&amp;", "&eacute;", "&#233;"), the trace of a publisher escaping
// its text twice.
var doubleEncoded = regexp.MustCompile(`(?i)&(#[0-9]+|#x[0-9a-f]+|[a-z][a-z0-9]*);`)

// rule returns a refusal comment, or "" when the mission passes.
type rule func(n *model.NormalizedMission, domain string) string

// rules run in order; the first failure wins.
var rules = []rule{
	func(n *model.NormalizedMission, _ string) string {
		switch {
		case n.Title == "":
			return CommentMissingTitle
		case len(strings.Fields(n.Title)) < 2:
			return CommentShortTitle
		case doubleEncoded.MatchString(n.Title):
			return CommentEncodedTitle
		}
		return ""
	},
	func(n *model.NormalizedMission, _ string) string {
		if n.ClientID == "" {
			return CommentMissingClientID
		}
		return ""
	},
	func(n *model.NormalizedMission, _ string) string {
		if n.Description == "" {
			return CommentMissingDescription
		}
		return ""
	},
	func(n *model.NormalizedMission, _ string) string {
		if n.ApplicationURL == "" {
			return CommentMissingApplication
		}
		return ""
	},
	func(n *model.NormalizedMission, domain string) string {
		if !Domains[domain] {
			return fmt.Sprintf(commentInvalidDomain, n.Domain)
		}
		return ""
	},
}

// Validate applies the moderation rules under the given publisher policy.
// It has no side effects.
func Validate(n *model.NormalizedMission, policy Policy) Decision {
	d := Decision{StatusCode: model.StatusAccepted}

	if policy.ForcedDomain != "" {
		d.Domain = policy.ForcedDomain
	} else if canonical, _ := CanonicalDomain(n.Domain); canonical != "" {
		d.Domain = canonical
	}
	if policy.DomainLabels != nil {
		if label, ok := policy.DomainLabels[d.Domain]; ok {
			d.DomainOriginal = label
		} else {
			d.DomainOriginal = n.Domain
		}
	}

	if policy.Trusted {
		return d
	}
	for _, r := range rules {
		if comment := r(n, d.Domain); comment != "" {
			d.StatusCode = model.StatusRefused
			d.StatusComment = comment
			return d
		}
	}
	return d
}
