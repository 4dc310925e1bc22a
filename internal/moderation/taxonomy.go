package moderation

import "github.com/sells-group/mission-sync/internal/organization"

// Domains is the controlled domain taxonomy.
var Domains = map[string]bool{
	"animaux":                true,
	"benevolat-competences":  true,
	"culture-loisirs":        true,
	"education":              true,
	"emploi":                 true,
	"environnement":          true,
	"humanitaire":            true,
	"memoire-et-citoyennete": true,
	"prevention-protection":  true,
	"sante":                  true,
	"solidarite-insertion":   true,
	"sport":                  true,
	"vivre-ensemble":         true,
	"autre":                  true,
}

// domainAliases maps slugified legacy or free-text labels to taxonomy slugs.
var domainAliases = map[string]string{
	"solidarite":                    "solidarite-insertion",
	"solidarite-et-insertion":       "solidarite-insertion",
	"insertion":                     "solidarite-insertion",
	"culture":                       "culture-loisirs",
	"culture-et-loisirs":            "culture-loisirs",
	"loisirs":                       "culture-loisirs",
	"education-pour-tous":           "education",
	"sport-pour-tous":               "sport",
	"environnement-et-biodiversite": "environnement",
	"cooperation-internationale":    "humanitaire",
	"solidarite-internationale":     "humanitaire",
	"developpement-international-et-aide-humanitaire": "humanitaire",
	"intervention-d-urgence-en-cas-de-crise":          "prevention-protection",
	"prevention":                    "prevention-protection",
	"protection":                    "prevention-protection",
	"memoire":                       "memoire-et-citoyennete",
	"citoyennete":                   "memoire-et-citoyennete",
	"sante-et-bien-etre":            "sante",
	"protection-animale":            "animaux",
	"mecenat-de-competences":        "benevolat-competences",
}

// CanonicalDomain maps a free-text domain label onto the taxonomy. The second
// return value is false when the label has no taxonomy equivalent.
func CanonicalDomain(label string) (string, bool) {
	slug := organization.Slugify(label)
	if slug == "" {
		return "", false
	}
	if Domains[slug] {
		return slug, true
	}
	if canonical, ok := domainAliases[slug]; ok {
		return canonical, true
	}
	return slug, false
}
