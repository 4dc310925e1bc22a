package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/organization"
	"github.com/sells-group/mission-sync/internal/resilience"
)

// VerifierOptions configures RegistryVerifier.
type VerifierOptions struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	Guard       resilience.Guard
}

// RegistryVerifier cross-checks organization registry numbers against the
// company search API.
type RegistryVerifier struct {
	client *http.Client
	opts   VerifierOptions
}

// NewRegistryVerifier creates a verifier; zero options take defaults.
func NewRegistryVerifier(opts VerifierOptions) *RegistryVerifier {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://recherche-entreprises.api.gouv.fr"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &RegistryVerifier{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

type registryHit struct {
	Siren       string `json:"siren"`
	NomComplet  string `json:"nom_complet"`
	Complements struct {
		IdentifiantAssociation string `json:"identifiant_association"`
	} `json:"complements"`
}

type registryResponse struct {
	Results      []registryHit `json:"results"`
	TotalResults int           `json:"total_results"`
}

type verification struct {
	status model.VerificationStatus
	name   string
}

// registryKey picks the number to look up: SIREN (or the SIREN prefix of a
// SIRET) before RNA.
func registryKey(f model.OrganizationFields) string {
	id, ok := organization.ResolveIdentity(model.OrganizationFields{RNA: f.RNA, Siren: f.Siren, Siret: f.Siret})
	if !ok {
		return ""
	}
	if id.Siren != "" {
		return id.Siren
	}
	return id.RNA
}

// Verify sets VerificationStatus and VerifiedName on every organization that
// carries a registry number. Each distinct number is looked up once. Failures
// mark the organization ERROR and are never returned.
func (v *RegistryVerifier) Verify(ctx context.Context, missions []*model.NormalizedMission) {
	byKey := make(map[string][]*model.NormalizedMission)
	for _, m := range missions {
		if key := registryKey(m.Organization); key != "" {
			byKey[key] = append(byKey[key], m)
		}
	}
	if len(byKey) == 0 {
		return
	}

	var mu sync.Mutex
	verified := make(map[string]verification, len(byKey))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(v.opts.Concurrency)
	for key := range byKey {
		eg.Go(func() error {
			res, err := v.lookup(gctx, key)
			if err != nil {
				zap.L().Debug("verify: lookup failed", zap.String("key", key), zap.Error(err))
				res = verification{status: model.VerificationError}
			}
			mu.Lock()
			verified[key] = res
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	for key, ms := range byKey {
		res := verified[key]
		for _, m := range ms {
			m.Organization.VerificationStatus = res.status
			m.Organization.VerifiedName = res.name
		}
	}
}

func (v *RegistryVerifier) lookup(ctx context.Context, key string) (verification, error) {
	endpoint := strings.TrimRight(v.opts.BaseURL, "/") + "/search?" + url.Values{"q": {key}, "per_page": {"5"}}.Encode()

	resp, err := resilience.Call(ctx, v.opts.Guard, func(ctx context.Context) (*registryResponse, error) {
		return v.search(ctx, endpoint)
	})
	if err != nil {
		return verification{}, err
	}
	for _, hit := range resp.Results {
		if hit.Siren == key || strings.EqualFold(hit.Complements.IdentifiantAssociation, key) {
			return verification{status: model.VerificationVerified, name: hit.NomComplet}, nil
		}
	}
	return verification{status: model.VerificationNotFound}, nil
}

func (v *RegistryVerifier) search(ctx context.Context, endpoint string) (*registryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "verify: create request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "verify: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.StatusError("verify: search", resp.StatusCode); err != nil {
		return nil, err
	}
	var out registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "verify: decode response")
	}
	return &out, nil
}
