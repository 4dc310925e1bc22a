// Package enrich calls the external geocoding and legal-registry services
// and folds their answers back into missions.
package enrich

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/resilience"
)

// GeocoderOptions configures BANGeocoder.
type GeocoderOptions struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int

	// MinScore is the relevance below which a match counts as not found.
	MinScore float64

	Guard resilience.Guard
}

// BANGeocoder geocodes addresses against the Base Adresse Nationale search
// API, which answers with a GeoJSON FeatureCollection.
type BANGeocoder struct {
	client *http.Client
	opts   GeocoderOptions
}

// NewBANGeocoder creates a geocoder; zero options take defaults.
func NewBANGeocoder(opts GeocoderOptions) *BANGeocoder {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api-adresse.data.gouv.fr"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.4
	}
	return &BANGeocoder{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

type geocodeJob struct {
	clientID string
	index    int
	address  model.Address
}

// Enrich geocodes every address still waiting for coordinates. A failed
// lookup yields a FAILED row rather than an error; only cancellation is
// returned.
func (g *BANGeocoder) Enrich(ctx context.Context, publisher model.Publisher, missions []*model.NormalizedMission) ([]model.GeolocResult, error) {
	var jobs []geocodeJob
	for _, m := range missions {
		for i, a := range m.Addresses {
			if a.GeolocStatus == model.GeolocPending && a.Location == nil {
				jobs = append(jobs, geocodeJob{clientID: m.ClientID, index: i, address: a})
			}
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	log := zap.L().With(zap.String("component", "geocode"), zap.String("publisher", publisher.ID))
	results := make([]model.GeolocResult, len(jobs))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)
	for i, job := range jobs {
		eg.Go(func() error {
			res, err := g.lookup(gctx, job.address)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Debug("geocode failed", zap.String("client_id", job.clientID), zap.Error(err))
				res = model.GeolocResult{GeolocStatus: model.GeolocFailed}
			}
			res.ClientID, res.AddressIndex = job.clientID, job.index
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, eris.Wrap(err, "geocode: enrich")
	}

	log.Info("geocoded addresses", zap.Int("count", len(results)))
	return results, nil
}

func query(a model.Address) string {
	return strings.Join(strings.Fields(strings.Join([]string{a.Street, a.PostalCode, a.City}, " ")), " ")
}

func (g *BANGeocoder) lookup(ctx context.Context, a model.Address) (model.GeolocResult, error) {
	q := query(a)
	if q == "" {
		return model.GeolocResult{GeolocStatus: model.GeolocNoData}, nil
	}

	params := url.Values{"q": {q}, "limit": {"1"}}
	if a.PostalCode != "" {
		params.Set("postcode", a.PostalCode)
	}
	endpoint := strings.TrimRight(g.opts.BaseURL, "/") + "/search/?" + params.Encode()

	fc, err := resilience.Call(ctx, g.opts.Guard, func(ctx context.Context) (*geojson.FeatureCollection, error) {
		return g.search(ctx, endpoint)
	})
	if err != nil {
		return model.GeolocResult{}, err
	}
	return fromFeatures(fc, g.opts.MinScore), nil
}

func (g *BANGeocoder) search(ctx context.Context, endpoint string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.StatusError("geocode: search", resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(body); err != nil {
		return nil, eris.Wrap(err, "geocode: decode feature collection")
	}
	return &fc, nil
}

// fromFeatures converts the best feature into a result row.
func fromFeatures(fc *geojson.FeatureCollection, minScore float64) model.GeolocResult {
	if fc == nil || len(fc.Features) == 0 {
		return model.GeolocResult{GeolocStatus: model.GeolocNotFound}
	}
	f := fc.Features[0]
	pt, ok := f.Geometry.(*geom.Point)
	if !ok || pt.Empty() {
		return model.GeolocResult{GeolocStatus: model.GeolocNotFound}
	}
	if score, _ := f.Properties["score"].(float64); score < minScore {
		return model.GeolocResult{GeolocStatus: model.GeolocNotFound}
	}

	res := model.GeolocResult{
		Street:       prop(f, "name"),
		City:         prop(f, "city"),
		PostalCode:   prop(f, "postcode"),
		Location:     &model.Location{Lat: pt.Y(), Lon: pt.X()},
		GeolocStatus: model.GeolocByAPI,
	}
	// context reads "75, Paris, Île-de-France"
	parts := strings.SplitN(prop(f, "context"), ",", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 3 {
		res.DepartmentCode, res.DepartmentName, res.Region = parts[0], parts[1], parts[2]
	}
	return res
}

func prop(f *geojson.Feature, key string) string {
	s, _ := f.Properties[key].(string)
	return s
}
