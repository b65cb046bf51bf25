package repository

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/anime-shed/profile-image-analyzer/internal/storage"
	"github.com/anime-shed/profile-image-analyzer/pkg/validation"
)

// blobHandler lets a fetcher claim https references, such as Azure blob URLs.
type blobHandler interface {
	Handles(ref string) bool
}

// RoutingImageRepository dispatches a reference to the fetcher registered for
// its scheme. A fetcher that implements Handles(ref) is consulted first for
// https references.
type RoutingImageRepository struct {
	fetchers     map[string]storage.ImageFetcher
	overrides    []storage.ImageFetcher
	allowedHosts []string
	validator    *validation.URLValidator
}

// NewRoutingImageRepository creates an empty repository.
func NewRoutingImageRepository() *RoutingImageRepository {
	return &RoutingImageRepository{fetchers: make(map[string]storage.ImageFetcher)}
}

// Register binds fetcher to the given schemes.
func (r *RoutingImageRepository) Register(fetcher storage.ImageFetcher, schemes ...string) *RoutingImageRepository {
	for _, s := range schemes {
		r.fetchers[strings.ToLower(s)] = fetcher
	}
	if _, ok := fetcher.(blobHandler); ok {
		r.overrides = append(r.overrides, fetcher)
	}
	r.validator = validation.NewURLValidatorWithOptions(r.Schemes(), r.allowedHosts)
	return r
}

// AllowHosts restricts http and https references to the given hosts. An
// empty list lifts the restriction.
func (r *RoutingImageRepository) AllowHosts(hosts ...string) *RoutingImageRepository {
	r.allowedHosts = hosts
	if len(r.fetchers) > 0 {
		r.validator = validation.NewURLValidatorWithOptions(r.Schemes(), hosts)
	}
	return r
}

// Schemes returns the registered schemes in sorted order.
func (r *RoutingImageRepository) Schemes() []string {
	out := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidateImageURL validates if the provided reference is acceptable
func (r *RoutingImageRepository) ValidateImageURL(ref string) error {
	if r.validator == nil {
		return fmt.Errorf("%w: no fetchers registered", ErrUnsupportedScheme)
	}
	return r.validator.ValidateImageURL(ref)
}

// FetchBytes retrieves the encoded image behind ref
func (r *RoutingImageRepository) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	fetcher, err := r.route(ref)
	if err != nil {
		return nil, err
	}
	return fetcher.FetchBytes(ctx, ref)
}

func (r *RoutingImageRepository) route(ref string) (storage.ImageFetcher, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrInvalidImageURL
	}

	scheme := ""
	if strings.HasPrefix(ref, "data:") {
		scheme = "data"
	} else {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
		}
		scheme = strings.ToLower(u.Scheme)
	}

	if scheme == "https" {
		for _, f := range r.overrides {
			if f.(blobHandler).Handles(ref) {
				return f, nil
			}
		}
	}

	fetcher, ok := r.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return fetcher, nil
}
