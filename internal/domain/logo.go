package domain

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// LogoStore keeps local copies of brand logos.
type LogoStore interface {
	// Stored returns the path of a logo saved by an earlier run.
	Stored(brand string) (string, bool)
	// Save downloads imageURL and returns the local path.
	Save(ctx context.Context, brand, imageURL string) (string, error)
}

// LogoStats counts logo outcomes per brand.
type LogoStats struct {
	Lookups     int
	Found       int
	Reused      int
	Misses      int
	FetchErrors int
}

// LogoResult is the output of LogoResolver.Resolve.
type LogoResult struct {
	Logos    []BrandLogo
	Failures []FetchError
	Stats    LogoStats
}

// LogoResolver finds a logo for every brand of the brand dimension.
type LogoResolver struct {
	lookup      PlaceLookup
	store       LogoStore
	concurrency int
	logger      *slog.Logger
}

// NewLogoResolver creates a resolver. lookup must return candidates with
// Image set. A nil store keeps image URLs instead of downloading.
func NewLogoResolver(lookup PlaceLookup, store LogoStore, concurrency int, logger *slog.Logger) *LogoResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LogoResolver{lookup: lookup, store: store, concurrency: concurrency, logger: logger}
}

type logoOutcome struct {
	path   string
	reused bool
	looked bool
	err    error
}

// Resolve returns at most one logo per brand, in brand order. Brands
// without a logo are left out; lookup and download failures are counted
// and non-fatal. Only context cancellation aborts.
func (r *LogoResolver) Resolve(ctx context.Context, brands []Brand) (LogoResult, error) {
	outcomes := make([]logoOutcome, len(brands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, b := range brands {
		g.Go(func() error {
			outcomes[i] = r.resolveOne(gctx, b.Name)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return LogoResult{}, err
	}

	var result LogoResult
	for i, b := range brands {
		o := outcomes[i]
		if o.looked {
			result.Stats.Lookups++
		}
		switch {
		case o.err != nil:
			r.logger.Warn("brand logo lookup failed", "brand", b.Name, "error", o.err)
			result.Failures = append(result.Failures, FetchError{Query: b.Name, Err: o.err})
			result.Stats.FetchErrors++
			continue
		case o.path == "":
			r.logger.Warn("no logo found for brand", "brand", b.Name)
			result.Stats.Misses++
			continue
		case o.reused:
			result.Stats.Reused++
		default:
			result.Stats.Found++
		}
		result.Logos = append(result.Logos, BrandLogo{BrandID: b.ID, BrandName: b.Name, ImgPath: o.path})
	}
	return result, nil
}

func (r *LogoResolver) resolveOne(ctx context.Context, brand string) logoOutcome {
	if r.store != nil {
		if path, ok := r.store.Stored(brand); ok {
			return logoOutcome{path: path, reused: true}
		}
	}

	candidates, err := r.lookup.Lookup(ctx, brand)
	if err != nil {
		return logoOutcome{looked: true, err: err}
	}
	var image string
	for _, c := range candidates {
		if c.Image != "" {
			image = c.Image
			break
		}
	}
	if image == "" || r.store == nil {
		return logoOutcome{looked: true, path: image}
	}

	path, err := r.store.Save(ctx, brand, image)
	if err != nil {
		return logoOutcome{looked: true, err: err}
	}
	return logoOutcome{looked: true, path: path}
}
