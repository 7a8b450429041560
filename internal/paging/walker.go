// Package paging walks offset-paginated remote collections.
package paging

import (
	"context"
	"fmt"
	"iter"
	"math"
)

// DefaultPageSize is the largest page Spotify returns for library listings.
const DefaultPageSize = 50

// Page is one slice of a remote collection along with the collection size
// the remote reported at the time of the request.
type Page[T any] struct {
	Items []T
	Total int
}

// FetchFunc requests the page starting at offset.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// ProgressFunc is called after every page with the running offset and the
// current upper bound on the collection size.
type ProgressFunc func(fetched, total int)

type settings struct {
	pageSize int
	progress ProgressFunc
}

// Option configures a walk.
type Option func(*settings)

// WithPageSize sets the number of items requested per page.
// Non-positive values are ignored.
func WithPageSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithProgress registers a callback invoked after each page.
func WithProgress(fn ProgressFunc) Option {
	return func(s *settings) {
		s.progress = fn
	}
}

// Walk returns a lazy sequence over every item of a paginated collection.
//
// The total is tightened to the smallest value any page reports, and the
// offset always advances by the page size, so a short final page or a
// collection that shrinks mid-walk cannot keep the walk going. If fetch
// fails the error is yielded once and the walk ends. Each range over the
// returned sequence starts again at offset 0.
func Walk[T any](ctx context.Context, fetch FetchFunc[T], opts ...Option) iter.Seq2[T, error] {
	s := settings{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&s)
	}

	return func(yield func(T, error) bool) {
		total := math.MaxInt
		for offset := 0; offset < total; offset += s.pageSize {
			page, err := fetch(ctx, offset, s.pageSize)
			if err != nil {
				var zero T
				yield(zero, fmt.Errorf("fetching page at offset %d: %w", offset, err))
				return
			}

			total = min(total, page.Total)

			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}

			if s.progress != nil {
				s.progress(min(offset+s.pageSize, total), total)
			}
		}
	}
}

// Collect drains a walk into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Find returns the first item for which match reports true. No pages past
// the one containing the match are fetched.
func Find[T any](seq iter.Seq2[T, error], match func(T) bool) (T, bool, error) {
	for item, err := range seq {
		if err != nil {
			var zero T
			return zero, false, err
		}
		if match(item) {
			return item, true, nil
		}
	}
	var zero T
	return zero, false, nil
}
