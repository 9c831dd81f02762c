package bookstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hanpama/gqlbind/internal/connection"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

type Query struct{ store *Store }

func (q *Query) Node(id string) Node {
	if b := q.store.Book(id); b != nil {
		return b
	}
	if a := q.store.Author(id); a != nil {
		return a
	}
	return nil
}

func (q *Query) Book(id string) *Book { return q.store.Book(id) }

func (q *Query) Books(filter *BookFilter, first *int, after *string, last *int, before *string) (*connection.Connection[*Book], error) {
	return connection.FromSlice(q.store.Books(filter), connection.Args{First: first, After: after, Last: last, Before: before})
}

func (q *Query) Authors() []*Author { return q.store.Authors() }

func (q *Query) Search(text string) []SearchResult { return q.store.Search(text) }

func (q *Query) Stats() Stats { return q.store.Stats() }

type Mutation struct{ store *Store }

func (m *Mutation) AddBook(input BookInput) (*Book, error) {
	return m.store.AddBook(input)
}

// RateBook stores the review off the request goroutine.
func (m *Mutation) RateBook(ctx context.Context, id string, stars int, text wrapper.Optional[string]) *wrapper.Future[*Book] {
	return wrapper.Go(ctx, func(context.Context) (*Book, error) {
		return m.store.Rate(id, stars, text.OrElse(""))
	})
}

// MutationProxy logs new books before handing them to the embedded Mutation.
type MutationProxy struct {
	*Mutation
	log zerolog.Logger
}

func (p *MutationProxy) AddBook(input BookInput) (*Book, error) {
	b, err := p.Mutation.AddBook(input)
	if err != nil {
		p.log.Warn().Err(err).Str("title", input.Title).Msg("book rejected")
		return nil, err
	}
	p.log.Info().Str("id", b.ID).Str("title", b.Title).Msg("book added")
	return b, nil
}

type Subscription struct{ store *Store }

func (s *Subscription) BookAdded(ctx context.Context, genre *Genre) <-chan *Book {
	src := s.store.Subscribe(ctx)
	if genre == nil {
		return src
	}
	out := make(chan *Book)
	go func() {
		defer close(out)
		for b := range src {
			if b.Genre != *genre {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type bookResolver struct{ store *Store }

func (r *bookResolver) Author(b *Book) (*Author, error) {
	a := r.store.Author(b.AuthorID)
	if a == nil {
		return nil, fmt.Errorf("book %s has no author", b.ID)
	}
	return a, nil
}

// Rating is computed only when the executor asks for it.
func (r *bookResolver) Rating(b *Book) func() (*float64, error) {
	return func() (*float64, error) { return r.store.Rating(b), nil }
}

type authorResolver struct{ store *Store }

func (r *authorResolver) Books(a *Author, first *int, after *string) (*connection.Connection[*Book], error) {
	return connection.FromSlice(r.store.BooksBy(a), connection.Args{First: first, After: after})
}
