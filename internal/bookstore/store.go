package bookstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Store is an in-memory catalogue of books and authors.
type Store struct {
	mu      sync.RWMutex
	books   map[string]*Book
	authors map[string]*Author
	order   []string // book ids in insertion order
	nextID  int

	subsMu sync.Mutex
	subs   map[chan *Book]struct{}
}

func NewStore() *Store {
	return &Store{
		books:   make(map[string]*Book),
		authors: make(map[string]*Author),
		subs:    make(map[chan *Book]struct{}),
	}
}

// Seeded returns a store holding a few well-known books.
func Seeded() *Store {
	s := NewStore()
	born := func(y int, m time.Month, d int) *Date { v := NewDate(y, m, d); return &v }
	s.addAuthor(&Author{ID: "a1", Name: "Frank Herbert", Born: born(1920, time.October, 8)})
	s.addAuthor(&Author{ID: "a2", Name: "Ursula K. Le Guin", Born: born(1929, time.October, 21)})
	s.addAuthor(&Author{ID: "a3", Name: "Carl Sagan", Born: born(1934, time.November, 9)})

	seed := []BookInput{
		{Title: "Dune", AuthorID: "a1", Genre: Fiction, Published: born(1965, time.August, 1), ISBN: lo.ToPtr("978-0441013593")},
		{Title: "Dune Messiah", AuthorID: "a1", Genre: Fiction, Published: born(1969, time.October, 15)},
		{Title: "The Left Hand of Darkness", AuthorID: "a2", Genre: Fiction, Published: born(1969, time.March, 1)},
		{Title: "Pale Blue Dot", Subtitle: lo.ToPtr("A Vision of the Human Future in Space"), AuthorID: "a3", Genre: Science, Published: born(1994, time.September, 8)},
	}
	for _, in := range seed {
		if _, err := s.AddBook(in); err != nil {
			panic(err)
		}
	}
	_, _ = s.Rate("b1", 5, "A classic.")
	_, _ = s.Rate("b1", 4, "")
	return s
}

func (s *Store) addAuthor(a *Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[a.ID] = a
}

func (s *Store) Book(id string) *Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[id]
}

func (s *Store) Author(id string) *Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authors[id]
}

// Books returns the books matching filter in insertion order.
func (s *Store) Books(filter *BookFilter) []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Book
	for _, id := range s.order {
		if b := s.books[id]; filter.match(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s *Store) BooksBy(a *Author) []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(a.books, func(id string, _ int) *Book { return s.books[id] })
}

// Authors returns all authors ordered by id.
func (s *Store) Authors() []*Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Values(s.authors)
	slices.SortFunc(out, func(a, b *Author) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Search matches text against book titles and author names, ignoring case.
func (s *Store) Search(text string) []SearchResult {
	needle := strings.ToLower(text)
	var out []SearchResult
	for _, b := range s.Books(nil) {
		if strings.Contains(strings.ToLower(b.Title), needle) {
			out = append(out, b)
		}
	}
	for _, a := range s.Authors() {
		if strings.Contains(strings.ToLower(a.Name), needle) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Books: len(s.books), Authors: len(s.authors)}
	for _, b := range s.books {
		st.Reviews += len(b.Reviews)
	}
	return st
}

// AddBook stores a new book and announces it to subscribers.
func (s *Store) AddBook(in BookInput) (*Book, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	s.mu.Lock()
	a := s.authors[in.AuthorID]
	if a == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("author %q not found", in.AuthorID)
	}
	s.nextID++
	b := &Book{
		ID:        fmt.Sprintf("b%d", s.nextID),
		Title:     in.Title,
		Genre:     in.Genre,
		Published: in.Published,
		AuthorID:  a.ID,
	}
	if in.Subtitle != nil {
		b.Subtitle = wrapperspb.String(*in.Subtitle)
	}
	if in.ISBN != nil {
		b.ISBN = sql.NullString{String: *in.ISBN, Valid: true}
	}
	s.books[b.ID] = b
	s.order = append(s.order, b.ID)
	a.books = append(a.books, b.ID)
	s.mu.Unlock()

	s.publish(b)
	return b, nil
}

// Rate adds a review. An empty text is stored as no text.
func (s *Store) Rate(id string, stars int, text string) (*Book, error) {
	if stars < 1 || stars > 5 {
		return nil, fmt.Errorf("stars must be between 1 and 5, got %d", stars)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.books[id]
	if b == nil {
		return nil, nil
	}
	b.Reviews = append(b.Reviews, Review{Stars: stars, Text: sql.NullString{String: text, Valid: text != ""}})
	return b, nil
}

// Rating is the mean of the review stars, or nil without reviews.
func (s *Store) Rating(b *Book) *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(b.Reviews) == 0 {
		return nil
	}
	sum := lo.SumBy(b.Reviews, func(r Review) int { return r.Stars })
	return lo.ToPtr(float64(sum) / float64(len(b.Reviews)))
}

// Subscribe delivers books added from now on until ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan *Book {
	ch := make(chan *Book, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.subsMu.Unlock()
	}()
	return ch
}

func (s *Store) publish(b *Book) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- b:
		default:
			// slow subscriber; drop
		}
	}
}
