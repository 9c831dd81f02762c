package bookstore

import (
	"database/sql"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Genre string

const (
	Fiction Genre = "FICTION"
	Science Genre = "SCIENCE"
	History Genre = "HISTORY"
)

// Date is a day without time of day. It reads and writes YYYY-MM-DD.
type Date struct{ time.Time }

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.Format(time.DateOnly)), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.DateOnly, string(b))
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", b)
	}
	d.Time = t
	return nil
}

// Node is implemented by everything that can be fetched by id.
type Node interface{ NodeID() string }

// SearchResult is a Book or an Author.
type SearchResult interface{ searchResult() }

type Book struct {
	ID        string `json:"id"`
	Title     string
	Subtitle  *wrapperspb.StringValue
	Genre     Genre
	Published *Date
	ISBN      sql.NullString `json:"isbn"`
	AuthorID  string
	Reviews   []Review
}

func (b *Book) NodeID() string { return b.ID }
func (*Book) searchResult()    {}

type Review struct {
	Stars int
	Text  sql.NullString
}

type Author struct {
	ID    string `json:"id"`
	Name  string
	Born  *Date
	books []string
}

func (a *Author) NodeID() string { return a.ID }
func (*Author) searchResult()    {}

type Stats struct {
	Books   int
	Authors int
	Reviews int
}

type BookInput struct {
	Title     string  `json:"title"`
	Subtitle  *string `json:"subtitle"`
	AuthorID  string  `json:"authorId"`
	Genre     Genre   `json:"genre"`
	Published *Date   `json:"published"`
	ISBN      *string `json:"isbn"`
}

type BookFilter struct {
	Genre          *Genre `json:"genre"`
	PublishedAfter *Date  `json:"publishedAfter"`
}

func (f *BookFilter) match(b *Book) bool {
	if f == nil {
		return true
	}
	if f.Genre != nil && b.Genre != *f.Genre {
		return false
	}
	if f.PublishedAfter != nil && (b.Published == nil || !b.Published.After(f.PublishedAfter.Time)) {
		return false
	}
	return true
}
