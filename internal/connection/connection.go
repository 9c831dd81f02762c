package connection

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

type PageInfo struct {
	HasPreviousPage bool    `json:"hasPreviousPage"`
	HasNextPage     bool    `json:"hasNextPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Args are the Relay pagination arguments. A resolver can take them as an
// input-shaped struct or build them from its own parameters.
type Args struct {
	First  *int    `json:"first"`
	After  *string `json:"after"`
	Last   *int    `json:"last"`
	Before *string `json:"before"`
}

const cursorPrefix = "offset:"

// EncodeCursor returns the opaque cursor for a position in a list.
func EncodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor is the inverse of EncodeCursor.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	n, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(n)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return offset, nil
}

// FromSlice pages through an in-memory list using offset cursors.
func FromSlice[T any](items []T, args Args) (*Connection[T], error) {
	lower, upper := 0, len(items)
	if args.After != nil {
		after, err := DecodeCursor(*args.After)
		if err != nil {
			return nil, err
		}
		lower = min(max(after+1, 0), len(items))
	}
	if args.Before != nil {
		before, err := DecodeCursor(*args.Before)
		if err != nil {
			return nil, err
		}
		upper = max(min(before, len(items)), lower)
	}

	start, end := lower, upper
	if args.First != nil {
		if *args.First < 0 {
			return nil, fmt.Errorf("first must not be negative")
		}
		end = min(end, start+*args.First)
	}
	if args.Last != nil {
		if *args.Last < 0 {
			return nil, fmt.Errorf("last must not be negative")
		}
		start = max(start, end-*args.Last)
	}

	conn := &Connection[T]{Edges: make([]Edge[T], 0, end-start)}
	for i := start; i < end; i++ {
		conn.Edges = append(conn.Edges, Edge[T]{Cursor: EncodeCursor(i), Node: items[i]})
	}
	if n := len(conn.Edges); n > 0 {
		first, last := conn.Edges[0].Cursor, conn.Edges[n-1].Cursor
		conn.PageInfo.StartCursor = &first
		conn.PageInfo.EndCursor = &last
	}
	conn.PageInfo.HasPreviousPage = args.Last != nil && start > lower
	conn.PageInfo.HasNextPage = args.First != nil && end < upper
	return conn, nil
}
