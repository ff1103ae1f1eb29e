// Package dex serves creature data from a local pipe-delimited file in the
// same JSON shape as the public creature API, for offline play and tests.
package dex

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Entry holds one creature row.
// File format: id|name|hp|attack|front|back, with a header row.
type Entry struct {
	ID     int
	Name   string
	HP     int
	Attack int
	Front  string
	Back   string
}

type Store struct {
	byID   map[int]Entry
	byName map[string]Entry
	list   []Entry // sorted by id
}

// Open loads a store from a pipe-delimited file.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// Load reads pipe-delimited rows. Malformed rows are reported, not skipped.
func Load(r io.Reader) (*Store, error) {
	csvr := csv.NewReader(r)
	csvr.Comma = '|'
	csvr.LazyQuotes = true
	csvr.FieldsPerRecord = -1
	csvr.Comment = '#'
	rows, err := csvr.ReadAll()
	if err != nil {
		return nil, err
	}
	s := &Store{byID: map[int]Entry{}, byName: map[string]Entry{}}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("line %d: want at least 4 fields, got %d", i+1, len(row))
		}
		e := Entry{Name: strings.ToLower(strings.TrimSpace(row[1]))}
		if e.ID, err = strconv.Atoi(strings.TrimSpace(row[0])); err != nil {
			return nil, fmt.Errorf("line %d: bad id: %w", i+1, err)
		}
		if e.HP, err = strconv.Atoi(strings.TrimSpace(row[2])); err != nil {
			return nil, fmt.Errorf("line %d: bad hp: %w", i+1, err)
		}
		if e.Attack, err = strconv.Atoi(strings.TrimSpace(row[3])); err != nil {
			return nil, fmt.Errorf("line %d: bad attack: %w", i+1, err)
		}
		if len(row) > 4 {
			e.Front = strings.TrimSpace(row[4])
		}
		if len(row) > 5 {
			e.Back = strings.TrimSpace(row[5])
		}
		if e.Name == "" {
			return nil, fmt.Errorf("line %d: missing name", i+1)
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("line %d: duplicate id %d", i+1, e.ID)
		}
		s.byID[e.ID] = e
		s.byName[e.Name] = e
		s.list = append(s.list, e)
	}
	sort.Slice(s.list, func(i, j int) bool { return s.list[i].ID < s.list[j].ID })
	return s, nil
}

// Len returns the number of creatures.
func (s *Store) Len() int { return len(s.list) }

// Lookup finds a creature by numeric id or case-insensitive name.
func (s *Store) Lookup(idOrName string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if id, err := strconv.Atoi(key); err == nil {
		e, ok := s.byID[id]
		return e, ok
	}
	e, ok := s.byName[key]
	return e, ok
}

// List returns up to limit creatures in id order; limit <= 0 means all.
func (s *Store) List(limit int) []Entry {
	if limit <= 0 || limit > len(s.list) {
		limit = len(s.list)
	}
	out := make([]Entry, limit)
	copy(out, s.list[:limit])
	return out
}
