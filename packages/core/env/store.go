package env

import (
	"fmt"
	"sort"
	"sync"
)

// Tier is a variable scope. Lower tiers shadow higher ones.
type Tier int

const (
	TierTestCase Tier = iota
	TierCollection
	TierEnvironment
	TierGlobal
	tierCount
)

func (t Tier) String() string {
	switch t {
	case TierTestCase:
		return "test-case"
	case TierCollection:
		return "collection"
	case TierEnvironment:
		return "environment"
	case TierGlobal:
		return "global"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Store holds variables in four tiers, searched test-case first and global last.
type Store struct {
	mu    sync.RWMutex
	tiers [tierCount]map[string]string
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.tiers {
		s.tiers[i] = make(map[string]string)
	}
	return s
}

func (s *Store) Set(tier Tier, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier][name] = value
}

// SetAll copies vars into a tier, formatting non-string values with %v.
func (s *Store) SetAll(tier Tier, vars map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vars {
		s.tiers[tier][k] = fmt.Sprintf("%v", v)
	}
}

func (s *Store) SetStrings(tier Tier, vars map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vars {
		s.tiers[tier][k] = v
	}
}

// Lookup returns the value of name from the most specific tier defining it.
func (s *Store) Lookup(name string) (string, Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t := TierTestCase; t < tierCount; t++ {
		if v, ok := s.tiers[t][name]; ok {
			return v, t, true
		}
	}
	return "", 0, false
}

func (s *Store) Clear(tier Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier] = make(map[string]string)
}

// Names lists every defined variable once, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, vars := range s.tiers {
		for k := range vars {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}
