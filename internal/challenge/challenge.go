// Package challenge implements the two-digit spot check a user must pass
// before submitting attendance. It is a UX friction step, not a security
// boundary: do not strengthen it and do not rely on it for access control.
package challenge

import (
	"errors"
	"math/rand"
)

// ErrShortID is returned when the ID string cannot host two distinct positions.
var ErrShortID = errors.New("id must have at least 2 characters")

// Challenge holds two distinct 0-indexed positions into the session's ID string.
type Challenge struct {
	Pos1 int `json:"pos1"`
	Pos2 int `json:"pos2"`
}

// Generator picks challenge positions. The zero value is not usable; call
// NewGenerator.
type Generator struct {
	intN func(n int) int
}

// NewGenerator returns a generator backed by math/rand.
func NewGenerator() *Generator {
	return &Generator{intN: rand.Intn}
}

// NewGeneratorWithSource injects the integer source, for tests.
func NewGeneratorWithSource(intN func(n int) int) *Generator {
	return &Generator{intN: intN}
}

// New picks two distinct positions uniformly within id, re-rolling the second
// until it differs from the first.
func (g *Generator) New(id string) (Challenge, error) {
	n := len(id)
	if n < 2 {
		return Challenge{}, ErrShortID
	}
	p1 := g.intN(n)
	p2 := g.intN(n)
	for p2 == p1 {
		p2 = g.intN(n)
	}
	return Challenge{Pos1: p1, Pos2: p2}, nil
}

// Validate reports whether both guesses match the characters of id at the
// challenge positions, by exact single-character comparison.
func (c Challenge) Validate(id, guess1, guess2 string) bool {
	if c.Pos1 < 0 || c.Pos2 < 0 || c.Pos1 >= len(id) || c.Pos2 >= len(id) {
		return false
	}
	return guess1 == string(id[c.Pos1]) && guess2 == string(id[c.Pos2])
}
