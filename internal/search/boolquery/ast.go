package boolquery

import (
	"strings"

	"github.com/cortexkg/cortexkg/internal/graph"
)

// Node evaluates to true/false against an entity.
type Node interface {
	Match(e *graph.Entity) bool
}

// AndNode matches when every child matches.
type AndNode struct{ Children []Node }

func (n *AndNode) Match(e *graph.Entity) bool {
	for _, c := range n.Children {
		if !c.Match(e) {
			return false
		}
	}
	return true
}

// OrNode matches when any child matches.
type OrNode struct{ Children []Node }

func (n *OrNode) Match(e *graph.Entity) bool {
	for _, c := range n.Children {
		if c.Match(e) {
			return true
		}
	}
	return false
}

// NotNode matches when its child does not.
type NotNode struct{ Child Node }

func (n *NotNode) Match(e *graph.Entity) bool {
	return !n.Child.Match(e)
}

// FieldTermNode matches `field:value` against one named field — name,
// type, or observation — case-insensitive substring match.
type FieldTermNode struct {
	Field string
	Value string
}

func (n *FieldTermNode) Match(e *graph.Entity) bool {
	value := strings.ToLower(n.Value)
	switch strings.ToLower(n.Field) {
	case "name":
		return strings.Contains(strings.ToLower(e.Name), value)
	case "type":
		return strings.Contains(strings.ToLower(e.EntityType), value)
	case "observation":
		for _, o := range e.Observations {
			if strings.Contains(strings.ToLower(o), value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// BareTermNode matches an un-fielded term (bare identifier or quoted
// phrase) against name, type, or any observation.
type BareTermNode struct {
	Value string
}

func (n *BareTermNode) Match(e *graph.Entity) bool {
	value := strings.ToLower(n.Value)
	if strings.Contains(strings.ToLower(e.Name), value) {
		return true
	}
	if strings.Contains(strings.ToLower(e.EntityType), value) {
		return true
	}
	for _, o := range e.Observations {
		if strings.Contains(strings.ToLower(o), value) {
			return true
		}
	}
	return false
}
