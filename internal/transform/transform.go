// Package transform tracks the registration edges computed for one subject so
// a later registration can be warm-started from an earlier one.
package transform

import (
	"context"
	"fmt"
	"sort"

	"cordflow/internal/services"
)

// Space is a coordinate space: the template or a modality's native space.
type Space string

// Template is the canonical template space every chain is anchored at.
const Template Space = "template"

// Key identifies an edge by its endpoints.
type Key struct {
	Source Space
	Dest   Space
}

func (k Key) String() string {
	return fmt.Sprintf("%s->%s", k.Source, k.Dest)
}

// Edge is a computed registration. Forward warps Source into Dest; Inverse,
// when computed, warps Dest back into Source.
type Edge struct {
	Source  Space
	Dest    Space
	Forward string
	Inverse string
	// InitializedFrom names the edge used as a warm start, if any.
	InitializedFrom *Key
}

// Key returns the edge's endpoints.
func (e Edge) Key() Key {
	return Key{Source: e.Source, Dest: e.Dest}
}

// Inverted returns the edge seen from Dest. Forward is empty when no inverse
// was computed.
func (e Edge) Inverted() Edge {
	return Edge{Source: e.Dest, Dest: e.Source, Forward: e.Inverse, Inverse: e.Forward, InitializedFrom: e.InitializedFrom}
}

// Touches reports whether space is one of the edge's endpoints.
func (e Edge) Touches(space Space) bool {
	return e.Source == space || e.Dest == space
}

// Inputs carries the named files a registration consumes.
type Inputs map[string]string

// Registrar computes a registration between two spaces. init is nil for a
// cold start.
type Registrar interface {
	Register(ctx context.Context, src, dst Space, inputs Inputs, init *Edge) (Edge, error)
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(ctx context.Context, src, dst Space, inputs Inputs, init *Edge) (Edge, error)

// Register calls f.
func (f RegistrarFunc) Register(ctx context.Context, src, dst Space, inputs Inputs, init *Edge) (Edge, error) {
	return f(ctx, src, dst, inputs, init)
}

// Chain holds one subject's edges. It is owned by a single pipeline and is
// not safe for concurrent use.
type Chain struct {
	anatomical Space
	registrar  Registrar
	edges      map[Key]Edge
}

// NewChain returns an empty chain whose initializers must touch anatomical.
func NewChain(anatomical Space, registrar Registrar) *Chain {
	return &Chain{anatomical: anatomical, registrar: registrar, edges: make(map[Key]Edge)}
}

// Anatomical returns the subject's anatomical reference space.
func (c *Chain) Anatomical() Space {
	return c.anatomical
}

// Register computes the edge src->dst and stores it. With init set, the
// initializing edge must already exist, end at src and touch the anatomical
// reference; the stored edge then spans init.Source->dst. Registering an
// existing pair replaces it.
func (c *Chain) Register(ctx context.Context, src, dst Space, inputs Inputs, init *Key) (Edge, error) {
	stageName, _ := services.StageFromContext(ctx)
	if src == "" || dst == "" || src == dst {
		return Edge{}, services.Wrap(services.ErrValidation, stageName, "register",
			fmt.Sprintf("invalid registration %s->%s", src, dst), nil)
	}
	if c.registrar == nil {
		return Edge{}, services.Wrap(services.ErrConfiguration, stageName, "register", "no registrar configured", nil)
	}

	key := Key{Source: src, Dest: dst}
	var initEdge *Edge
	if init != nil {
		edge, ok := c.edges[*init]
		if !ok {
			return Edge{}, services.Wrap(services.ErrMissingUpstream, stageName, "register",
				fmt.Sprintf("initializing edge %s has not been computed", init), nil)
		}
		if edge.Dest != src {
			return Edge{}, services.Wrap(services.ErrValidation, stageName, "register",
				fmt.Sprintf("initializing edge %s does not end at %s", init, src), nil)
		}
		if !edge.Touches(c.anatomical) {
			return Edge{}, services.Wrap(services.ErrValidation, stageName, "register",
				fmt.Sprintf("initializing edge %s does not touch anatomical space %s", init, c.anatomical), nil)
		}
		initEdge = &edge
		key = Key{Source: edge.Source, Dest: dst}
	}
	if key.Source == key.Dest {
		return Edge{}, services.Wrap(services.ErrValidation, stageName, "register",
			fmt.Sprintf("registration %s->%s initialised from %s would map a space onto itself", src, dst, init), nil)
	}
	if c.reaches(key.Dest, key.Source, key) {
		return Edge{}, services.Wrap(services.ErrValidation, stageName, "register",
			fmt.Sprintf("edge %s would create a cycle", key), nil)
	}

	edge, err := c.registrar.Register(ctx, src, dst, inputs, initEdge)
	if err != nil {
		return Edge{}, err
	}
	edge.Source = key.Source
	edge.Dest = key.Dest
	if init != nil {
		k := *init
		edge.InitializedFrom = &k
	}
	c.edges[key] = edge
	return edge, nil
}

// Lookup returns the edge oriented from a to b, whichever direction it was
// stored in.
func (c *Chain) Lookup(a, b Space) (Edge, bool) {
	if edge, ok := c.edges[Key{Source: a, Dest: b}]; ok {
		return edge, true
	}
	if edge, ok := c.edges[Key{Source: b, Dest: a}]; ok {
		return edge.Inverted(), true
	}
	return Edge{}, false
}

// Edges returns all stored edges.
func (c *Chain) Edges() []Edge {
	out := make([]Edge, 0, len(c.edges))
	for _, edge := range c.edges {
		out = append(out, edge)
	}
	sortEdges(out)
	return out
}

// reaches reports whether to is reachable from from along stored forward
// edges, ignoring skip.
func (c *Chain) reaches(from, to Space, skip Key) bool {
	seen := map[Space]bool{from: true}
	queue := []Space{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for key := range c.edges {
			if key == skip || key.Source != cur || seen[key.Dest] {
				continue
			}
			seen[key.Dest] = true
			queue = append(queue, key.Dest)
		}
	}
	return false
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Dest < edges[j].Dest
	})
}
