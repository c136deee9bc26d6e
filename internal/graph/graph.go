// Package graph derives a relationship graph from the knowledge store.
// Question nodes link to the entities their answers mention and to the
// source each answer came from; questions that share entities get inferred
// edges, capped to control noise. The graph is rebuilt from store snapshots
// and swapped in atomically, so readers always see a complete view.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/protype-ai/protype/internal/extract"
	"github.com/protype-ai/protype/internal/store"
)

// Kind classifies a node.
type Kind string

const (
	KindQuestion Kind = "question"
	KindEntity   Kind = "entity"
	KindSource   Kind = "source"
)

// EdgeKind classifies an edge relation.
type EdgeKind string

const (
	// EdgeContains links a question to an entity in its answer.
	EdgeContains EdgeKind = "contains"
	// EdgeFrom links a question to the source of its answer.
	EdgeFrom EdgeKind = "from"
	// EdgeInferred links two questions whose answers share entities.
	EdgeInferred EdgeKind = "inferred"
)

// entitiesPerAnswer bounds the contains-fanout of a single answer.
const entitiesPerAnswer = 16

// Node is a vertex. Identity is a hash of kind and normalized label, so
// near-duplicate phrasings collapse onto one node; the display text lives
// in Label.
type Node struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Label      string `json:"label"`
	EntityType string `json:"entity_type,omitempty"`
}

// Edge is a directed link. Inferred edges are stored once, from the
// lexicographically smaller question node, and treated as undirected by
// readers.
type Edge struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Relation   EdgeKind `json:"relation"`
	Confidence float64  `json:"confidence"`
	Inferred   bool     `json:"inferred,omitempty"`
}

// Stats summarizes a view.
type Stats struct {
	Questions        int `json:"questions"`
	Entities         int `json:"entities"`
	Sources          int `json:"sources"`
	Edges            int `json:"edges"`
	Inferred         int `json:"inferred"`
	InferredRejected int `json:"inferred_rejected"`
	Skipped          int `json:"skipped"`
}

// NodeID derives the stable identifier for a node.
func NodeID(kind Kind, label string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + store.Normalize(label)))
	return hex.EncodeToString(sum[:16])
}

// View is one build of the graph. Mutation happens only during
// construction, before the view is published; all methods used after
// publication are read-only and safe for concurrent use.
type View struct {
	nodes       map[string]Node
	out         map[string][]Edge
	in          map[string][]Edge
	inferredCap int
	stats       Stats
}

// NewView returns an empty view with the given inferred-edge cap.
func NewView(inferredCap int) *View {
	return &View{
		nodes:       make(map[string]Node),
		out:         make(map[string][]Edge),
		in:          make(map[string][]Edge),
		inferredCap: inferredCap,
	}
}

// Build constructs a view from a store snapshot. An entry whose extraction
// fails contributes its question and source nodes only; the failure is
// counted in Stats().Skipped. Deterministic for a given snapshot and
// extractor.
func Build(entries []store.Entry, extractor extract.Func, inferredCap int) *View {
	if extractor == nil {
		extractor = extract.Heuristic(entitiesPerAnswer)
	}
	v := NewView(inferredCap)

	// entity node ID -> question node IDs whose answers mention it
	mentions := make(map[string][]string)

	for _, e := range entries {
		qID := v.addNode(Node{Kind: KindQuestion, Label: e.Question})
		sID := v.addNode(Node{Kind: KindSource, Label: e.Source})
		v.addEdge(Edge{From: qID, To: sID, Relation: EdgeFrom, Confidence: e.Weight})

		entities, err := extractor(e.Answer)
		if err != nil {
			v.stats.Skipped++
			continue
		}
		for _, ent := range entities {
			eID := v.addNode(Node{Kind: KindEntity, Label: ent.Text, EntityType: ent.Type})
			v.addEdge(Edge{From: qID, To: eID, Relation: EdgeContains, Confidence: e.Weight})
			mentions[eID] = append(mentions[eID], qID)
		}
	}

	v.inferEdges(mentions)
	return v
}

func (v *View) addNode(n Node) string {
	n.Label = store.Normalize(n.Label)
	n.ID = NodeID(n.Kind, n.Label)
	if _, ok := v.nodes[n.ID]; !ok {
		v.nodes[n.ID] = n
		switch n.Kind {
		case KindQuestion:
			v.stats.Questions++
		case KindEntity:
			v.stats.Entities++
		case KindSource:
			v.stats.Sources++
		}
	}
	return n.ID
}

func (v *View) addEdge(e Edge) {
	v.out[e.From] = append(v.out[e.From], e)
	v.in[e.To] = append(v.in[e.To], e)
	v.stats.Edges++
	if e.Inferred {
		v.stats.Inferred++
	}
}

// AddInferredEdge adds a speculative edge between two existing nodes.
// Returns false, without error, once the inferred-edge cap is reached or
// when either node is missing. Rejections are counted in Stats().
//
// Construction-time only: like every mutator it must not be called on a
// view that has been published, whose methods are read-only.
func (v *View) AddInferredEdge(from, to string, confidence float64) bool {
	if _, ok := v.nodes[from]; !ok {
		return false
	}
	if _, ok := v.nodes[to]; !ok {
		return false
	}
	if v.stats.Inferred >= v.inferredCap {
		v.stats.InferredRejected++
		return false
	}
	v.addEdge(Edge{From: from, To: to, Relation: EdgeInferred, Confidence: confidence, Inferred: true})
	return true
}

type pair struct{ a, b string }

// inferEdges connects question pairs that share entities, strongest
// overlap first, deterministically, until the cap rejects further edges.
func (v *View) inferEdges(mentions map[string][]string) {
	shared := make(map[pair]int)
	for _, qs := range mentions {
		if len(qs) < 2 {
			continue
		}
		sort.Strings(qs)
		for i := 0; i < len(qs); i++ {
			for j := i + 1; j < len(qs); j++ {
				shared[pair{qs[i], qs[j]}]++
			}
		}
	}

	pairs := make([]pair, 0, len(shared))
	for p := range shared {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if shared[pairs[i]] != shared[pairs[j]] {
			return shared[pairs[i]] > shared[pairs[j]]
		}
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	for _, p := range pairs {
		confidence := 0.2 * float64(shared[p])
		if confidence > 1 {
			confidence = 1
		}
		v.AddInferredEdge(p.a, p.b, confidence)
	}
}

// Node returns the node with the given ID.
func (v *View) Node(id string) (Node, bool) {
	n, ok := v.nodes[id]
	return n, ok
}

// QuestionNode looks up the node for a question by its text.
func (v *View) QuestionNode(question string) (Node, bool) {
	return v.Node(NodeID(KindQuestion, question))
}

// Edges returns the outgoing edges of id.
func (v *View) Edges(id string) []Edge {
	edges := make([]Edge, len(v.out[id]))
	copy(edges, v.out[id])
	return edges
}

// RelatedConcepts returns up to limit direct neighbors of a node, highest
// edge confidence first. Both edge directions count.
func (v *View) RelatedConcepts(id string, limit int) []Node {
	if limit <= 0 {
		limit = 5
	}

	best := make(map[string]float64)
	for _, e := range v.undirected(id) {
		other := e.To
		if other == id {
			other = e.From
		}
		if e.Confidence > best[other] {
			best[other] = e.Confidence
		}
	}

	ids := make([]string, 0, len(best))
	for nid := range best {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(i, j int) bool {
		if best[ids[i]] != best[ids[j]] {
			return best[ids[i]] > best[ids[j]]
		}
		return v.nodes[ids[i]].Label < v.nodes[ids[j]].Label
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Node, len(ids))
	for i, nid := range ids {
		out[i] = v.nodes[nid]
	}
	return out
}

// ShortestPath returns the nodes on a shortest undirected path between two
// nodes, inclusive, or nil when none exists within maxLen edges.
// maxLen <= 0 defaults to 6. Breadth-first, so the result minimizes hops.
func (v *View) ShortestPath(from, to string, maxLen int) []Node {
	if maxLen <= 0 {
		maxLen = 6
	}
	if _, ok := v.nodes[from]; !ok {
		return nil
	}
	if _, ok := v.nodes[to]; !ok {
		return nil
	}
	if from == to {
		return []Node{v.nodes[from]}
	}

	prev := map[string]string{from: from}
	depth := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if depth[cur] >= maxLen {
			continue
		}
		for _, e := range v.undirected(cur) {
			next := e.To
			if next == cur {
				next = e.From
			}
			if _, ok := prev[next]; ok {
				continue
			}
			prev[next] = cur
			depth[next] = depth[cur] + 1
			if next == to {
				return v.walkBack(prev, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (v *View) walkBack(prev map[string]string, from, to string) []Node {
	var rev []Node
	for cur := to; ; cur = prev[cur] {
		rev = append(rev, v.nodes[cur])
		if cur == from {
			break
		}
	}
	path := make([]Node, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}

// LowConnectivityEntities returns up to max entity nodes with total degree
// of one or less, sorted by label. These are the graph's thin spots; the
// scheduler turns them into learning objectives.
func (v *View) LowConnectivityEntities(max int) []Node {
	if max <= 0 {
		max = 10
	}

	var out []Node
	for id, n := range v.nodes {
		if n.Kind != KindEntity {
			continue
		}
		if len(v.out[id])+len(v.in[id]) <= 1 {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// undirected returns the edges touching id in either direction.
func (v *View) undirected(id string) []Edge {
	edges := make([]Edge, 0, len(v.out[id])+len(v.in[id]))
	edges = append(edges, v.out[id]...)
	edges = append(edges, v.in[id]...)
	return edges
}

// Stats returns the view's counters.
func (v *View) Stats() Stats { return v.stats }

// export is the serialized form of a view.
type export struct {
	InferredCap int    `json:"inferred_cap"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Export serializes the full node/edge set, deterministically ordered.
func (v *View) Export() ([]byte, error) {
	ex := export{InferredCap: v.inferredCap}
	for _, n := range v.nodes {
		ex.Nodes = append(ex.Nodes, n)
	}
	sort.Slice(ex.Nodes, func(i, j int) bool { return ex.Nodes[i].ID < ex.Nodes[j].ID })

	ids := make([]string, 0, len(v.out))
	for id := range v.out {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ex.Edges = append(ex.Edges, v.out[id]...)
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return nil, fmt.Errorf("exporting graph: %w", err)
	}
	return data, nil
}

// Import reconstructs a view from Export output.
func Import(data []byte) (*View, error) {
	var ex export
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("importing graph: %w", err)
	}

	v := NewView(ex.InferredCap)
	for _, n := range ex.Nodes {
		if n.ID == "" || n.Kind == "" {
			return nil, fmt.Errorf("importing graph: node missing id or kind")
		}
		if _, ok := v.nodes[n.ID]; ok {
			continue
		}
		v.nodes[n.ID] = n
		switch n.Kind {
		case KindQuestion:
			v.stats.Questions++
		case KindEntity:
			v.stats.Entities++
		case KindSource:
			v.stats.Sources++
		}
	}
	for _, e := range ex.Edges {
		if _, ok := v.nodes[e.From]; !ok {
			return nil, fmt.Errorf("importing graph: edge from unknown node %s", e.From)
		}
		if _, ok := v.nodes[e.To]; !ok {
			return nil, fmt.Errorf("importing graph: edge to unknown node %s", e.To)
		}
		v.addEdge(e)
	}
	return v, nil
}
