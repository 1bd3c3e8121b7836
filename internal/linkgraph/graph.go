package linkgraph

import "github.com/starford/lattice/internal/models"

// Node is a note in the link graph.
type Node struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OutDegree int    `json:"outDegree"`
	InDegree  int    `json:"inDegree"`
}

// Edge is a directed reference from Source to Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Overview is the whole graph plus the notes with no links either way.
type Overview struct {
	Nodes   []Node   `json:"nodes"`
	Edges   []Edge   `json:"edges"`
	Orphans []string `json:"orphans"`
}

// Graph builds the overview from already reconciled link sets.
func Graph(notes []*models.Note) Overview {
	ov := Overview{
		Nodes:   make([]Node, 0, len(notes)),
		Edges:   []Edge{},
		Orphans: []string{},
	}
	for _, n := range notes {
		out, in := len(n.Links.Outbound), len(n.Links.Inbound)
		ov.Nodes = append(ov.Nodes, Node{ID: n.ID, Title: n.Title, OutDegree: out, InDegree: in})
		for _, target := range n.Links.Outbound {
			ov.Edges = append(ov.Edges, Edge{Source: n.ID, Target: target})
		}
		if out == 0 && in == 0 {
			ov.Orphans = append(ov.Orphans, n.ID)
		}
	}
	return ov
}
