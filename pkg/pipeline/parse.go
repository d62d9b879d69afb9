package pipeline

import (
	"bytes"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	gio "github.com/hicann/ge-sub098/pkg/io"
)

// Parse decodes a JSON graph document and sorts the root and every subgraph
// in stable topological order. Both passes expect producers to precede
// their consumers.
func Parse(data []byte) (*graph.Graph, error) {
	g, err := gio.ReadJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := sortAll(g); err != nil {
		return nil, err
	}
	return g, nil
}

func sortAll(g *graph.Graph) error {
	for _, cur := range append([]*graph.Graph{g}, g.Subgraphs()...) {
		if err := cur.TopologicalSort(graph.SortStable); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "sort %s", cur.Name())
		}
	}
	return nil
}
