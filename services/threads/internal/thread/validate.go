package thread

import (
	"fmt"
	"sort"
)

// Validate checks the nested-set invariants of one thread's nodes.
func Validate(nodes []Node) error {
	byID := make(map[ID]Node, len(nodes))
	children := make(map[ID][]Node)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if n.Left >= n.Right {
			return fmt.Errorf("%w: node %s has interval (%d, %d)", ErrIntegrity, n.ID, n.Left, n.Right)
		}
		if n.IsRoot() {
			if n.Left != 1 || n.ThreadRootID != n.ID {
				return fmt.Errorf("%w: root %s has left %d, thread %s", ErrIntegrity, n.ID, n.Left, n.ThreadRootID)
			}
			continue
		}
		p, ok := byID[*n.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %s of %s is missing", ErrIntegrity, *n.ParentID, n.ID)
		}
		if !p.Contains(n) {
			return fmt.Errorf("%w: %s (%d, %d) is not inside parent %s (%d, %d)",
				ErrIntegrity, n.ID, n.Left, n.Right, p.ID, p.Left, p.Right)
		}
		children[p.ID] = append(children[p.ID], n)
	}
	for _, n := range nodes {
		kids := children[n.ID]
		if n.Deleted && len(kids) == 0 {
			return fmt.Errorf("%w: placeholder %s has no replies", ErrIntegrity, n.ID)
		}
		sort.Slice(kids, func(i, j int) bool { return kids[i].Left < kids[j].Left })
		for i := 1; i < len(kids); i++ {
			if kids[i-1].Right >= kids[i].Left {
				return fmt.Errorf("%w: siblings %s and %s overlap", ErrIntegrity, kids[i-1].ID, kids[i].ID)
			}
		}
	}
	return nil
}
