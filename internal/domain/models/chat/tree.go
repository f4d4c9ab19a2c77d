package chat

import (
	"fmt"
	"time"

	"vinpix/internal/domain"
)

// Direction selects a sibling relative to the current branch.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// Tree is the conversation aggregate: a flat id-indexed node store plus the
// root and "current view" pointers. All mutators are pure - they return a new
// Tree value with a copied node map (node values are shared until modified),
// so callers can reason about "the tree as of this call" while a turn is in
// flight.
type Tree struct {
	SessionID     string           `json:"sessionId"`
	RootNodeID    *string          `json:"rootNodeId"`
	CurrentNodeID *string          `json:"currentNodeId"`
	Nodes         map[string]*Node `json:"nodes"`
}

// NewTree creates an empty tree for a session.
func NewTree(sessionID string) Tree {
	return Tree{
		SessionID: sessionID,
		Nodes:     map[string]*Node{},
	}
}

// DeleteResult reports the outcome of a subtree deletion.
type DeleteResult struct {
	// RemovedAttachmentKeys holds every object-store key found in the
	// removed subtree, for external cleanup by the caller.
	RemovedAttachmentKeys []string
	// RootRemoved is true when the deleted node was the tree root.
	RootRemoved bool
}

// Node looks up a node by ID.
func (t Tree) Node(id string) (*Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Current returns the node currently in view, if any.
func (t Tree) Current() (*Node, bool) {
	if t.CurrentNodeID == nil {
		return nil, false
	}
	return t.Node(*t.CurrentNodeID)
}

// cloneNodes shallow-copies the node map for copy-on-write mutation.
func (t Tree) cloneNodes() map[string]*Node {
	nodes := make(map[string]*Node, len(t.Nodes))
	for id, n := range t.Nodes {
		nodes[id] = n
	}
	return nodes
}

// Attach inserts a detached node into the tree: the node is added to the
// store, its ID appended to the parent's children (no-op when already
// present), and the root pointer set when this is the first node.
func (t Tree) Attach(n *Node) (Tree, error) {
	if _, exists := t.Nodes[n.ID]; exists {
		return t, fmt.Errorf("node %s: %w", n.ID, domain.ErrConflict)
	}

	nodes := t.cloneNodes()

	if n.ParentID == nil {
		if t.RootNodeID != nil {
			return t, fmt.Errorf("%w: tree already has a root", domain.ErrValidation)
		}
		nodes[n.ID] = n
		t.Nodes = nodes
		t.RootNodeID = &n.ID
		return t, nil
	}

	parent, ok := nodes[*n.ParentID]
	if !ok {
		return t, fmt.Errorf("%w: parent %s does not exist", domain.ErrValidation, *n.ParentID)
	}

	if !contains(parent.ChildrenIDs, n.ID) {
		parent = parent.clone()
		parent.ChildrenIDs = append(parent.ChildrenIDs, n.ID)
		nodes[parent.ID] = parent
	}

	nodes[n.ID] = n
	t.Nodes = nodes
	if t.RootNodeID == nil {
		t.RootNodeID = &n.ID
	}
	return t, nil
}

// PathTo walks parent links from nodeID up to the root and returns the nodes
// in root-first order. A dangling parent reference is a fatal integrity
// error: it cannot happen if every mutation went through the sanctioned
// operations, so it is surfaced as ErrIntegrity rather than recovered from.
func (t Tree) PathTo(nodeID string) ([]*Node, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}

	var path []*Node
	for {
		path = append(path, n)
		if n.ParentID == nil {
			break
		}
		parent, ok := t.Nodes[*n.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: node %s references missing parent %s",
				domain.ErrIntegrity, n.ID, *n.ParentID)
		}
		n = parent
	}

	// Reverse to root-first order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// SwitchBranch selects the previous/next sibling of nodeID and descends into
// that sibling's deepest last-child chain, returning the node ID to set as
// the current view. Descending restores the last-seen continuation of the
// branch instead of truncating the view at the sibling itself. The index is
// clamped at the first/last sibling.
func (t Tree) SwitchBranch(nodeID string, dir Direction) (string, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	if n.ParentID == nil {
		return "", fmt.Errorf("%w: root node has no siblings", domain.ErrValidation)
	}

	parent, ok := t.Nodes[*n.ParentID]
	if !ok {
		return "", fmt.Errorf("%w: node %s references missing parent %s",
			domain.ErrIntegrity, n.ID, *n.ParentID)
	}

	idx := indexOf(parent.ChildrenIDs, nodeID)
	if idx < 0 {
		return "", fmt.Errorf("%w: node %s missing from parent children", domain.ErrIntegrity, nodeID)
	}

	switch dir {
	case DirectionPrev:
		idx--
	case DirectionNext:
		idx++
	default:
		return "", fmt.Errorf("%w: unknown direction %q", domain.ErrValidation, dir)
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(parent.ChildrenIDs)-1 {
		idx = len(parent.ChildrenIDs) - 1
	}

	return t.DeepestLastChild(parent.ChildrenIDs[idx])
}

// DeepestLastChild follows the last-child chain from nodeID down to a leaf.
func (t Tree) DeepestLastChild(nodeID string) (string, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	for len(n.ChildrenIDs) > 0 {
		lastID := n.ChildrenIDs[len(n.ChildrenIDs)-1]
		child, ok := t.Nodes[lastID]
		if !ok {
			return "", fmt.Errorf("%w: node %s references missing child %s",
				domain.ErrIntegrity, n.ID, lastID)
		}
		n = child
	}
	return n.ID, nil
}

// SetCurrent re-points the current view.
func (t Tree) SetCurrent(nodeID string) (Tree, error) {
	if _, ok := t.Nodes[nodeID]; !ok {
		return t, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	t.CurrentNodeID = &nodeID
	return t, nil
}

// DeleteSubtree removes nodeID and all its descendants atomically, detaches
// the node from its parent, and collects every attachment key held by the
// removed nodes so the caller can clean up external storage. If the current
// view pointed into the removed subtree it is re-pointed at the deleted
// node's parent; deleting the root clears the tree pointers and is signalled
// via DeleteResult.RootRemoved.
func (t Tree) DeleteSubtree(nodeID string) (Tree, DeleteResult, error) {
	target, ok := t.Nodes[nodeID]
	if !ok {
		return t, DeleteResult{}, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}

	nodes := t.cloneNodes()
	res := DeleteResult{}

	// Depth-first collect-and-remove over the subtree.
	stack := []string{nodeID}
	removed := map[string]bool{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := nodes[id]
		if !ok {
			return t, DeleteResult{}, fmt.Errorf("%w: subtree references missing node %s",
				domain.ErrIntegrity, id)
		}
		res.RemovedAttachmentKeys = append(res.RemovedAttachmentKeys, n.AttachmentKeys()...)
		stack = append(stack, n.ChildrenIDs...)
		removed[id] = true
		delete(nodes, id)
	}

	if target.ParentID != nil {
		parent, ok := nodes[*target.ParentID]
		if !ok {
			return t, DeleteResult{}, fmt.Errorf("%w: node %s references missing parent %s",
				domain.ErrIntegrity, nodeID, *target.ParentID)
		}
		parent = parent.clone()
		parent.ChildrenIDs = remove(parent.ChildrenIDs, nodeID)
		nodes[parent.ID] = parent
	}

	t.Nodes = nodes

	if t.RootNodeID != nil && removed[*t.RootNodeID] {
		res.RootRemoved = true
		t.RootNodeID = nil
		t.CurrentNodeID = nil
		return t, res, nil
	}

	if t.CurrentNodeID != nil && removed[*t.CurrentNodeID] {
		t.CurrentNodeID = target.ParentID
	}
	return t, res, nil
}

// Detach rolls back a speculatively attached leaf node: it is removed from
// the store and its parent's children, and the current view is restored to
// the parent. Generation rollback is the only caller - a failed turn undoes
// the node it added, never its siblings.
func (t Tree) Detach(nodeID string) (Tree, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return t, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	if len(n.ChildrenIDs) > 0 {
		return t, fmt.Errorf("%w: cannot detach node %s with children", domain.ErrValidation, nodeID)
	}

	nodes := t.cloneNodes()
	delete(nodes, nodeID)

	if n.ParentID != nil {
		parent, ok := nodes[*n.ParentID]
		if !ok {
			return t, fmt.Errorf("%w: node %s references missing parent %s",
				domain.ErrIntegrity, nodeID, *n.ParentID)
		}
		parent = parent.clone()
		parent.ChildrenIDs = remove(parent.ChildrenIDs, nodeID)
		nodes[parent.ID] = parent
	}

	t.Nodes = nodes
	if t.RootNodeID != nil && *t.RootNodeID == nodeID {
		t.RootNodeID = nil
		t.CurrentNodeID = nil
		return t, nil
	}
	if t.CurrentNodeID != nil && *t.CurrentNodeID == nodeID {
		t.CurrentNodeID = n.ParentID
	}
	return t, nil
}

// UpdateNode applies fn to a copy of the node and bumps UpdatedAt.
func (t Tree) UpdateNode(nodeID string, fn func(*Node)) (Tree, error) {
	n, ok := t.Nodes[nodeID]
	if !ok {
		return t, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	c := n.clone()
	fn(c)
	c.UpdatedAt = time.Now().UnixMilli()

	nodes := t.cloneNodes()
	nodes[nodeID] = c
	t.Nodes = nodes
	return t, nil
}

// PatchAttachment transitions one attachment of a node by its stable ID.
// Identity is fixed at placeholder time so a late-arriving image result can
// find its slot regardless of the order sibling attachments resolved in.
func (t Tree) PatchAttachment(nodeID, attachmentID string, status AttachmentStatus, key string) (Tree, error) {
	found := false
	t, err := t.UpdateNode(nodeID, func(n *Node) {
		for i := range n.Attachments {
			if n.Attachments[i].ID == attachmentID {
				n.Attachments[i].Status = status
				n.Attachments[i].Key = key
				found = true
				return
			}
		}
	})
	if err != nil {
		return t, err
	}
	if !found {
		return t, fmt.Errorf("attachment %s on node %s: %w", attachmentID, nodeID, domain.ErrNotFound)
	}
	return t, nil
}

// Validate checks the structural invariants: parent/children links are
// mutually consistent with no duplicates, there are no cycles, and the root
// and current pointers resolve. Used by tests and by callers that want to
// fail loudly before persisting a corrupted tree.
func (t Tree) Validate() error {
	for id, n := range t.Nodes {
		if n.ID != id {
			return fmt.Errorf("%w: node keyed as %s has id %s", domain.ErrIntegrity, id, n.ID)
		}
		if n.ParentID != nil {
			parent, ok := t.Nodes[*n.ParentID]
			if !ok {
				return fmt.Errorf("%w: node %s references missing parent %s",
					domain.ErrIntegrity, id, *n.ParentID)
			}
			if count(parent.ChildrenIDs, id) != 1 {
				return fmt.Errorf("%w: parent %s lists child %s %d times",
					domain.ErrIntegrity, parent.ID, id, count(parent.ChildrenIDs, id))
			}
		}
		for _, childID := range n.ChildrenIDs {
			child, ok := t.Nodes[childID]
			if !ok {
				return fmt.Errorf("%w: node %s lists missing child %s", domain.ErrIntegrity, id, childID)
			}
			if child.ParentID == nil || *child.ParentID != id {
				return fmt.Errorf("%w: child %s does not point back at %s", domain.ErrIntegrity, childID, id)
			}
		}
	}

	if t.RootNodeID != nil {
		root, ok := t.Nodes[*t.RootNodeID]
		if !ok {
			return fmt.Errorf("%w: rootNodeId %s does not resolve", domain.ErrIntegrity, *t.RootNodeID)
		}
		if root.ParentID != nil {
			return fmt.Errorf("%w: root %s has a parent", domain.ErrIntegrity, root.ID)
		}
	}
	if t.CurrentNodeID != nil {
		if _, ok := t.Nodes[*t.CurrentNodeID]; !ok {
			return fmt.Errorf("%w: currentNodeId %s does not resolve", domain.ErrIntegrity, *t.CurrentNodeID)
		}
	}

	// Cycle check: every node must reach a root by parent links.
	for id := range t.Nodes {
		seen := map[string]bool{}
		n := t.Nodes[id]
		for n.ParentID != nil {
			if seen[n.ID] {
				return fmt.Errorf("%w: cycle through node %s", domain.ErrIntegrity, n.ID)
			}
			seen[n.ID] = true
			n = t.Nodes[*n.ParentID]
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	return indexOf(ids, id) >= 0
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func count(ids []string, id string) int {
	c := 0
	for _, v := range ids {
		if v == id {
			c++
		}
	}
	return c
}

func remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
