package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindStart     NodeKind = "start"
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
	NodeKindWait      NodeKind = "wait"
	NodeKindChain     NodeKind = "chain"
	NodeKindEnd       NodeKind = "end"
)

// Overlay statuses. Action results map to completed or failed; a delayed
// action of a running run without a result is scheduled.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusScheduled = "scheduled"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one box of the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the outcome recorded for an action in a run.
type StatusOverlay struct {
	Status  string
	Message string
}

// Edge connects two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
