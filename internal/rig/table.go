package rig

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

// Handle is an opaque reference to a node owned by the renderer. For glTF
// skeletons it is the node index.
type Handle int

// Table maps joints onto renderer handles.
type Table struct {
	handles map[JointID]Handle
	joints  map[Handle]JointID
}

// NewTable builds a table from an explicit mapping. Every joint of
// AllJoints must be present.
func NewTable(handles map[JointID]Handle) (*Table, error) {
	t := &Table{
		handles: make(map[JointID]Handle, len(handles)),
		joints:  make(map[Handle]JointID, len(handles)),
	}
	for _, j := range AllJoints() {
		h, ok := handles[j]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no handle", ErrUnknownJoint, j)
		}
		if other, dup := t.joints[h]; dup {
			return nil, fmt.Errorf("handle %d shared by %s and %s", h, other, j)
		}
		t.handles[j] = h
		t.joints[h] = j
	}
	return t, nil
}

// DefaultTable assigns synthetic handles 0..23 in canonical joint order.
func DefaultTable() *Table {
	handles := make(map[JointID]Handle, JointCount)
	for i, j := range AllJoints() {
		handles[j] = Handle(i)
	}
	t, _ := NewTable(handles)
	return t
}

// Handle resolves a joint.
func (t *Table) Handle(j JointID) (Handle, bool) {
	h, ok := t.handles[j]
	return h, ok
}

// Joint resolves a handle back to its joint.
func (t *Table) Joint(h Handle) (JointID, bool) {
	j, ok := t.joints[h]
	return j, ok
}

// Len is the number of mapped joints.
func (t *Table) Len() int {
	return len(t.handles)
}

// SkeletonNames names the glTF nodes of a two-arm rig. Segment names are
// searched inside each arm's subtree, so both arms may reuse them.
type SkeletonNames struct {
	LeftArm  string
	RightArm string
	Segments map[Finger][]string
}

// DefaultSkeletonNames matches the character rigs the pose documents were
// authored against: t1 t2, i1 i2 i3, m1.., r1.., p1..
func DefaultSkeletonNames(leftArm, rightArm string) SkeletonNames {
	return SkeletonNames{
		LeftArm:  leftArm,
		RightArm: rightArm,
		Segments: map[Finger][]string{
			Thumb:  {"t1", "t2"},
			Index:  {"i1", "i2", "i3"},
			Middle: {"m1", "m2", "m3"},
			Ring:   {"r1", "r2", "r3"},
			Pinky:  {"p1", "p2", "p3"},
		},
	}
}

// LoadSkeleton opens a .gltf/.glb file and resolves the joint table from
// its node hierarchy.
func LoadSkeleton(path string, names SkeletonNames) (*Table, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return TableFromDocument(doc, names)
}

// TableFromDocument resolves the joint table from an already decoded glTF
// document.
func TableFromDocument(doc *gltf.Document, names SkeletonNames) (*Table, error) {
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes in document")
	}

	handles := make(map[JointID]Handle, JointCount)
	arms := map[Side]string{Left: names.LeftArm, Right: names.RightArm}

	for _, side := range Sides {
		root := findNode(doc, arms[side])
		if root < 0 {
			return nil, fmt.Errorf("%w: %s arm node %q not found", ErrUnknownJoint, side, arms[side])
		}
		handles[ArmJoint(side)] = Handle(root)

		subtree := collectSubtree(doc, root)
		for _, f := range Fingers {
			segNames := names.Segments[f]
			if len(segNames) != f.Segments() {
				return nil, fmt.Errorf("%s needs %d segment names, got %d", f, f.Segments(), len(segNames))
			}
			for seg, name := range segNames {
				idx, ok := subtree[name]
				if !ok {
					return nil, fmt.Errorf("%w: %s %s segment %q not under %q",
						ErrUnknownJoint, side, f, name, arms[side])
				}
				handles[JointID{Side: side, Finger: f, Segment: seg}] = Handle(idx)
			}
		}
	}

	return NewTable(handles)
}

func findNode(doc *gltf.Document, name string) int {
	for i, n := range doc.Nodes {
		if n != nil && n.Name == name {
			return i
		}
	}
	return -1
}

// collectSubtree maps node names below root (exclusive) to their indices.
// The first node found breadth-first wins on duplicate names.
func collectSubtree(doc *gltf.Document, root int) map[string]int {
	found := make(map[string]int)
	visited := map[int]bool{root: true}
	queue := append([]int(nil), doc.Nodes[root].Children...)

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			continue
		}
		visited[idx] = true

		node := doc.Nodes[idx]
		if node == nil {
			continue
		}
		if _, seen := found[node.Name]; !seen && node.Name != "" {
			found[node.Name] = idx
		}
		queue = append(queue, node.Children...)
	}
	return found
}
