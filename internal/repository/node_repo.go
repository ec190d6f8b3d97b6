package repository

import (
	"context"
	"fmt"

	"github.com/timmy/sissync/internal/domain"
	"gorm.io/gorm"
)

// NodeRepository reads the organizational node tree and its school registrations.
type NodeRepository struct {
	db *gorm.DB
}

// NewNodeRepository creates a new NodeRepository.
func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// ChildIDs returns the ids of every node whose parent is in parentIDs.
func (r *NodeRepository) ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&domain.Node{}).
		Where("parent_id IN ?", parentIDs).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list child nodes: %w", err)
	}
	return ids, nil
}

// ExpandDescendants returns nodeIDs plus all of their descendants, breadth-first,
// without duplicates. Each root is walked on its own so that a node seen twice
// within one walk can only mean a cycle in the parent pointers; the cycle is cut
// at the repeated node and reported through cycleDetected.
func (r *NodeRepository) ExpandDescendants(ctx context.Context, nodeIDs []uint) (expanded []uint, cycleDetected bool, err error) {
	seen := make(map[uint]struct{}, len(nodeIDs))
	for _, root := range nodeIDs {
		if _, ok := seen[root]; ok {
			continue
		}
		closure, cycle, err := r.closure(ctx, root)
		if err != nil {
			return nil, false, err
		}
		cycleDetected = cycleDetected || cycle
		for _, id := range closure {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			expanded = append(expanded, id)
		}
	}
	return expanded, cycleDetected, nil
}

// closure walks the subtree under root. A node with no children is its own closure.
func (r *NodeRepository) closure(ctx context.Context, root uint) ([]uint, bool, error) {
	visited := map[uint]struct{}{root: {}}
	out := []uint{root}
	frontier := []uint{root}
	cycle := false

	for len(frontier) > 0 {
		children, err := r.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, false, err
		}
		next := make([]uint, 0, len(children))
		for _, child := range children {
			if _, ok := visited[child]; ok {
				cycle = true
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			next = append(next, child)
		}
		frontier = next
	}
	return out, cycle, nil
}

// SchoolIDsForNodes returns the external school ids of source registered against any of nodeIDs.
func (r *NodeRepository) SchoolIDsForNodes(ctx context.Context, source domain.Source, nodeIDs []uint) ([]string, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	var schoolIDs []string
	if err := r.db.WithContext(ctx).
		Model(&domain.NodeSchool{}).
		Where("source = ? AND node_id IN ?", source, nodeIDs).
		Distinct("external_school_id").
		Pluck("external_school_id", &schoolIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list node schools: %w", err)
	}
	return schoolIDs, nil
}
