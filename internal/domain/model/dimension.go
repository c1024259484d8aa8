package model

// Dimension levels.
const (
	LevelCategory    = 1
	LevelSubCategory = 2
	LevelLeaf        = 3
)

// Dimension is one node of the three-level category tree.
// ParentID is zero for level-1 nodes.
type Dimension struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Level    int    `json:"level"`
	ParentID int64  `json:"parent_id,omitempty"`
}
