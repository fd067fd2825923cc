package types

import "time"

// Chat roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatNode is one turn in the branching conversation tree. Nodes with an
// empty ParentID are roots; siblings sharing a ParentID are branches.
type ChatNode struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession stores the whole node arena plus the active-branch pointer.
// The rendered conversation is the root-to-active path via ParentID links.
type ChatSession struct {
	ID           string     `json:"id"`
	CharacterID  string     `json:"character_id"`
	UserID       string     `json:"user_id"`
	Nodes        []ChatNode `json:"nodes"`
	ActiveNodeID string     `json:"active_node_id"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Node returns the node with the given id, or nil.
func (s *ChatSession) Node(id string) *ChatNode {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// ChatMessage is one transcript entry handed to a provider adapter.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
