package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a node.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentStatus tracks an attachment through its lifecycle.
// A placeholder starts as "loading" and reaches exactly one terminal
// status ("complete" or "failed"); the attachment ID never changes.
type AttachmentStatus string

const (
	AttachmentLoading  AttachmentStatus = "loading"
	AttachmentComplete AttachmentStatus = "complete"
	AttachmentFailed   AttachmentStatus = "failed"
)

// Attachment is one generated or uploaded image bound to a node.
// Key is the object-store key, present only once the status is "complete".
// Prompt is kept so a single image can be regenerated later.
type Attachment struct {
	ID     string           `json:"id"`
	Status AttachmentStatus `json:"status"`
	Key    string           `json:"key,omitempty"`
	Prompt string           `json:"prompt,omitempty"`
}

// Node is one turn in the conversation tree.
// ChildrenIDs is ordered by creation, which doubles as the
// branch-selection order (last element = most recently active branch).
// Timestamps are epoch milliseconds, matching the snapshot format.
type Node struct {
	ID          string       `json:"id"`
	ParentID    *string      `json:"parentId"`
	ChildrenIDs []string     `json:"childrenIds"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Model       string       `json:"model,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
}

// NewNode creates a detached node with a fresh ID. The node is not part of
// any tree until Attach is called; IDs are never reused, so a rolled-back
// node leaves no trace.
func NewNode(parentID *string, role Role, content string, attachments []Attachment) *Node {
	now := time.Now().UnixMilli()
	return &Node{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		ChildrenIDs: []string{},
		Role:        role,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewAttachmentPlaceholder creates a loading attachment for the given prompt.
func NewAttachmentPlaceholder(prompt string) Attachment {
	return Attachment{
		ID:     uuid.NewString(),
		Status: AttachmentLoading,
		Prompt: prompt,
	}
}

// clone returns a deep-enough copy of the node for copy-on-write mutation:
// slices are copied, scalar fields are shared by value.
func (n *Node) clone() *Node {
	c := *n
	c.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	if n.Attachments != nil {
		c.Attachments = append([]Attachment(nil), n.Attachments...)
	}
	return &c
}

// AttachmentKeys returns the object-store keys held by the node's attachments.
func (n *Node) AttachmentKeys() []string {
	var keys []string
	for _, a := range n.Attachments {
		if a.Key != "" {
			keys = append(keys, a.Key)
		}
	}
	return keys
}
