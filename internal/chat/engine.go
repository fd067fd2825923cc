// Package chat manages branching conversation sessions against a generated
// character.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/persona-studio/internal/models"
	"github.com/easeaico/persona-studio/internal/types"
	"github.com/easeaico/persona-studio/internal/utils"
)

var (
	// ErrEmptyMessage rejects blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrResponding rejects a send while a response is in flight.
	ErrResponding = errors.New("a response is already in flight")
	// ErrNoSession rejects operations before EnsureSession.
	ErrNoSession = errors.New("no session loaded")
	// ErrUnknownNode rejects a branch switch to a node not in the session.
	ErrUnknownNode = errors.New("unknown node id")
	// ErrReplyFailed is the generic failure surfaced when the adapter call
	// of a chat turn fails. The user's turn stays persisted.
	ErrReplyFailed = errors.New("reply generation failed")
)

// defaultOpening seeds sessions for characters without a first message.
const defaultOpening = "*{{char}} looks up as {{user}} approaches.* Hello."

// SessionStore is the persistence boundary the engine talks to.
type SessionStore interface {
	// GetChatSession returns nil, nil when no session exists yet.
	GetChatSession(ctx context.Context, characterID, userID string) (*types.ChatSession, error)
	SaveChatSession(ctx context.Context, session *types.ChatSession) error
}

// Engine drives one loaded session: turn-taking with a provider adapter and
// branch selection over the message tree.
type Engine struct {
	store           SessionStore
	transcriptLimit int

	mu          sync.Mutex
	session     *types.ChatSession
	character   *types.CharacterRecord
	displayName string
	responding  bool
}

// NewEngine creates an Engine. transcriptLimit bounds how many path nodes
// are sent to the adapter per turn.
func NewEngine(store SessionStore, transcriptLimit int) *Engine {
	if transcriptLimit <= 0 {
		transcriptLimit = 20
	}
	return &Engine{store: store, transcriptLimit: transcriptLimit}
}

// SetDisplayName sets the per-device name used to resolve the {{user}}
// placeholder at render time. Stored node text keeps the placeholder.
func (e *Engine) SetDisplayName(name string) {
	e.mu.Lock()
	e.displayName = strings.TrimSpace(name)
	e.mu.Unlock()
}

// Responding reports whether a reply is in flight.
func (e *Engine) Responding() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.responding
}

// EnsureSession loads the session for the (user, character) pair, creating
// one seeded with the character's opening line when none exists.
func (e *Engine) EnsureSession(ctx context.Context, character *types.CharacterRecord, userID string) (*types.ChatSession, error) {
	if character == nil || character.ID == "" {
		return nil, fmt.Errorf("character with identity is required")
	}

	session, err := e.store.GetChatSession(ctx, character.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	if session == nil {
		opening := character.FirstMessage()
		if strings.TrimSpace(opening) == "" {
			opening = defaultOpening
		}
		root := types.ChatNode{
			ID:        uuid.NewString(),
			Role:      types.RoleModel,
			Text:      opening,
			Timestamp: time.Now().UTC(),
		}
		session = &types.ChatSession{
			ID:           uuid.NewString(),
			CharacterID:  character.ID,
			UserID:       userID,
			Nodes:        []types.ChatNode{root},
			ActiveNodeID: root.ID,
		}
		if err := e.store.SaveChatSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist new chat session: %w", err)
		}
	}

	e.mu.Lock()
	e.session = session
	e.character = character
	e.mu.Unlock()
	return session, nil
}

// SendMessage appends a user turn under the active node, persists it, asks
// the adapter for the reply, and persists the model turn. An adapter
// failure leaves the already-persisted user node active; no partial model
// node is ever written.
func (e *Engine) SendMessage(ctx context.Context, adapter models.Adapter, modelID, text, responseLength string) (*types.ChatNode, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrNoSession
	}
	if e.responding {
		e.mu.Unlock()
		return nil, ErrResponding
	}
	e.responding = true
	session := e.session
	character := e.character

	userNode := types.ChatNode{
		ID:        uuid.NewString(),
		ParentID:  session.ActiveNodeID,
		Role:      types.RoleUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	session.Nodes = append(session.Nodes, userNode)
	session.ActiveNodeID = userNode.ID
	messages := e.transcript(session, character, e.displayName)
	saveErr := e.store.SaveChatSession(ctx, session)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.responding = false
		e.mu.Unlock()
	}()

	if saveErr != nil {
		return nil, fmt.Errorf("failed to persist user turn: %w", saveErr)
	}

	// The adapter call runs unlocked on the snapshot taken above; responding
	// keeps other writers out of the session until the turn settles.
	reply, err := adapter.Chat(ctx, models.ChatRequest{
		SystemRules:    systemRules(character),
		Messages:       messages,
		Model:          modelID,
		NSFW:           character != nil && character.NSFW,
		ResponseLength: responseLength,
	})
	if err != nil {
		slog.Error("chat reply failed", "session", session.ID, "error", err.Error())
		return nil, ErrReplyFailed
	}

	modelNode := types.ChatNode{
		ID:        uuid.NewString(),
		ParentID:  userNode.ID,
		Role:      types.RoleModel,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	}
	e.mu.Lock()
	session.Nodes = append(session.Nodes, modelNode)
	session.ActiveNodeID = modelNode.ID
	saveErr = e.store.SaveChatSession(ctx, session)
	e.mu.Unlock()
	if saveErr != nil {
		return nil, fmt.Errorf("failed to persist model turn: %w", saveErr)
	}
	return &modelNode, nil
}

// SwitchBranch retargets the active pointer to an existing node. Nodes are
// never removed or mutated; the rendered transcript is recomputed as the
// root-to-node path. A switch is rejected while a reply is in flight.
func (e *Engine) SwitchBranch(ctx context.Context, nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrNoSession
	}
	if e.responding {
		return ErrResponding
	}
	if e.session.Node(nodeID) == nil {
		return ErrUnknownNode
	}
	e.session.ActiveNodeID = nodeID
	if err := e.store.SaveChatSession(ctx, e.session); err != nil {
		return fmt.Errorf("failed to persist branch switch: %w", err)
	}
	return nil
}

// ActivePath returns the root-to-active node sequence with placeholders
// resolved for display. Stored nodes keep their placeholders.
func (e *Engine) ActivePath() []types.ChatNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}

	path := Path(e.session, e.session.ActiveNodeID)
	resolved := make([]types.ChatNode, len(path))
	for i, node := range path {
		node.Text = utils.ReplaceVars(node.Text, characterName(e.character), e.displayName)
		resolved[i] = node
	}
	return resolved
}

// transcript renders the most recent path nodes for the adapter.
func (e *Engine) transcript(session *types.ChatSession, character *types.CharacterRecord, displayName string) []types.ChatMessage {
	path := Path(session, session.ActiveNodeID)
	if len(path) > e.transcriptLimit {
		path = path[len(path)-e.transcriptLimit:]
	}
	messages := make([]types.ChatMessage, 0, len(path))
	for _, node := range path {
		messages = append(messages, types.ChatMessage{
			Role:    node.Role,
			Content: utils.ReplaceVars(node.Text, characterName(character), displayName),
		})
	}
	return messages
}

// Path walks parent links from the given node up to its root and returns
// the downward sequence. The walk is bounded by the arena size, so a
// corrupt parent cycle terminates instead of looping.
func Path(session *types.ChatSession, nodeID string) []types.ChatNode {
	var reversed []types.ChatNode
	current := session.Node(nodeID)
	for steps := 0; current != nil && steps <= len(session.Nodes); steps++ {
		reversed = append(reversed, *current)
		if current.ParentID == "" {
			break
		}
		current = session.Node(current.ParentID)
	}

	path := make([]types.ChatNode, len(reversed))
	for i, node := range reversed {
		path[len(reversed)-1-i] = node
	}
	return path
}

func systemRules(character *types.CharacterRecord) string {
	if character == nil {
		return ""
	}
	return character.SystemRules
}

func characterName(character *types.CharacterRecord) string {
	if character == nil {
		return ""
	}
	return character.Name
}
