// Package runtime implements the Session Runtime (spec §4.6): the tick
// loop that advances a session one node at a time under its advisory
// lock, suspending at question boundaries and committing one transaction
// per tick.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/siddhantprateek/reefline/internal/concurrency"
	"github.com/siddhantprateek/reefline/internal/flow"
	"github.com/siddhantprateek/reefline/internal/nodeproc"
	"github.com/siddhantprateek/reefline/internal/session"
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/internal/trace"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// loopingKinds continue the tick loop without returning control to
// the caller (spec §4.6 step 7). Question nodes always suspend; webhook
// and script run synchronously within the tick but do not loop further
// automatically — they still return control after one step so the caller
// sees intermediate messages/errors promptly.
var loopingKinds = map[models.NodeType]bool{
	models.NodeTypeStart:     true,
	models.NodeTypeMessage:   true,
	models.NodeTypeAction:    true,
	models.NodeTypeCondition: true,
	models.NodeTypeComposite: true,
}

// WebhookTimeout bounds a webhook node's HTTP call. ScriptTimeout is
// handed to script nodes as ProcessContext.HTTPTimeout, but ScriptProcessor
// does not read it: a script is bounded by its content.timeout (default
// 5000 ms) instead.
const (
	WebhookTimeout = 10 * time.Second
	ScriptTimeout  = 5 * time.Second
)

// TickOutcome is returned to the HTTP-facing caller after Start/Interact.
type TickOutcome struct {
	Session         *models.Session
	MessagesEmitted []map[string]interface{}
	ExpectsInput    bool
	InputType       string
	Terminal        bool
}

// Runtime drives the node-by-node state machine for one session.
type Runtime struct {
	db        *gorm.DB
	flowRepo  *flow.Repository
	sessions  *session.Service
	ctrl      *concurrency.Controller
	registry  nodeproc.Registry
	tracer    *trace.Tracer
}

func New(db *gorm.DB, flowRepo *flow.Repository, sessions *session.Service, ctrl *concurrency.Controller, registry nodeproc.Registry, tracer *trace.Tracer) *Runtime {
	return &Runtime{db: db, flowRepo: flowRepo, sessions: sessions, ctrl: ctrl, registry: registry, tracer: tracer}
}

// Start creates a session at the flow's entry node and runs the tick loop
// to the first suspension point (spec §4.6's initial state rule).
func (r *Runtime) Start(ctx context.Context, flowID string, userID *string, initialContext istate.Bag) (*TickOutcome, error) {
	f, err := r.flowRepo.GetFlow(r.db, flowID)
	if err != nil {
		return nil, err
	}
	if !f.IsPublished {
		return nil, apperr.Validation("flow is not published")
	}

	initial := istate.New()
	if initialContext != nil {
		istate.DeepMerge(initial, istate.Bag{"context": initialContext})
	}
	if base, ok := f.Info["initial_state"].(map[string]interface{}); ok {
		istate.DeepMerge(initial, istate.Bag(base))
	}

	sess, err := r.sessions.CreateSession(flowID, userID, initial, f.EntryNodeID)
	if err != nil {
		return nil, err
	}

	return r.runTick(ctx, sess.ID, nil)
}

// Interact resumes a suspended session with a user answer (or advances a
// non-suspending current node if no input is pending).
func (r *Runtime) Interact(ctx context.Context, sessionToken string, input *nodeproc.UserInput) (*TickOutcome, error) {
	sess, err := r.sessions.GetSessionByToken(sessionToken)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionActive {
		return nil, apperr.Conflict("session is in a terminal state")
	}
	return r.runTick(ctx, sess.ID, input)
}

// runTick acquires the session's advisory lock and walks nodes until a
// suspension or terminal state (spec §4.6 steps 1-7).
func (r *Runtime) runTick(ctx context.Context, sessionID string, input *nodeproc.UserInput) (*TickOutcome, error) {
	acquired, err := r.ctrl.AcquireLock(ctx, sessionID)
	if err != nil {
		return nil, apperr.Internal("acquiring session lock", err)
	}
	if !acquired {
		return nil, apperr.Timeout("timed out waiting for session lock")
	}
	defer func() { _ = r.ctrl.ReleaseLock(context.Background(), sessionID) }()

	outcome := &TickOutcome{MessagesEmitted: []map[string]interface{}{}}
	firstNode := true

	for {
		sess, err := r.sessions.GetSessionByID(sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status != models.SessionActive {
			outcome.Session = sess
			outcome.Terminal = true
			return outcome, nil
		}

		nodeUsed := input
		if !firstNode {
			nodeUsed = nil
		}
		firstNode = false

		stepOutcome, err := r.step(ctx, sess, nodeUsed)
		if err != nil {
			return nil, err
		}

		outcome.Session = stepOutcome.session
		outcome.MessagesEmitted = append(outcome.MessagesEmitted, stepOutcome.messages...)

		if stepOutcome.suspended {
			outcome.ExpectsInput = true
			outcome.InputType = stepOutcome.inputType
			return outcome, nil
		}
		if stepOutcome.terminal {
			outcome.Terminal = true
			return outcome, nil
		}
		if !loopingKinds[stepOutcome.nodeType] {
			return outcome, nil
		}
	}
}

type singleStepOutcome struct {
	session   *models.Session
	messages  []map[string]interface{}
	suspended bool
	terminal  bool
	inputType string
	nodeType  models.NodeType
}

// step executes exactly one node: load its content, dispatch to its
// processor, persist the outcome in one transaction, and append history
// and a trace record (spec §4.6 step 3-6, §5 transaction scope).
func (r *Runtime) step(ctx context.Context, sess *models.Session, input *nodeproc.UserInput) (*singleStepOutcome, error) {
	node, err := r.flowRepo.GetNode(r.db, sess.FlowID, sess.CurrentNodeID)
	if err != nil {
		return nil, err
	}
	conns, err := r.outgoingConnections(sess.FlowID, node.NodeID)
	if err != nil {
		return nil, err
	}

	proc, ok := r.registry[node.NodeType]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("no processor registered for node type %q", node.NodeType))
	}

	timeout := time.Duration(0)
	switch node.NodeType {
	case models.NodeTypeWebhook:
		timeout = WebhookTimeout
	case models.NodeTypeScript:
		timeout = ScriptTimeout
	}

	stateBefore := models.JSONMap(istate.Clone(istate.Bag(sess.State)).(istate.Bag))
	started := time.Now().UTC()

	pctx := nodeproc.ProcessContext{
		Ctx:         ctx,
		Node:        node,
		Session:     sess,
		State:       istate.Bag(sess.State),
		Connections: conns,
		Input:       input,
		HTTPTimeout: timeout,
	}
	result, procErr := proc.Process(pctx)
	if procErr != nil {
		return nil, apperr.Internal("processing node", procErr)
	}
	completed := time.Now().UTC()

	out := &singleStepOutcome{nodeType: node.NodeType}

	if result.ExpectsInput {
		out.suspended = true
		out.inputType = result.InputType
		out.messages = result.MessagesEmitted
		err = r.db.Transaction(func(tx *gorm.DB) error {
			if err := r.sessions.AddInteraction(tx, sess.ID, node.NodeID, models.InteractionMessage, bagFromMessages(result.MessagesEmitted)); err != nil {
				return err
			}
			return r.recordTrace(tx, sess, node, stateBefore, sess.State, result, started, completed)
		})
		if err != nil {
			return nil, err
		}
		out.session = sess
		return out, nil
	}

	newState := istate.Clone(istate.Bag(sess.State)).(istate.Bag)
	istate.DeepMerge(newState, result.VariablesWritten)

	var updatedSession *models.Session
	err = r.db.Transaction(func(tx *gorm.DB) error {
		txCtrl := r.ctrl.WithTx(tx)
		nextNodeID := ""
		if result.NextNodeID != nil {
			nextNodeID = *result.NextNodeID
		}
		updateRes := txCtrl.ApplyWithRevision(ctx, sess.ID, &sess.Revision, newState, nextNodeID, true)
		if !updateRes.OK {
			return apperr.Internal(updateRes.Error, nil)
		}
		updatedSession = updateRes.Session

		if input != nil {
			if err := r.sessions.AddInteraction(tx, sess.ID, node.NodeID, models.InteractionInput, istate.Bag{"value": input.Value, "input_type": input.InputType}); err != nil {
				return err
			}
		}
		if len(result.MessagesEmitted) > 0 {
			if err := r.sessions.AddInteraction(tx, sess.ID, node.NodeID, models.InteractionMessage, bagFromMessages(result.MessagesEmitted)); err != nil {
				return err
			}
		}

		if err := r.recordTrace(tx, sess, node, stateBefore, models.JSONMap(newState), result, started, completed); err != nil {
			return err
		}

		if result.NextNodeID == nil {
			status := models.SessionCompleted
			if !result.Success {
				status = models.SessionAbandoned
			}
			now := time.Now().UTC()
			updatedSession.Status = status
			updatedSession.EndedAt = &now
			if err := tx.Save(updatedSession).Error; err != nil {
				return apperr.Internal("ending session", err)
			}
			out.terminal = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.session = updatedSession
	out.messages = result.MessagesEmitted

	if node.NodeType == models.NodeTypeAction {
		refreshed, refreshErr := r.sessions.GetSessionByID(updatedSession.ID)
		if refreshErr == nil {
			out.session = refreshed
		}
	}

	return out, nil
}

func (r *Runtime) outgoingConnections(flowID, nodeID string) ([]models.Connection, error) {
	var conns []models.Connection
	if err := r.db.Where("flow_id = ? AND source_node_id = ?", flowID, nodeID).Order("id ASC").Find(&conns).Error; err != nil {
		return nil, apperr.Internal("loading outgoing connections", err)
	}
	return conns, nil
}

func (r *Runtime) recordTrace(tx *gorm.DB, sess *models.Session, node *models.Node, stateBefore, stateAfter models.JSONMap, result *nodeproc.StepResult, started, completed time.Time) error {
	if r.tracer == nil {
		return nil
	}
	f, err := r.flowRepo.GetFlow(tx, sess.FlowID)
	if err != nil {
		return nil
	}
	if !trace.ShouldTrace(f, sess.SessionToken) {
		return nil
	}
	var errMsg *string
	if len(result.Errors) > 0 {
		joined := result.Errors[0]
		errMsg = &joined
	}
	return r.tracer.RecordStep(tx, sess.ID, node.NodeID, node.NodeType, stateBefore, stateAfter, result.Detail, result.ConnectionType, result.NextNodeID, started, completed, errMsg)
}

func bagFromMessages(messages []map[string]interface{}) istate.Bag {
	items := make([]interface{}, len(messages))
	for i, m := range messages {
		items[i] = m
	}
	return istate.Bag{"messages": items}
}
