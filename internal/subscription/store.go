// Package subscription owns subscription lifecycle: creation limits, topic
// dedup, status transitions and delivery counters.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"eventhub/internal/config"
	"eventhub/internal/constants"
	"eventhub/internal/filter"
	"eventhub/internal/logger"
	"eventhub/internal/topic"
	"eventhub/pkg/cel"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

// Notifier receives lifecycle notifications. Publish must not block.
type Notifier interface {
	Publish(event models.LifecycleEvent) bool
}

// Handle is an immutable view of one generation of a subscription, carrying
// everything the dispatcher needs to match and deliver.
type Handle struct {
	Subscription
	Matcher   *topic.Matcher
	FilterSet *filter.Set
	Program   celgo.Program
	Counters  *Counters
}

// Matches applies the predicate list and, when present, the CEL expression.
// Expression errors count as a non-match.
func (h *Handle) Matches(ctx context.Context, event models.Event) bool {
	if !h.FilterSet.Evaluate(event.Payload) {
		return false
	}
	if h.Program == nil {
		return true
	}
	ok, err := cel.EvaluateProgram(ctx, h.Program, event)
	return err == nil && ok
}

func (h *Handle) view() Subscription {
	s := h.Subscription
	s.Metrics = h.Counters.Snapshot()
	return s
}

type Snapshot struct {
	Version       uint64         `json:"version"`
	TakenAt       time.Time      `json:"takenAt"`
	Subscriptions []Subscription `json:"subscriptions"`
}

func (s Snapshot) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, sub := range s.Subscriptions {
		counts[sub.Status]++
	}
	return counts
}

type Store struct {
	mu      sync.RWMutex
	subs    map[string]*Handle
	byOwner map[string]map[string]struct{}
	index   *topic.Index
	version uint64

	limit         int
	inactivity    time.Duration
	latencyWindow int

	notifier  Notifier
	evaluator *cel.Evaluator
	logger    logger.Logger

	hooksMu  sync.RWMutex
	onRemove []func(id string)

	now   func() time.Time
	newID func() string
}

func NewStore(cfg config.HubConfig, notifier Notifier, log logger.Logger) (*Store, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression evaluator: %w", err)
	}

	limit := cfg.SubscriptionLimit
	if limit <= 0 {
		limit = constants.DefaultSubscriptionLimit
	}

	return &Store{
		subs:          make(map[string]*Handle),
		byOwner:       make(map[string]map[string]struct{}),
		index:         topic.NewIndex(),
		limit:         limit,
		inactivity:    cfg.InactivityTimeout,
		latencyWindow: cfg.LatencyWindow,
		notifier:      notifier,
		evaluator:     evaluator,
		logger:        log,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}, nil
}

// OnRemove registers a hook called after a subscription leaves the store.
func (s *Store) OnRemove(fn func(id string)) {
	s.hooksMu.Lock()
	s.onRemove = append(s.onRemove, fn)
	s.hooksMu.Unlock()
}

func (s *Store) Evaluator() *cel.Evaluator {
	return s.evaluator
}

// Create compiles everything up front so that a failure leaves no state
// behind. With req.Dedup an existing live subscription of the same owner and
// topic is returned with created == false.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Subscription, bool, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return Subscription{}, false, invalid("ownerId", "owner id is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return Subscription{}, false, invalid("sessionId", "session id is required")
	}

	matcher, err := topic.Compile(req.Topic)
	if err != nil {
		return Subscription{}, false, err
	}
	if err := filter.Validate(req.Filters); err != nil {
		return Subscription{}, false, err
	}
	program, err := s.compileExpression(req.Expression)
	if err != nil {
		return Subscription{}, false, err
	}
	if err := s.validateConfig(req.Config); err != nil {
		return Subscription{}, false, err
	}

	subType := req.Type
	if subType == "" {
		subType = DefaultType
	}

	s.mu.Lock()

	if req.Dedup {
		if existing := s.findByOwnerTopic(req.OwnerID, req.Topic); existing != nil {
			s.mu.Unlock()
			return existing.view(), false, nil
		}
	}

	if s.activeCount(req.OwnerID) >= s.limit {
		s.mu.Unlock()
		return Subscription{}, false, errors.ErrLimitExceeded.
			WithDetail("message", fmt.Sprintf("owner %s reached the limit of %d subscriptions", req.OwnerID, s.limit)).
			WithDetail("limit", s.limit)
	}

	now := s.now()
	h := &Handle{
		Subscription: Subscription{
			ID:           s.newID(),
			OwnerID:      req.OwnerID,
			SessionID:    req.SessionID,
			ConnectionID: req.ConnectionID,
			Type:         subType,
			TopicPattern: matcher.Pattern(),
			Filters:      append([]filter.Predicate(nil), req.Filters...),
			Expression:   req.Expression,
			Config:       req.Config,
			Status:       StatusActive,
			CreatedAt:    now,
			LastActivity: now,
			Generation:   1,
		},
		Matcher:   matcher,
		FilterSet: filter.NewSet(req.Filters),
		Program:   program,
		Counters:  newCounters(s.latencyWindow),
	}

	s.subs[h.ID] = h
	owned, ok := s.byOwner[h.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		s.byOwner[h.OwnerID] = owned
	}
	owned[h.ID] = struct{}{}
	s.index.Add(h.ID, matcher)
	s.version++
	s.mu.Unlock()

	s.notify(h, models.EventTypeSubscriptionCreated, "")
	s.logger.InfowCtx(ctx, "Subscription created",
		"subscription_id", h.ID,
		"owner_id", h.OwnerID,
		"topic", h.TopicPattern,
	)
	return h.view(), true, nil
}

func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (Subscription, error) {
	if req.Status != nil && *req.Status == StatusTerminated {
		if err := s.Delete(ctx, id); err != nil {
			return Subscription{}, err
		}
		return Subscription{}, nil
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusActive, StatusPaused, StatusError:
		default:
			return Subscription{}, invalid("status", fmt.Sprintf("status %q cannot be set directly", *req.Status))
		}
	}

	var (
		filterSet *filter.Set
		program   celgo.Program
		err       error
	)
	if req.Filters != nil {
		if err := filter.Validate(*req.Filters); err != nil {
			return Subscription{}, err
		}
		filterSet = filter.NewSet(*req.Filters)
	}
	if req.Expression != nil {
		if program, err = s.compileExpression(*req.Expression); err != nil {
			return Subscription{}, err
		}
	}
	if req.Config != nil {
		if err := s.validateConfig(*req.Config); err != nil {
			return Subscription{}, err
		}
	}

	h, err := s.mutate(id, func(next *Handle) error {
		if req.Status != nil {
			next.Status = *req.Status
		}
		if req.Filters != nil {
			next.Filters = append([]filter.Predicate(nil), (*req.Filters)...)
			next.FilterSet = filterSet
		}
		if req.Expression != nil {
			next.Expression = *req.Expression
			next.Program = program
		}
		if req.Config != nil {
			next.Config = *req.Config
		}
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}

	s.notify(h, models.EventTypeSubscriptionUpdated, "")
	s.logger.InfowCtx(ctx, "Subscription updated", "subscription_id", id, "status", h.Status)
	return h.view(), nil
}

func (s *Store) Pause(ctx context.Context, id string) (Subscription, error) {
	h, err := s.mutate(id, func(next *Handle) error {
		if next.Status != StatusActive && next.Status != StatusPaused {
			return conflict(id, next.Status, "pause")
		}
		next.Status = StatusPaused
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	s.notify(h, models.EventTypeSubscriptionPaused, "")
	return h.view(), nil
}

func (s *Store) Resume(ctx context.Context, id string) (Subscription, error) {
	h, err := s.mutate(id, func(next *Handle) error {
		switch next.Status {
		case StatusActive, StatusPaused, StatusError:
			next.Status = StatusActive
			return nil
		}
		return conflict(id, next.Status, "resume")
	})
	if err != nil {
		return Subscription{}, err
	}
	s.notify(h, models.EventTypeSubscriptionResumed, "")
	return h.view(), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	h, ok := s.remove(id)
	if !ok {
		return notFound(id)
	}
	s.notify(h, models.EventTypeSubscriptionDeleted, "")
	s.logger.InfowCtx(ctx, "Subscription deleted", "subscription_id", id, "owner_id", h.OwnerID)
	s.runRemoveHooks(id)
	return nil
}

func (s *Store) Get(id string) (Subscription, error) {
	h, ok := s.Handle(id)
	if !ok {
		return Subscription{}, notFound(id)
	}
	return h.view(), nil
}

// Handle returns the current generation of a subscription.
func (s *Store) Handle(id string) (*Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.subs[id]
	return h, ok
}

// Deliverable reports whether generation is still the current, active
// generation of id. It is checked right before every delivery attempt.
func (s *Store) Deliverable(id string, generation uint64) bool {
	h, ok := s.Handle(id)
	return ok && h.Generation == generation && h.Status == StatusActive
}

// Candidates returns the ids whose topic pattern matches topic, sorted.
func (s *Store) Candidates(topicName string) []string {
	return s.index.Candidates(topicName)
}

func (s *Store) ListByOwner(ownerID string, f ListFilter) []Subscription {
	s.mu.RLock()
	handles := make([]*Handle, 0, len(s.byOwner[ownerID]))
	for id := range s.byOwner[ownerID] {
		h := s.subs[id]
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		if f.Topic != "" && h.TopicPattern != f.Topic {
			continue
		}
		handles = append(handles, h)
	}
	s.mu.RUnlock()
	return views(handles)
}

func (s *Store) ListByConnection(connectionID string) []Subscription {
	return s.listWhere(func(h *Handle) bool { return h.ConnectionID == connectionID })
}

func (s *Store) ListBySession(sessionID string) []Subscription {
	return s.listWhere(func(h *Handle) bool { return h.SessionID == sessionID })
}

func (s *Store) listWhere(keep func(h *Handle) bool) []Subscription {
	s.mu.RLock()
	var handles []*Handle
	for _, h := range s.subs {
		if keep(h) {
			handles = append(handles, h)
		}
	}
	s.mu.RUnlock()
	return views(handles)
}

// FindByConnectionTopic resolves an unsubscribe frame.
func (s *Store) FindByConnectionTopic(connectionID, pattern string) (Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.subs {
		if h.ConnectionID == connectionID && h.TopicPattern == pattern {
			return h.view(), true
		}
	}
	return Subscription{}, false
}

// HandleDisconnect detaches the subscriptions bound to connectionID.
// Persistent ones become disconnected and keep queuing; the rest are
// terminated and removed.
func (s *Store) HandleDisconnect(ctx context.Context, connectionID string) (detached, terminated []string) {
	s.mu.Lock()
	var detachedHandles, terminatedHandles []*Handle
	now := s.now()
	for id, h := range s.subs {
		if h.ConnectionID != connectionID {
			continue
		}
		if h.Config.Persistent() {
			next := s.nextGeneration(h, now)
			next.Status = StatusDisconnected
			s.subs[id] = next
			detachedHandles = append(detachedHandles, next)
			continue
		}
		s.removeLocked(h)
		ended := *h
		ended.Status = StatusTerminated
		terminatedHandles = append(terminatedHandles, &ended)
	}
	if len(detachedHandles)+len(terminatedHandles) > 0 {
		s.version++
	}
	s.mu.Unlock()

	for _, h := range detachedHandles {
		detached = append(detached, h.ID)
		s.notify(h, models.EventTypeSubscriptionDetached, "connection closed")
	}
	for _, h := range terminatedHandles {
		terminated = append(terminated, h.ID)
		s.notify(h, models.EventTypeSubscriptionTerminated, "connection closed")
		s.runRemoveHooks(h.ID)
	}
	sort.Strings(detached)
	sort.Strings(terminated)

	if len(detached)+len(terminated) > 0 {
		s.logger.InfowCtx(ctx, "Connection subscriptions released",
			"connection_id", connectionID,
			"detached", len(detached),
			"terminated", len(terminated),
		)
	}
	return detached, terminated
}

// Reattach binds the disconnected subscriptions of a resumed session to a
// new connection and reactivates them.
func (s *Store) Reattach(ctx context.Context, sessionID, connectionID string) []Subscription {
	s.mu.Lock()
	var reattached []*Handle
	now := s.now()
	for id, h := range s.subs {
		if h.SessionID != sessionID || h.Status != StatusDisconnected {
			continue
		}
		next := s.nextGeneration(h, now)
		next.Status = StatusActive
		next.ConnectionID = connectionID
		s.subs[id] = next
		reattached = append(reattached, next)
	}
	if len(reattached) > 0 {
		s.version++
	}
	s.mu.Unlock()

	for _, h := range reattached {
		s.notify(h, models.EventTypeSubscriptionReattached, "session resumed")
	}
	if len(reattached) > 0 {
		s.logger.InfowCtx(ctx, "Session subscriptions reattached",
			"session_id", sessionID,
			"connection_id", connectionID,
			"count", len(reattached),
		)
	}
	return views(reattached)
}

// SweepInactive removes subscriptions with no mutation or delivery within
// the inactivity timeout.
func (s *Store) SweepInactive(ctx context.Context, now time.Time) []string {
	if s.inactivity <= 0 {
		return nil
	}

	s.mu.Lock()
	var expired []*Handle
	for _, h := range s.subs {
		last := h.LastActivity
		if d := h.Counters.LastDelivery(); d.After(last) {
			last = d
		}
		if now.Sub(last) > s.inactivity {
			s.removeLocked(h)
			expired = append(expired, h)
		}
	}
	if len(expired) > 0 {
		s.version++
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, h := range expired {
		ids = append(ids, h.ID)
		ended := *h
		ended.Status = StatusTerminated
		s.notify(&ended, models.EventTypeSubscriptionTerminated, "inactivity timeout")
		s.runRemoveHooks(h.ID)
	}
	sort.Strings(ids)

	if len(ids) > 0 {
		s.logger.InfowCtx(ctx, "Inactive subscriptions removed", "count", len(ids))
	}
	return ids
}

func (s *Store) RecordDelivery(id string, bytes int, latency time.Duration) {
	if h, ok := s.Handle(id); ok {
		h.Counters.RecordDelivery(bytes, latency, s.now())
	}
}

func (s *Store) RecordError(id string) {
	if h, ok := s.Handle(id); ok {
		h.Counters.RecordError()
	}
}

// TickRates refreshes MessagesPerSecond for every subscription.
func (s *Store) TickRates(elapsed time.Duration) {
	s.mu.RLock()
	counters := make([]*Counters, 0, len(s.subs))
	for _, h := range s.subs {
		counters = append(counters, h.Counters)
	}
	s.mu.RUnlock()

	for _, c := range counters {
		c.tick(elapsed)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	handles := make([]*Handle, 0, len(s.subs))
	for _, h := range s.subs {
		handles = append(handles, h)
	}
	version := s.version
	s.mu.RUnlock()

	return Snapshot{
		Version:       version,
		TakenAt:       s.now(),
		Subscriptions: views(handles),
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// mutate replaces the handle of id with a new generation built by fn.
func (s *Store) mutate(id string, fn func(next *Handle) error) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.subs[id]
	if !ok {
		return nil, notFound(id)
	}

	next := s.nextGeneration(h, s.now())
	if err := fn(next); err != nil {
		return nil, err
	}
	s.subs[id] = next
	s.version++
	return next, nil
}

func (s *Store) nextGeneration(h *Handle, now time.Time) *Handle {
	next := *h
	next.Generation++
	next.LastActivity = now
	return &next
}

func (s *Store) remove(id string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.subs[id]
	if !ok {
		return nil, false
	}
	s.removeLocked(h)
	s.version++

	terminated := *h
	terminated.Status = StatusTerminated
	return &terminated, true
}

func (s *Store) removeLocked(h *Handle) {
	delete(s.subs, h.ID)
	if owned, ok := s.byOwner[h.OwnerID]; ok {
		delete(owned, h.ID)
		if len(owned) == 0 {
			delete(s.byOwner, h.OwnerID)
		}
	}
	s.index.Remove(h.ID)
}

func (s *Store) runRemoveHooks(id string) {
	s.hooksMu.RLock()
	hooks := s.onRemove
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

func (s *Store) findByOwnerTopic(ownerID, pattern string) *Handle {
	for id := range s.byOwner[ownerID] {
		h := s.subs[id]
		if h.TopicPattern == pattern && h.Status != StatusTerminated {
			return h
		}
	}
	return nil
}

func (s *Store) activeCount(ownerID string) int {
	n := 0
	for id := range s.byOwner[ownerID] {
		if s.subs[id].Status.counted() {
			n++
		}
	}
	return n
}

func (s *Store) compileExpression(expression string) (celgo.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	program, err := s.evaluator.CompileFilter(expression)
	if err != nil {
		return nil, invalid("expression", err.Error())
	}
	return program, nil
}

func (s *Store) notify(h *Handle, eventType, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(models.LifecycleEvent{
		EventType:      eventType,
		SubscriptionID: h.ID,
		OwnerID:        h.OwnerID,
		SessionID:      h.SessionID,
		TopicPattern:   h.TopicPattern,
		Status:         string(h.Status),
		Reason:         reason,
		Timestamp:      s.now(),
		Metadata: map[string]interface{}{
			"generation":    h.Generation,
			"connection_id": h.ConnectionID,
		},
	})
}

func views(handles []*Handle) []Subscription {
	out := make([]Subscription, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.view())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func invalid(field, message string) error {
	return errors.ErrValidation.
		WithDetail("field", field).
		WithDetail("message", message)
}

func notFound(id string) error {
	return errors.ErrNotFound.
		WithDetail("subscription_id", id).
		WithDetail("message", fmt.Sprintf("subscription %s not found", id))
}

func conflict(id string, status Status, action string) error {
	return errors.ErrConflict.
		WithDetail("subscription_id", id).
		WithDetail("message", fmt.Sprintf("cannot %s a subscription in status %s", action, status))
}
