// Package authstate tracks the signed-in/signed-out state of the
// application. The Holder caches the current user and session as reported
// by the identity service and republishes changes to the rest of the
// application. It is constructed explicitly and injected; there is no
// package-level instance.
package authstate

import (
	"context"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/identity"
)

// Snapshot is a point-in-time view of the authentication state. Loading is
// true only between construction and the first resolution of either the
// change subscription or the initial session fetch.
type Snapshot struct {
	User    *identity.User
	Session *identity.Session
	Loading bool
}

type Holder struct {
	svc identity.Service

	mu      sync.Mutex
	user    *identity.User
	session *identity.Session
	loading bool
	unsub   identity.Unsubscribe

	observers map[int]func(Snapshot)
	nextObsID int
}

func NewHolder(svc identity.Service) *Holder {
	return &Holder{
		svc:       svc,
		loading:   true,
		observers: make(map[int]func(Snapshot)),
	}
}

// Start attaches the change listener and then fetches the existing session.
// The listener is attached first so a sign-in racing with startup is never
// missed; whichever of the two paths resolves last wins, and both resolve
// the loading flag. An unreachable identity service leaves the holder in a
// signed-out, non-loading state.
func (h *Holder) Start(ctx context.Context) {
	h.mu.Lock()
	if h.unsub != nil {
		h.mu.Unlock()
		return
	}
	h.unsub = h.svc.Subscribe(func(event identity.Event) {
		h.applySession(event.Session)
	})
	h.mu.Unlock()

	session, err := h.svc.CurrentSession(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Could not fetch the current session; treating as signed out", "error", err)
		session = nil
	}

	h.applySession(session)
}

// Stop detaches the change listener. Intended for tests and for tearing the
// holder down between runs; a long-lived client never calls it.
func (h *Holder) Stop() {
	h.mu.Lock()
	unsub := h.unsub
	h.unsub = nil
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Snapshot{User: h.user, Session: h.session, Loading: h.loading}
}

// Subscribe registers an observer that is invoked with a fresh snapshot
// after every state change.
func (h *Holder) Subscribe(fn func(Snapshot)) identity.Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextObsID
	h.nextObsID++
	h.observers[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.observers, id)
	}
}

// SignOut revokes the session remotely and clears the local state as soon
// as the revocation succeeds, without waiting for the change notification.
// The notification arriving afterwards applies the same signed-out state
// again, which is a no-op. Signing out while already signed out does
// nothing and leaves user and session nil.
func (h *Holder) SignOut(ctx context.Context) error {
	if err := h.svc.SignOut(ctx); err != nil {
		return err
	}

	h.applySession(nil)

	return nil
}

// applySession is one of exactly two writers of the state cell; the other
// is the change-notification listener, which funnels through here as well.
func (h *Holder) applySession(session *identity.Session) {
	h.mu.Lock()
	if session != nil {
		sessionCopy := *session
		h.session = &sessionCopy
		userCopy := sessionCopy.User
		h.user = &userCopy
	} else {
		h.session = nil
		h.user = nil
	}
	h.loading = false

	snapshot := Snapshot{User: h.user, Session: h.session, Loading: h.loading}
	observers := make([]func(Snapshot), 0, len(h.observers))
	for _, fn := range h.observers {
		observers = append(observers, fn)
	}
	h.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
