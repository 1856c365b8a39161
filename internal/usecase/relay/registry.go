package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"stageLink/internal/domain"
)

// entry agrupa todo lo vivo bajo un state token: el contexto del primer
// socket, los buzones de cada hermano y las sesiones upstream.
type entry struct {
	context    *ClientContext
	senders    []chan []byte
	twitch     domain.TwitchFeed
	streamlabs domain.StreamlabsFeed
}

// Registry maps state tokens to their live entry. One mutex guards the
// map; nothing blocking runs under it, try-sends aside. Upstream
// sessions are dialed outside the lock.
type Registry struct {
	log        *slog.Logger
	twitchConn domain.TwitchConnector
	slConn     domain.StreamlabsConnector

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(twitchConn domain.TwitchConnector, slConn domain.StreamlabsConnector, log *slog.Logger) *Registry {
	return &Registry{
		log:        log,
		twitchConn: twitchConn,
		slConn:     slConn,
		entries:    make(map[string]*entry),
	}
}

// Join attaches a sibling's mailbox to the state's entry, creating the
// entry and its upstream sessions on first join. The sessions come
// from the joining context's tokens; a racing loser disconnects its
// freshly dialed sessions and attaches to the winner's entry.
func (r *Registry) Join(ctx context.Context, state string, cctx *ClientContext, sender chan []byte) {
	r.mu.Lock()
	if e, ok := r.entries[state]; ok {
		e.senders = append(e.senders, sender)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	var twitchFeed domain.TwitchFeed
	var slFeed domain.StreamlabsFeed
	if token := cctx.Twitch(); token != nil {
		twitchFeed = r.twitchConn.Connect(ctx, token)
	}
	if token := cctx.Streamlabs(); token != nil {
		slFeed = r.slConn.Connect(ctx, token)
	}

	r.mu.Lock()
	if e, ok := r.entries[state]; ok {
		e.senders = append(e.senders, sender)
		r.mu.Unlock()
		disconnectFeeds(twitchFeed, slFeed)
		return
	}
	r.entries[state] = &entry{
		context:    cctx,
		senders:    []chan []byte{sender},
		twitch:     twitchFeed,
		streamlabs: slFeed,
	}
	r.mu.Unlock()

	r.log.Info("registry: entry created", "state", state)
}

// Leave detaches one sibling. The last one out removes the entry and
// disconnects both upstream sessions.
func (r *Registry) Leave(state string, sender chan []byte) {
	r.mu.Lock()
	e, ok := r.entries[state]
	if !ok {
		r.mu.Unlock()
		return
	}

	kept := e.senders[:0]
	for _, s := range e.senders {
		if s != sender {
			kept = append(kept, s)
		}
	}
	e.senders = kept

	var twitchFeed domain.TwitchFeed
	var slFeed domain.StreamlabsFeed
	empty := len(e.senders) == 0
	if empty {
		delete(r.entries, state)
		twitchFeed, slFeed = e.twitch, e.streamlabs
	}
	r.mu.Unlock()

	if empty {
		disconnectFeeds(twitchFeed, slFeed)
		r.log.Info("registry: entry removed", "state", state)
	}
}

// Broadcast marshals once and try-sends to every sibling. A full
// mailbox drops that sibling's copy; the slow client falls off on its
// own write path instead of stalling the rest.
func (r *Registry) Broadcast(state string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("registry: encode broadcast: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[state]
	if !ok {
		return fmt.Errorf("registry: no connection found for state token")
	}

	for _, sender := range e.senders {
		select {
		case sender <- data:
		default:
			r.log.Warn("registry: fanout buffer full, dropping frame", "state", state)
		}
	}
	return nil
}

// Feeds returns the entry's upstream sessions, nil when absent.
func (r *Registry) Feeds(state string) (domain.TwitchFeed, domain.StreamlabsFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[state]; ok {
		return e.twitch, e.streamlabs
	}
	return nil, nil
}

// ContextFor returns the context the entry was created with, nil when
// no entry exists. OAuth callbacks use it to inject fresh tokens.
func (r *Registry) ContextFor(state string) *ClientContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[state]; ok {
		return e.context
	}
	return nil
}

func disconnectFeeds(twitchFeed domain.TwitchFeed, slFeed domain.StreamlabsFeed) {
	if twitchFeed != nil {
		twitchFeed.Disconnect()
	}
	if slFeed != nil {
		slFeed.Disconnect()
	}
}
