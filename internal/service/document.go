package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

type pendingDoc struct {
	content string
	gen     uint64
	timer   *time.Timer
}

// DocumentSync fans document edits out immediately and writes the latest
// content once a room has been quiet for the configured period.
type DocumentSync struct {
	registry *ConnectionRegistry
	gateway  repository.Gateway
	locks    *keyedMutex
	saves    *keyedMutex
	quiet    time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingDoc
	written map[string]uint64
}

func NewDocumentSync(
	registry *ConnectionRegistry,
	gateway repository.Gateway,
	locks *keyedMutex,
	quiet time.Duration,
	timeout time.Duration,
	log *slog.Logger,
) *DocumentSync {
	return &DocumentSync{
		registry: registry,
		gateway:  gateway,
		locks:    locks,
		saves:    newKeyedMutex(),
		quiet:    quiet,
		timeout:  timeout,
		log:      log,
		pending:  make(map[string]*pendingDoc),
		written:  make(map[string]uint64),
	}
}

// OnEdit broadcasts the new content to everyone in the room but the editor and
// restarts the room's quiet timer. It returns the number of peers notified.
func (d *DocumentSync) OnEdit(roomKey, content, origin string) int {
	event := domain.DocumentUpdateEvent(content)

	// The pending content is replaced under the room lock so the last edit
	// peers see is also the one that gets written.
	unlock := d.locks.Lock(roomKey)
	defer unlock()

	peers := d.registry.PeersOf(roomKey, origin)
	for _, peer := range peers {
		d.registry.Deliver(peer, event)
	}

	d.mu.Lock()
	d.seq++
	gen := d.seq
	if p, ok := d.pending[roomKey]; ok {
		p.timer.Stop()
	}
	d.pending[roomKey] = &pendingDoc{
		content: content,
		gen:     gen,
		timer:   time.AfterFunc(d.quiet, func() { d.fire(roomKey, gen) }),
	}
	d.mu.Unlock()

	return len(peers)
}

// Save persists the content right away and cancels any pending write.
func (d *DocumentSync) Save(ctx context.Context, roomKey, content string) error {
	d.mu.Lock()
	d.seq++
	gen := d.seq
	if p, ok := d.pending[roomKey]; ok {
		p.timer.Stop()
		delete(d.pending, roomKey)
	}
	d.mu.Unlock()

	pctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	return d.persist(pctx, roomKey, content, gen)
}

// Release flushes a room that no longer has live connections so no timer
// outlives it.
func (d *DocumentSync) Release(roomKey string) {
	p := d.take(roomKey)
	if p == nil {
		return
	}

	ctx, cancel := withTimeout(context.Background(), d.timeout)
	defer cancel()

	_ = d.persist(ctx, roomKey, p.content, p.gen)
}

// Flush stops every timer and writes all pending content.
func (d *DocumentSync) Flush(ctx context.Context) error {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]*pendingDoc)
	for _, p := range pending {
		p.timer.Stop()
	}
	d.mu.Unlock()

	var errs []error
	for roomKey, p := range pending {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := d.persist(pctx, roomKey, p.content, p.gen); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	return errors.Join(errs...)
}

// Pending reports how many rooms have unsaved content.
func (d *DocumentSync) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *DocumentSync) fire(roomKey string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[roomKey]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, roomKey)
	d.mu.Unlock()

	ctx, cancel := withTimeout(context.Background(), d.timeout)
	defer cancel()

	_ = d.persist(ctx, roomKey, p.content, p.gen)
}

func (d *DocumentSync) take(roomKey string) *pendingDoc {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[roomKey]
	if !ok {
		return nil
	}
	p.timer.Stop()
	delete(d.pending, roomKey)
	return p
}

// persist writes content of generation gen unless a newer generation has
// already been written for the room.
func (d *DocumentSync) persist(ctx context.Context, roomKey, content string, gen uint64) error {
	const op = "service.document.persist"
	log := d.log.With(
		slog.String("op", op),
		slog.String("room_id", roomKey),
	)

	unlock := d.saves.Lock(roomKey)
	defer unlock()

	d.mu.Lock()
	stale := d.written[roomKey] > gen
	d.mu.Unlock()
	if stale {
		log.Debug("skipping stale document write")
		return nil
	}

	roomID, err := resolveRoomID(ctx, d.gateway, roomKey)
	if err != nil {
		log.Error("failed to resolve room for document", sl.Err(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := d.gateway.SaveDocument(ctx, roomID, content); err != nil {
		log.Error("failed to save document", sl.Err(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	d.mu.Lock()
	d.written[roomKey] = gen
	d.mu.Unlock()

	log.Debug("document saved", slog.Int("length", len(content)))
	return nil
}
