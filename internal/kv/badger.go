package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-socialcart-backend/internal/observability"
)

const (
	// tombstoneTTL bounds how long a removal marker stays readable by the change feed.
	tombstoneTTL = 10 * time.Minute

	// Watch writes keys under readyPrefix until its own subscription reports
	// one back. Subscribers never forward them.
	readyPrefix  = "\x00kv-watch-ready:"
	readyTTL     = time.Minute
	readyRetry   = 20 * time.Millisecond
	readyTimeout = 5 * time.Second
)

var errSubscribeTimeout = errors.New("kv: badger subscription did not start")

// envelope is what the Badger driver stores: Badger's change feed carries
// only key and value, so the origin and deletion flag travel inside the value.
type envelope struct {
	Origin  string    `json:"o"`
	Value   []byte    `json:"v,omitempty"`
	Deleted bool      `json:"d,omitempty"`
	At      time.Time `json:"t"`
}

// BadgerStore keeps entries in a Badger database and serves Watch from
// badger.DB.Subscribe. Removal writes a short-lived tombstone so subscribers
// learn who removed the key.
type BadgerStore struct {
	db     *badger.DB
	buffer int

	// base is cancelled by Close so every subscription ends before the
	// database does.
	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// OpenBadger opens a Badger store at path; an empty path keeps it in memory.
func OpenBadger(path string, buffer int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if buffer < 1 {
		buffer = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &BadgerStore{db: db, buffer: buffer, base: base, stop: stop}, nil
}

// Get returns the live value stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var env envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, false, ErrClosed
	}
	if err != nil {
		return nil, false, err
	}
	if env.Deleted {
		return nil, false, nil
	}
	return env.Value, true, nil
}

// Set writes value under key (last write wins).
func (s *BadgerStore) Set(_ context.Context, key string, value []byte, origin string) error {
	raw, err := json.Marshal(envelope{Origin: origin, Value: value, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Remove replaces key with a tombstone. Removing a missing key is a no-op.
func (s *BadgerStore) Remove(ctx context.Context, key, origin string) error {
	if _, ok, err := s.Get(ctx, key); err != nil || !ok {
		return err
	}
	raw, err := json.Marshal(envelope{Origin: origin, Deleted: true, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), raw).WithTTL(tombstoneTTL))
	})
}

// Watch streams changes under prefix from Badger's subscription API. It
// returns once the subscription is registered, so every write committed after
// Watch returns is delivered. Earlier writes are not replayed.
func (s *BadgerStore) Watch(ctx context.Context, prefix string) (<-chan Change, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	unlink := context.AfterFunc(s.base, cancel)

	marker := []byte(readyPrefix + uuid.NewString())
	ready := make(chan struct{})
	var readyOnce sync.Once
	exited := make(chan struct{})

	out := make(chan Change, s.buffer)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer close(exited)
		defer cancel()
		defer unlink()
		match := []pb.Match{{Prefix: []byte(prefix)}, {Prefix: marker}}
		err := s.db.Subscribe(ctx, func(list *pb.KVList) error {
			for _, item := range list.GetKv() {
				if bytes.HasPrefix(item.GetKey(), []byte(readyPrefix)) {
					if bytes.Equal(item.GetKey(), marker) {
						readyOnce.Do(func() { close(ready) })
					}
					continue
				}
				c, ok := decodeChange(item)
				if !ok {
					continue
				}
				select {
				case out <- c:
				default:
					observability.DroppedNotifications.WithLabelValues("kv").Inc()
				}
			}
			return nil
		}, match)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Str("prefix", prefix).Msg("badger subscription ended")
		}
	}()

	if err := s.awaitSubscription(ctx, marker, ready, exited); err != nil {
		cancel()
		<-exited
		return nil, err
	}
	return out, nil
}

// awaitSubscription writes marker until the subscription sees it. Badger
// registers subscribers on its own goroutine, so a single write can be missed.
func (s *BadgerStore) awaitSubscription(ctx context.Context, marker []byte, ready, exited <-chan struct{}) error {
	timeout := time.NewTimer(readyTimeout)
	defer timeout.Stop()
	retry := time.NewTicker(readyRetry)
	defer retry.Stop()
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(marker, nil).WithTTL(readyTTL))
		})
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		if err != nil {
			return err
		}
		select {
		case <-ready:
			return nil
		case <-exited:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errSubscribeTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errSubscribeTimeout
		case <-retry.C:
		}
	}
}

func decodeChange(item *pb.KV) (Change, bool) {
	var env envelope
	if err := json.Unmarshal(item.GetValue(), &env); err != nil {
		return Change{}, false
	}
	return Change{
		Key:     string(item.GetKey()),
		Value:   env.Value,
		Deleted: env.Deleted,
		Origin:  env.Origin,
		At:      env.At,
	}, true
}

// Close ends every subscription, then closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.stop()
	s.wg.Wait()
	return s.db.Close()
}
