package upcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// natsStoreMaxCAS bounds the compare-and-swap retry loop so a
	// contended record never spins unbounded.
	natsStoreMaxCAS = 8

	// natsStoreCASBackoff is the pause between CAS retries.
	natsStoreCASBackoff = 10 * time.Millisecond
)

// NATSStoreConfig configures the distributed status store.
type NATSStoreConfig struct {
	// Servers are the NATS server URLs. At least one is required.
	Servers []string

	// Credentials is an optional NATS credentials file.
	Credentials string

	// Bucket names the JetStream KV bucket holding the records.
	Bucket string

	// NumPeers is the registry size; one record is kept per index.
	NumPeers int

	Logger *slog.Logger
}

func (c *NATSStoreConfig) validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one NATS server URL is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.NumPeers <= 0 {
		return fmt.Errorf("numPeers must be positive")
	}
	return nil
}

// NATSStore is the multi-process StatusStore. Every worker process
// sees the same records through a JetStream KV bucket; revision-checked
// updates are the exclusive-access primitive, so two workers can never
// both apply a mutation against the same revision. A worker that dies
// holding a lease leaves nothing locked: the lease itself goes stale
// and is superseded through Acquire.
type NATSStore struct {
	cfg    NATSStoreConfig
	logger *slog.Logger
	nc     *nats.Conn
	kv     jetstream.KeyValue
}

// NewNATSStore connects to NATS and ensures the status bucket exists
// and holds one record per peer.
func NewNATSStore(ctx context.Context, cfg NATSStoreConfig) (*NATSStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := loggerOrDefault(cfg.Logger).With("component", "natsstore", "bucket", cfg.Bucket)

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Credentials != "" {
		opts = append(opts, nats.UserCredentials(cfg.Credentials))
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "upcheck shared peer status",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create status KV bucket: %w", err)
	}

	s := &NATSStore{
		cfg:    cfg,
		logger: logger,
		nc:     nc,
		kv:     kv,
	}
	if err := s.seed(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

// seed creates any missing records. Existing records are left alone so
// a restarting worker rejoins the live state instead of resetting it.
func (s *NATSStore) seed(ctx context.Context) error {
	now := time.Now()
	for i := 0; i < s.cfg.NumPeers; i++ {
		data, err := json.Marshal(PeerStatus{Since: now})
		if err != nil {
			return err
		}
		_, err = s.kv.Create(ctx, statusKey(i), data)
		if err != nil && !errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("seed status record %d: %w", i, err)
		}
	}
	return nil
}

// Acquire implements StatusStore. The check-and-take runs as one CAS:
// the record is re-read and conditionally rewritten against its
// revision, so two workers racing for a stale lease cannot both win.
func (s *NATSStore) Acquire(ctx context.Context, index int, workerID string, staleAfter time.Duration) (bool, error) {
	if index < 0 || index >= s.cfg.NumPeers {
		return false, ErrUnknownPeer
	}

	for attempt := 0; attempt < natsStoreMaxCAS; attempt++ {
		entry, err := s.kv.Get(ctx, statusKey(index))
		if err != nil {
			return false, fmt.Errorf("get status record %d: %w", index, err)
		}

		var st PeerStatus
		if err := json.Unmarshal(entry.Value(), &st); err != nil {
			return false, fmt.Errorf("decode status record %d: %w", index, err)
		}

		if st.Owner == workerID {
			return true, nil
		}
		if st.Owner != "" && time.Since(st.ActionTime) < staleAfter {
			return false, nil
		}

		st.Owner = workerID
		st.ActionTime = time.Now()

		data, err := json.Marshal(st)
		if err != nil {
			return false, err
		}
		if _, err = s.kv.Update(ctx, statusKey(index), data, entry.Revision()); err == nil {
			s.logger.Info("lease acquired", "peer", index, "worker", workerID)
			return true, nil
		}

		// Someone else moved the record first; re-read and retry.
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(natsStoreCASBackoff):
		}
	}
	return false, fmt.Errorf("acquire lease for peer %d: %w", index, ErrCASFailed)
}

// Update implements StatusStore.
func (s *NATSStore) Update(ctx context.Context, index int, workerID string, fn func(*PeerStatus)) error {
	if index < 0 || index >= s.cfg.NumPeers {
		return ErrUnknownPeer
	}

	for attempt := 0; attempt < natsStoreMaxCAS; attempt++ {
		entry, err := s.kv.Get(ctx, statusKey(index))
		if err != nil {
			return fmt.Errorf("get status record %d: %w", index, err)
		}

		var st PeerStatus
		if err := json.Unmarshal(entry.Value(), &st); err != nil {
			return fmt.Errorf("decode status record %d: %w", index, err)
		}
		if st.Owner != workerID {
			return ErrNotOwner
		}

		fn(&st)

		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err = s.kv.Update(ctx, statusKey(index), data, entry.Revision()); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(natsStoreCASBackoff):
		}
	}
	return fmt.Errorf("update status record %d: %w", index, ErrCASFailed)
}

// Get implements StatusStore.
func (s *NATSStore) Get(ctx context.Context, index int) (PeerStatus, error) {
	if index < 0 || index >= s.cfg.NumPeers {
		return PeerStatus{}, ErrUnknownPeer
	}
	entry, err := s.kv.Get(ctx, statusKey(index))
	if err != nil {
		return PeerStatus{}, fmt.Errorf("get status record %d: %w", index, err)
	}
	var st PeerStatus
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return PeerStatus{}, fmt.Errorf("decode status record %d: %w", index, err)
	}
	return st, nil
}

// Watch implements StatusStore. Non-owning processes use it to mirror
// verdict changes into their registry's lock-free down flags.
func (s *NATSStore) Watch(ctx context.Context) (<-chan StatusEvent, error) {
	watcher, err := s.kv.WatchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch status bucket: %w", err)
	}

	ch := make(chan StatusEvent, 64)
	go func() {
		defer close(ch)
		defer watcher.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-watcher.Updates():
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				index, err := parseStatusKey(entry.Key())
				if err != nil {
					continue
				}
				var st PeerStatus
				if err := json.Unmarshal(entry.Value(), &st); err != nil {
					s.logger.Error("failed to decode watched status record", "key", entry.Key(), "error", err)
					continue
				}
				select {
				case ch <- StatusEvent{Index: index, Status: st}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close implements StatusStore.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

func statusKey(index int) string {
	return fmt.Sprintf("peer.%d", index)
}

func parseStatusKey(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, "peer.")
	if !ok {
		return 0, fmt.Errorf("not a status key: %q", key)
	}
	return strconv.Atoi(rest)
}
