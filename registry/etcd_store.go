package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	msgpack "github.com/hashicorp/go-msgpack/codec"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"game-rpc/convar"
)

// DefaultPrefix is the etcd key prefix for archived variables.
const DefaultPrefix = "/game-rpc/vars/"

// record is the stored form of one variable.
type record struct {
	Name      string
	Value     string
	UpdatedAt int64
	Writer    string // id of the EtcdStore that wrote it
}

// EtcdStore keeps archived variables in etcd, one key per variable:
//
//	Key:   {prefix}{lower-cased name}
//	Value: msgpack-encoded record
//
// Watch skips the store's own writes, and Current rejects values older than
// its last write of the same variable.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
	id     string
	logger *zap.Logger
	revs   revisions
}

// NewEtcdStore connects to the given etcd endpoints.
func NewEtcdStore(endpoints []string, prefix string, logger *zap.Logger) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdStore{client: c, prefix: prefix, id: uuid.New().String(), logger: logger}, nil
}

func (s *EtcdStore) key(name string) string {
	return s.prefix + strings.ToLower(name)
}

// Load returns the stored value of name.
func (s *EtcdStore) Load(ctx context.Context, name string) (string, bool, error) {
	resp, err := s.client.Get(ctx, s.key(name))
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	rec, err := decodeRecord(resp.Kvs[0].Value)
	if err != nil {
		return "", false, fmt.Errorf("decode %s: %w", resp.Kvs[0].Key, err)
	}
	return rec.Value, true, nil
}

// Save stores value under name.
func (s *EtcdStore) Save(ctx context.Context, name, value string) error {
	data, err := encodeRecord(record{Name: name, Value: value, UpdatedAt: time.Now().Unix(), Writer: s.id})
	if err != nil {
		return err
	}
	resp, err := s.client.Put(ctx, s.key(name), string(data))
	if err != nil {
		return err
	}
	s.revs.wrote(name, resp.Header.Revision)
	return nil
}

// Current reports whether sv was written after this store last saved the
// same variable.
func (s *EtcdStore) Current(sv convar.StoredValue) bool {
	return s.revs.newer(sv.Name, sv.Revision)
}

// Delete removes name from the store.
func (s *EtcdStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.Delete(ctx, s.key(name))
	return err
}

// Watch emits the values other writers put under the prefix until ctx is
// done. Deletions and malformed records are skipped.
func (s *EtcdStore) Watch(ctx context.Context) <-chan convar.StoredValue {
	ch := make(chan convar.StoredValue, 16)
	go func() {
		defer close(ch)
		for resp := range s.client.Watch(ctx, s.prefix, clientv3.WithPrefix()) {
			if err := resp.Err(); err != nil {
				s.logger.Warn("etcd watch", zap.Error(err))
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				rec, err := decodeRecord(ev.Kv.Value)
				if err != nil {
					s.logger.Warn("skipping malformed record", zap.ByteString("key", ev.Kv.Key), zap.Error(err))
					continue
				}
				if rec.Writer == s.id {
					continue
				}
				select {
				case ch <- convar.StoredValue{Name: rec.Name, Value: rec.Value, Revision: ev.Kv.ModRevision}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// revisions tracks the store revision of the last write per variable.
type revisions struct {
	mu    sync.Mutex
	saved map[string]int64
}

func (r *revisions) wrote(name string, rev int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string]int64)
	}
	key := strings.ToLower(name)
	if rev > r.saved[key] {
		r.saved[key] = rev
	}
}

// newer reports whether rev is later than the last write of name.
func (r *revisions) newer(name string, rev int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rev > r.saved[strings.ToLower(name)]
}

func encodeRecord(rec record) ([]byte, error) {
	var out []byte
	if err := msgpack.NewEncoderBytes(&out, &msgpack.MsgpackHandle{}).Encode(&rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out, nil
}

func decodeRecord(data []byte) (record, error) {
	var rec record
	err := msgpack.NewDecoderBytes(data, &msgpack.MsgpackHandle{}).Decode(&rec)
	return rec, err
}
