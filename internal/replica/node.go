// Package replica wraps an index store with the replica-level operations the
// gateway drives: snapshot push to a peer, the connect hook and archiving.
package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/crawler"
)

// Store is the local index the node serves.
type Store interface {
	crawler.Index
	Snapshot(ctx context.Context, w io.Writer) (int64, error)
	Restore(ctx context.Context, r io.Reader) error
	Ping(ctx context.Context) error
}

// Peer receives a pushed snapshot.
type Peer interface {
	Restore(ctx context.Context, r io.Reader) error
}

// StreamHasher digests archived snapshots.
type StreamHasher interface {
	HashReader(r io.Reader) (string, int64, error)
}

// Options configures a Node. Archive, Hasher and Clock are only needed for
// Archive.
type Options struct {
	Advertise string
	Peers     func(address string) Peer
	Archive   crawler.BlobStore
	Hasher    StreamHasher
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Node is one replica process's view of its store.
type Node struct {
	Store
	advertise string
	peers     func(address string) Peer
	archive   crawler.BlobStore
	hasher    StreamHasher
	clock     crawler.Clock
	ready     atomic.Bool
	logger    *zap.Logger
}

// New wraps store. Peers defaults to HTTP replica clients.
func New(store Store, opts Options) *Node {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Peers == nil {
		opts.Peers = func(address string) Peer { return client.NewReplica(address) }
	}
	return &Node{
		Store:     store,
		advertise: opts.Advertise,
		peers:     opts.Peers,
		archive:   opts.Archive,
		hasher:    opts.Hasher,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("replica"),
	}
}

// Address is the address this replica advertises to the gateway.
func (n *Node) Address() string { return n.advertise }

// Ready reports whether Connect has been called.
func (n *Node) Ready() bool { return n.ready.Load() }

// Connect verifies the store and marks the node ready to serve.
func (n *Node) Connect(ctx context.Context) error {
	if err := n.Ping(ctx); err != nil {
		return err
	}
	if !n.ready.Swap(true) {
		n.logger.Info("replica connected", zap.String("address", n.advertise))
	}
	return nil
}

// Sync streams a full snapshot of this node into target, replacing the
// target's store.
func (n *Node) Sync(ctx context.Context, target string) error {
	const op = "sync replica"
	target = strings.TrimSpace(target)
	if target == "" {
		return apperr.Validationf(op, "target is required")
	}
	if target == n.advertise {
		return apperr.Validationf(op, "cannot sync %s into itself", target)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := n.Snapshot(ctx, pw)
		_ = pw.CloseWithError(err)
		done <- err
	}()

	pushErr := n.peers(target).Restore(ctx, pr)
	_ = pr.CloseWithError(pushErr)
	snapErr := <-done

	switch {
	case snapErr != nil && (pushErr == nil || !errors.Is(snapErr, pushErr)):
		return snapErr
	case pushErr != nil:
		return pushErr
	}
	n.logger.Info("snapshot pushed", zap.String("target", target))
	return nil
}

// Archive writes a snapshot to the blob store under
// snapshots/<replica>/<timestamp>-<sha256>.sqlite and returns its URI.
func (n *Node) Archive(ctx context.Context) (string, error) {
	const op = "archive snapshot"
	if n.archive == nil || n.hasher == nil || n.clock == nil {
		return "", apperr.E(apperr.ErrConfiguration, op, errors.New("no archive store configured"))
	}
	tmp, err := os.CreateTemp("", "replica-archive-*.sqlite")
	if err != nil {
		return "", apperr.E(apperr.ErrStorage, op, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // scratch file
	defer tmp.Close()           //nolint:errcheck // scratch file

	if _, err := n.Snapshot(ctx, tmp); err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", apperr.E(apperr.ErrStorage, op, err)
	}
	sum, size, err := n.hasher.HashReader(tmp)
	if err != nil {
		return "", apperr.E(apperr.ErrStorage, op, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", apperr.E(apperr.ErrStorage, op, err)
	}

	path := ArchivePath(n.advertise, n.clock.Now().Format("20060102T150405Z"), sum)
	uri, err := n.archive.PutObject(ctx, path, client.SnapshotContentType, tmp)
	if err != nil {
		return "", apperr.E(apperr.ErrStorage, op, fmt.Errorf("put %s: %w", path, err))
	}
	n.logger.Info("snapshot archived", zap.String("uri", uri), zap.Int64("bytes", size))
	return uri, nil
}

// ArchivePath builds the object name for an archived snapshot.
func ArchivePath(replica, stamp, sum string) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(replica)
	if name == "" {
		name = "replica"
	}
	return fmt.Sprintf("snapshots/%s/%s-%s.sqlite", name, stamp, sum)
}
