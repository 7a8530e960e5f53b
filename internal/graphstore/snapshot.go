package graphstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/tenant"
)

// ObjectStore is the columnar object-storage abstraction GraphStore
// checkpoints snapshots to (spec §4.2, §6 persistence layout). Keys are
// full paths, e.g. "{tenant}/graph/snapshots/{timestamp}/nodes-0.json".
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Manifest accompanies every snapshot: the file list, their checksums,
// and the schema version they were written under.
type Manifest struct {
	SchemaVersion int               `json:"schema_version"`
	Files         map[string]string `json:"files"` // key -> sha256 hex
	GeneratedAt   time.Time         `json:"generated_at"`
}

type partitionDump struct {
	Nodes       []domain.GraphNode `json:"nodes"`
	Edges       []domain.GraphEdge `json:"edges"`
}

// snapshotPrefix returns the tenant-scoped object-storage prefix for a
// given checkpoint timestamp, per spec §6's persistence layout.
func snapshotPrefix(tenantID string, ts time.Time) string {
	return fmt.Sprintf("%s/graph/snapshots/%s", tenantID, ts.UTC().Format("20060102T150405Z"))
}

// Persist performs the two-phase-commit checkpoint from spec §4.2: write
// every partition directly under the new timestamped snapshot prefix,
// then publish by writing the manifest (which holds the checksums) last
// (the presence of a complete manifest is what makes a snapshot
// "published"). On any failure the keys already written are deleted and
// earlier snapshots are left untouched.
func (s *Store) Persist(ctx context.Context, tenantID string) (prefix string, err error) {
	now := time.Now().UTC()
	prefix = snapshotPrefix(tenantID, now)

	dump, err := s.dumpTenant(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("dumping tenant %s for snapshot: %w", tenantID, err)
	}

	manifest := Manifest{SchemaVersion: currentSchemaVersion, Files: map[string]string{}, GeneratedAt: now}

	nodesKey := prefix + "/nodes-0.json"
	edgesKey := prefix + "/edges-0.json"

	nodesRaw, nerr := json.Marshal(dump.Nodes)
	edgesRaw, eerr := json.Marshal(dump.Edges)
	if nerr != nil || eerr != nil {
		return "", fmt.Errorf("encoding snapshot partitions: nodes=%v edges=%v", nerr, eerr)
	}

	defer func() {
		if err != nil {
			_ = s.objects.Delete(ctx, nodesKey)
			_ = s.objects.Delete(ctx, edgesKey)
			_ = s.objects.Delete(ctx, prefix+"/manifest.json")
		}
	}()

	if err = s.objects.Put(ctx, nodesKey, nodesRaw); err != nil {
		return "", fmt.Errorf("writing nodes partition: %w", err)
	}
	manifest.Files[nodesKey] = checksum(nodesRaw)

	if err = s.objects.Put(ctx, edgesKey, edgesRaw); err != nil {
		return "", fmt.Errorf("writing edges partition: %w", err)
	}
	manifest.Files[edgesKey] = checksum(edgesRaw)

	manifestRaw, merr := json.Marshal(manifest)
	if merr != nil {
		err = fmt.Errorf("encoding manifest: %w", merr)
		return "", err
	}
	if err = s.objects.Put(ctx, prefix+"/manifest.json", manifestRaw); err != nil {
		return "", fmt.Errorf("publishing manifest: %w", err)
	}

	s.logger.Info("graph snapshot persisted", "tenant_id", tenantID, "prefix", prefix, "nodes", len(dump.Nodes), "edges", len(dump.Edges))
	return prefix, nil
}

// Load validates every checksum in the manifest at prefix and restores
// the tenant's graph from it. A corrupt file causes Load to return an
// error so the caller can fall back to the previous snapshot, which is
// retained per the backup policy.
func (s *Store) Load(ctx context.Context, tenantID, prefix string) error {
	manifestRaw, err := s.objects.Get(ctx, prefix+"/manifest.json")
	if err != nil {
		return fmt.Errorf("reading manifest at %s: %w", prefix, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		return fmt.Errorf("decoding manifest at %s: %w", prefix, err)
	}

	var dump partitionDump
	for key, wantChecksum := range manifest.Files {
		raw, err := s.objects.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("reading partition %s: %w", key, err)
		}
		if checksum(raw) != wantChecksum {
			return fmt.Errorf("checksum mismatch on %s: snapshot corrupt", key)
		}
		switch filepath.Base(key)[:5] {
		case "nodes":
			if err := json.Unmarshal(raw, &dump.Nodes); err != nil {
				return fmt.Errorf("decoding nodes partition %s: %w", key, err)
			}
		case "edges":
			if err := json.Unmarshal(raw, &dump.Edges); err != nil {
				return fmt.Errorf("decoding edges partition %s: %w", key, err)
			}
		}
	}

	return s.restoreTenant(ctx, tenantID, dump)
}

// LatestSnapshot returns the most recent published snapshot prefix for
// a tenant, or "" if none exists.
func (s *Store) LatestSnapshot(ctx context.Context, tenantID string) (string, error) {
	keys, err := s.objects.List(ctx, fmt.Sprintf("%s/graph/snapshots/", tenantID))
	if err != nil {
		return "", fmt.Errorf("listing snapshots for %s: %w", tenantID, err)
	}

	prefixes := map[string]bool{}
	for _, k := range keys {
		if filepath.Base(k) == "manifest.json" {
			prefixes[filepath.Dir(k)] = true
		}
	}
	if len(prefixes) == 0 {
		return "", nil
	}

	sorted := make([]string, 0, len(prefixes))
	for p := range prefixes {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)
	return sorted[len(sorted)-1], nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) dumpTenant(ctx context.Context, tenantID string) (partitionDump, error) {
	var dump partitionDump

	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		nodeRows, err := conn.Query(ctx, `SELECT id, kind, label, properties, deleted_at FROM graph_nodes WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return fmt.Errorf("querying nodes: %w", err)
		}
		defer nodeRows.Close()
		for nodeRows.Next() {
			var n domain.GraphNode
			var propsRaw []byte
			if err := nodeRows.Scan(&n.ID, &n.Kind, &n.Label, &propsRaw, &n.DeletedAt); err != nil {
				return fmt.Errorf("scanning node: %w", err)
			}
			n.TenantID = tenantID
			n.Properties = unmarshalProperties(propsRaw)
			dump.Nodes = append(dump.Nodes, n)
		}
		if err := nodeRows.Err(); err != nil {
			return err
		}

		edgeRows, err := conn.Query(ctx, `SELECT id, source_id, target_id, edge_type, properties, deleted_at FROM graph_edges WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return fmt.Errorf("querying edges: %w", err)
		}
		defer edgeRows.Close()
		for edgeRows.Next() {
			var e domain.GraphEdge
			var propsRaw []byte
			if err := edgeRows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.EdgeType, &propsRaw, &e.DeletedAt); err != nil {
				return fmt.Errorf("scanning edge: %w", err)
			}
			e.TenantID = tenantID
			e.Properties = unmarshalProperties(propsRaw)
			dump.Edges = append(dump.Edges, e)
		}
		return edgeRows.Err()
	})

	return dump, err
}

func (s *Store) restoreTenant(ctx context.Context, tenantID string, dump partitionDump) error {
	return tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		for _, n := range dump.Nodes {
			if _, err := conn.Exec(ctx,
				`INSERT INTO graph_nodes (id, tenant_id, kind, label, properties, deleted_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, label = EXCLUDED.label,
				   properties = EXCLUDED.properties, deleted_at = EXCLUDED.deleted_at`,
				n.ID, tenantID, n.Kind, n.Label, propertiesJSON(n.Properties), n.DeletedAt,
			); err != nil {
				return fmt.Errorf("restoring node %s: %w", n.ID, err)
			}
		}
		for _, e := range dump.Edges {
			if _, err := conn.Exec(ctx,
				`INSERT INTO graph_edges (id, tenant_id, source_id, target_id, edge_type, properties, deleted_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id) DO UPDATE SET properties = EXCLUDED.properties, deleted_at = EXCLUDED.deleted_at`,
				e.ID, tenantID, e.SourceID, e.TargetID, e.EdgeType, propertiesJSON(e.Properties), e.DeletedAt,
			); err != nil {
				return fmt.Errorf("restoring edge %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

const currentSchemaVersion = 1

// InMemoryObjectStore is a test/reference ObjectStore backed by a
// process-local map, mirroring the role memindex plays for VectorIndex.
type InMemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemoryObjectStore constructs an empty InMemoryObjectStore.
func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{objects: make(map[string][]byte)}
}

func (o *InMemoryObjectStore) Put(_ context.Context, key string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	o.objects[key] = cp
	return nil
}

func (o *InMemoryObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (o *InMemoryObjectStore) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *InMemoryObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var keys []string
	for k := range o.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// FilesystemObjectStore persists objects under a root directory, one
// file per key, used for local/dev deployments without S3-compatible
// storage.
type FilesystemObjectStore struct {
	root string
}

// NewFilesystemObjectStore constructs a FilesystemObjectStore rooted at dir.
func NewFilesystemObjectStore(dir string) *FilesystemObjectStore {
	return &FilesystemObjectStore{root: dir}
}

func (o *FilesystemObjectStore) path(key string) string {
	return filepath.Join(o.root, filepath.FromSlash(key))
}

func (o *FilesystemObjectStore) Put(_ context.Context, key string, data []byte) error {
	p := o.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (o *FilesystemObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(o.path(key))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (o *FilesystemObjectStore) Delete(_ context.Context, key string) error {
	err := os.Remove(o.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (o *FilesystemObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	root := o.path(prefix)
	var keys []string
	err := filepath.Walk(filepath.Dir(root), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(o.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if bytes.HasPrefix([]byte(key), []byte(prefix)) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
