package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
	"github.com/yungbote/neurobridge-prereq/internal/platform/neo4jdb"
)

const nodeProjection = `{.key, .kind, .topic, .status, .record_ref, .content_ref}`

var relTypes = map[types.EdgeLabel]string{
	types.EdgePrerequisite: "PREREQUISITE",
	types.EdgeBase:         "BASE",
}

// Neo4jStore keeps every learner's graph as (:Topic) vertices keyed by
// (owner_id, key) with PREREQUISITE and BASE relationships.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: baseLog.With("store", "Neo4jGraphStore")}
}

// EnsureSchema creates the owner/key uniqueness constraint. Failures are
// logged and ignored; inserts still check for existing vertices.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) {
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `CREATE CONSTRAINT topic_owner_key IF NOT EXISTS FOR (n:Topic) REQUIRE (n.owner_id, n.key) IS UNIQUE`, nil)
	if err != nil {
		s.log.Warn("neo4j schema init failed (continuing)", "error", err)
		return
	}
	_, _ = res.Consume(ctx)
}

func (s *Neo4jStore) InsertVertex(ctx context.Context, node types.TopicNode) error {
	if node.ID == "" {
		return fmt.Errorf("graph: empty vertex id")
	}
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	params := map[string]any{
		"owner_id":    node.OwnerID.String(),
		"key":         node.ID,
		"kind":        string(node.Kind),
		"topic":       node.Topic,
		"status":      string(node.Status),
		"record_ref":  recordRefString(node.RecordRef),
		"content_ref": derefOrNil(node.ContentRef),
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Topic {owner_id: $owner_id, key: $key})
RETURN count(n) AS c
`, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if c, _ := rec.Get("c"); asInt64(c) > 0 {
			return nil, ErrVertexExists
		}

		res, err = tx.Run(ctx, `
CREATE (n:Topic {
  owner_id: $owner_id,
  key: $key,
  kind: $kind,
  topic: $topic,
  status: $status,
  record_ref: $record_ref,
  content_ref: $content_ref,
  created_at: timestamp()
})
`, params)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (s *Neo4jStore) InsertEdge(ctx context.Context, ownerID uuid.UUID, edge types.Edge) error {
	rel, ok := relTypes[edge.Label]
	if !ok {
		return fmt.Errorf("graph: unknown edge label %q", edge.Label)
	}
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Topic {owner_id: $owner_id, key: $from})
MATCH (b:Topic {owner_id: $owner_id, key: $to})
MERGE (a)-[:`+rel+`]->(b)
RETURN count(*) AS c
`, map[string]any{
			"owner_id": ownerID.String(),
			"from":     edge.From,
			"to":       edge.To,
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if c, _ := rec.Get("c"); asInt64(c) == 0 {
			return nil, fmt.Errorf("%w: %s -> %s", ErrVertexNotFound, edge.From, edge.To)
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jStore) GetVertex(ctx context.Context, ownerID uuid.UUID, id string) (*types.TopicNode, error) {
	nodes, err := s.readNodes(ctx, ownerID, `
MATCH (n:Topic {owner_id: $owner_id, key: $key})
RETURN n `+nodeProjection+` AS node
`, map[string]any{"key": id})
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}

func (s *Neo4jStore) Frontier(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, error) {
	return s.readNodes(ctx, ownerID, `
MATCH (n:Topic {owner_id: $owner_id})
WHERE n.kind <> 'root' AND NOT (n)-[:PREREQUISITE]->(:Topic)
RETURN n `+nodeProjection+` AS node
ORDER BY n.created_at, n.key
`, nil)
}

func (s *Neo4jStore) Children(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error) {
	return s.readNodes(ctx, ownerID, `
MATCH (:Topic {owner_id: $owner_id, key: $key})-[]->(n:Topic {owner_id: $owner_id})
RETURN n `+nodeProjection+` AS node
ORDER BY n.created_at, n.key
`, map[string]any{"key": id})
}

func (s *Neo4jStore) Parents(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error) {
	return s.readNodes(ctx, ownerID, `
MATCH (n:Topic {owner_id: $owner_id})-[]->(:Topic {owner_id: $owner_id, key: $key})
RETURN n `+nodeProjection+` AS node
ORDER BY n.created_at, n.key
`, map[string]any{"key": id})
}

func (s *Neo4jStore) SetStatus(ctx context.Context, ownerID uuid.UUID, id string, status types.NodeStatus) error {
	return s.setProperty(ctx, ownerID, id, "status", string(status))
}

func (s *Neo4jStore) SetContentRef(ctx context.Context, ownerID uuid.UUID, id string, ref *string) error {
	return s.setProperty(ctx, ownerID, id, "content_ref", derefOrNil(ref))
}

func (s *Neo4jStore) Snapshot(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, []types.Edge, error) {
	nodes, err := s.readNodes(ctx, ownerID, `
MATCH (n:Topic {owner_id: $owner_id})
RETURN n `+nodeProjection+` AS node
ORDER BY n.created_at, n.key
`, nil)
	if err != nil {
		return nil, nil, err
	}

	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Topic {owner_id: $owner_id})-[r]->(b:Topic {owner_id: $owner_id})
RETURN a.key AS from, b.key AS to, type(r) AS rel
ORDER BY a.created_at, b.created_at
`, map[string]any{"owner_id": ownerID.String()})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		edges := make([]types.Edge, 0, len(recs))
		for _, rec := range recs {
			edges = append(edges, types.Edge{
				From:  stringFromRecord(rec, "from"),
				To:    stringFromRecord(rec, "to"),
				Label: types.EdgeLabel(strings.ToLower(stringFromRecord(rec, "rel"))),
			})
		}
		return edges, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return nodes, out.([]types.Edge), nil
}

func (s *Neo4jStore) setProperty(ctx context.Context, ownerID uuid.UUID, id, prop string, value any) error {
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n:Topic {owner_id: $owner_id, key: $key})
SET n.`+prop+` = $value
RETURN count(n) AS c
`, map[string]any{
			"owner_id": ownerID.String(),
			"key":      id,
			"value":    value,
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if c, _ := rec.Get("c"); asInt64(c) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, id)
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jStore) readNodes(ctx context.Context, ownerID uuid.UUID, query string, params map[string]any) ([]types.TopicNode, error) {
	if params == nil {
		params = map[string]any{}
	}
	params["owner_id"] = ownerID.String()

	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		nodes := make([]types.TopicNode, 0, len(recs))
		for _, rec := range recs {
			raw, _ := rec.Get("node")
			props, _ := raw.(map[string]any)
			nodes = append(nodes, nodeFromProps(ownerID, props))
		}
		return nodes, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]types.TopicNode), nil
}

func nodeFromProps(ownerID uuid.UUID, props map[string]any) types.TopicNode {
	n := types.TopicNode{
		ID:      stringProp(props, "key"),
		OwnerID: ownerID,
		Kind:    types.NodeKind(stringProp(props, "kind")),
		Topic:   stringProp(props, "topic"),
		Status:  types.NodeStatus(stringProp(props, "status")),
	}
	if ref, err := uuid.Parse(stringProp(props, "record_ref")); err == nil {
		n.RecordRef = ref
	}
	if v, ok := props["content_ref"].(string); ok {
		n.ContentRef = &v
	}
	return n
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func stringFromRecord(rec *neo4j.Record, key string) string {
	val, ok := rec.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

func recordRefString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
