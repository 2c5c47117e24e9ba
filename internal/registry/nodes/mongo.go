package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// mongoDefaultTimeout bounds a find query when the caller sets none.
const mongoDefaultTimeout = 30 * time.Second

// MongoQueryConfig identifies the target collection for a find query.
type MongoQueryConfig struct {
	ConnectionString string `json:"connectionString"`
	Database string `json:"database"`
	Collection string `json:"collection"`
	Limit int64 `json:"limit,omitempty"`
}

type mongoNode struct {
	cfg MongoQueryConfig
}

func NewMongoNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("mongo node: marshal config: %w", err)
		}
		var cfg MongoQueryConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("mongo node: parse config: %w", err)
		}
		if cfg.ConnectionString == "" || cfg.Database == "" || cfg.Collection == "" {
			return nil, fmt.Errorf("mongo node: connectionString, database, and collection are required")
		}
		return &mongoNode{cfg: cfg}, nil
	}
}

func (n *mongoNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	var filter bson.M
	if v, ok := nctx.Inputs.Get("filter"); ok && v.Kind == value.TypeJSON {
		if m, ok := v.Raw.(map[string]any); ok {
			filter = bson.M(m)
		}
	}
	if filter == nil {
		filter = bson.M{}
	}

	ctx, cancel := context.WithTimeout(nctx.Context, mongoDefaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(n.cfg.ConnectionString))
	if err != nil {
		return registry.Errored(fmt.Sprintf("mongo node: connect failed: %v", err), 1), nil
	}
	defer client.Disconnect(ctx)

	findOpts := options.Find()
	if n.cfg.Limit > 0 {
		findOpts.SetLimit(n.cfg.Limit)
	}

	cursor, err := client.Database(n.cfg.Database).Collection(n.cfg.Collection).Find(ctx, filter, findOpts)
	if err != nil {
		return registry.Errored(fmt.Sprintf("mongo node: query failed: %v", err), 1), nil
	}
	defer cursor.Close(ctx)

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return registry.Errored(fmt.Sprintf("mongo node: decode results: %v", err), 1), nil
	}

	results := make([]any, len(docs))
	for i, d := range docs {
		results[i] = d
	}

	return registry.Completed(value.NodeRuntimeValues{
			"documents": value.JSON(results),
		}, 1), nil
}

func MongoMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:mongodb_query",
		Tags: []string{"action", "database"},
		Inputs: []value.ParameterSpec{
			{Name: "filter", Type: value.TypeJSON, Required: false},
		},
		Outputs: []value.ParameterSpec{{Name: "documents", Type: value.TypeJSON}},
		Usage: 1,
		Documentation: "Runs a find query against a MongoDB collection.",
	}
}
