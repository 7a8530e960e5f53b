package weaviateidx

import (
	"fmt"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/wisbric/stratum/internal/vectorindex"
)

func newDataObject(class string, rec vectorindex.Record) *models.Object {
	return &models.Object{
		Class:      class,
		ID:         strfmt.UUID(rec.ID),
		Vector:     rec.Vector,
		Properties: rec.Metadata,
	}
}

func objectToRecord(obj *models.Object) *vectorindex.Record {
	metadata, _ := obj.Properties.(map[string]any)
	return &vectorindex.Record{
		ID:       fmt.Sprintf("%v", obj.ID),
		Vector:   obj.Vector,
		Metadata: metadata,
	}
}

func parseSearchResults(resp *models.GraphQLResponse, class string) ([]vectorindex.SearchResult, error) {
	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	items, ok := get[class].([]any)
	if !ok {
		return nil, nil
	}

	results := make([]vectorindex.SearchResult, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		additional, _ := obj["_additional"].(map[string]any)
		id, _ := additional["id"].(string)
		var score float64
		switch v := additional["certainty"].(type) {
		case float64:
			score = v
		case string:
			score, _ = strconv.ParseFloat(v, 64)
		}
		delete(obj, "_additional")
		results = append(results, vectorindex.SearchResult{ID: id, Score: score, Metadata: obj})
	}
	return results, nil
}
