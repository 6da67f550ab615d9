package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Record Helpers
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getOptionalFloat64FromRecord(record *neo4j.Record, key string) *float64 {
	val, ok := record.Get(key)
	if !ok {
		return nil
	}
	return toOptionalFloat(val)
}

func getMapSliceFromRecord(record *neo4j.Record, key string) []map[string]interface{} {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	slice, ok := val.([]interface{})
	if !ok {
		return nil
	}
	result := make([]map[string]interface{}, 0, len(slice))
	for _, v := range slice {
		if m, ok := v.(map[string]interface{}); ok {
			result = append(result, m)
		}
	}
	return result
}

// ============================================================================
// Map Helpers
// ============================================================================

func getStringFromMap(m map[string]interface{}, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getFloat64FromMap(m map[string]interface{}, key string, defaultValue float64) float64 {
	if f := toOptionalFloat(m[key]); f != nil {
		return *f
	}
	return defaultValue
}

func getOptionalFloat64FromMap(m map[string]interface{}, key string) *float64 {
	return toOptionalFloat(m[key])
}

func getStringSliceFromMap(m map[string]interface{}, key string) []string {
	val, ok := m[key]
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	if slice, ok := val.([]string); ok {
		return append([]string{}, slice...)
	}
	return []string{}
}

func toOptionalFloat(val interface{}) *float64 {
	switch v := val.(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// optionalFloat turns an absent coordinate or weight into a Cypher null.
func optionalFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
