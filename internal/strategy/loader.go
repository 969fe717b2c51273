package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const documentSchema = `{
  "type": "object",
  "required": ["position_size_percent", "stop_loss_percent", "take_profit_percent", "direction", "entry"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "description": {"type": "string"},
    "position_size_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "stop_loss_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "take_profit_percent": {"type": "number", "exclusiveMinimum": 0},
    "direction": {"type": "string", "minLength": 1},
    "rsi_period": {"type": "integer", "minimum": 2},
    "entry": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/check"}},
    "exit": {"type": "array", "items": {"$ref": "#/definitions/check"}}
  },
  "definitions": {
    "check": {
      "type": "object",
      "required": ["check"],
      "additionalProperties": false,
      "properties": {
        "check": {"type": "string"},
        "value": {"type": "number"},
        "period": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("strategy.json", strings.NewReader(documentSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("strategy.json")
	})
	return schemaCompiled, schemaErr
}

// LoadFile 读取 YAML/JSON 规则文件。
func LoadFile(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy file failed: %w", err)
	}
	return Parse(raw)
}

// Parse 接受单个规则对象或 strategies 映射（key 作为缺省名称），按名称排序返回。
// JSON 是 YAML 的子集，两种格式共用一个解析器。
func Parse(raw []byte) ([]Document, error) {
	var root any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse strategy file failed: %w", err)
	}
	top, ok := normalize(root).(map[string]any)
	if !ok {
		return nil, configErr("", "strategy file must be an object")
	}
	entries := map[string]any{}
	if set, found := top["strategies"]; found {
		m, ok := set.(map[string]any)
		if !ok {
			return nil, configErr("strategies", "must be a map of name to rules")
		}
		entries = m
	} else {
		name, _ := top["name"].(string)
		entries[name] = top
	}
	docs := make([]Document, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for key, item := range entries {
		doc, err := decodeDocument(key, item)
		if err != nil {
			return nil, err
		}
		if seen[doc.Name] {
			return nil, configErr("name", "duplicate strategy %q", doc.Name)
		}
		seen[doc.Name] = true
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func decodeDocument(key string, item any) (Document, error) {
	schema, err := compiledSchema()
	if err != nil {
		return Document{}, fmt.Errorf("compile strategy schema: %w", err)
	}
	plain, err := toJSONValue(item)
	if err != nil {
		return Document{}, configErr(key, "%s", err.Error())
	}
	if err := schema.Validate(plain); err != nil {
		return Document{}, configErr(key, "%s", err.Error())
	}
	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return Document{}, err
	}
	if err := dec.Decode(plain); err != nil {
		return Document{}, configErr(key, "%s", err.Error())
	}
	if strings.TrimSpace(doc.Name) == "" {
		doc.Name = strings.TrimSpace(key)
	}
	if _, err := doc.Rules(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// toJSONValue 转成 encoding/json 的标准形态（数字为 float64），便于 schema 校验。
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalize(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalize(child)
		}
		return out
	default:
		return val
	}
}
