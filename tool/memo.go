package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/store"
)

// Notes live under memo/<key> relative to the tool's path, so every memo
// tool instance (and every engine) has its own notebook.
const memoPrefix = "memo"

const defaultSearchLimit = 10

// MemoArgs are the arguments of the memo tool.
type MemoArgs struct {
	Operation string `json:"operation" jsonschema:"enum=remember,enum=recall,enum=forget,enum=list,enum=search,description=The memo operation to perform"`
	Key       string `json:"key,omitempty" jsonschema:"description=Note identifier for remember recall and forget"`
	Value     string `json:"value,omitempty" jsonschema:"description=Note text for remember"`
	Query     string `json:"query,omitempty" jsonschema:"description=Case insensitive text to look for in notes for search"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Maximum number of search matches. Defaults to 10"`
}

// MemoMatch is a note found by search.
type MemoMatch struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MemoResult is returned by every memo operation.
type MemoResult struct {
	Key     string      `json:"key,omitempty"`
	Value   string      `json:"value,omitempty"`
	Found   bool        `json:"found,omitempty"`
	Version uint64      `json:"version,omitempty"`
	Keys    []string    `json:"keys,omitempty"`
	Matches []MemoMatch `json:"matches,omitempty"`
}

// NewMemoTool returns a tool that remembers, recalls, forgets, lists and
// searches short notes in the object store of the calling context.
func NewMemoTool() *FunctionTool {
	return NewTypedTool("memo", "Remember, recall, forget, list or search short notes.", memo)
}

func memo(ctx *core.BaseCtx, args MemoArgs) (any, error) {
	if args.Operation != "list" && args.Operation != "search" && args.Key == "" {
		return nil, NewToolError("memo", "key is required for "+args.Operation, CodeValidation)
	}

	switch args.Operation {
	case "remember":
		meta, err := ctx.StorePut(memoLocation(args.Key), []byte(args.Value))
		if err != nil {
			return nil, err
		}
		return MemoResult{Key: args.Key, Found: true, Version: meta.Version}, nil
	case "recall":
		data, meta, err := ctx.StoreGet(memoLocation(args.Key))
		if errors.Is(err, store.ErrNotFound) {
			return MemoResult{Key: args.Key}, nil
		}
		if err != nil {
			return nil, err
		}
		return MemoResult{Key: args.Key, Value: string(data), Found: true, Version: meta.Version}, nil
	case "forget":
		err := ctx.StoreDelete(memoLocation(args.Key))
		if errors.Is(err, store.ErrNotFound) {
			return MemoResult{Key: args.Key}, nil
		}
		if err != nil {
			return nil, err
		}
		return MemoResult{Key: args.Key, Found: true}, nil
	case "list":
		metas, err := ctx.StoreList(memoPrefix)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(metas))
		for _, m := range metas {
			segs := m.Location.Segments()
			keys = append(keys, segs[len(segs)-1])
		}
		return MemoResult{Keys: keys}, nil
	case "search":
		return searchNotes(ctx, args.Query, args.Limit)
	default:
		return nil, NewToolError("memo", fmt.Sprintf("unknown operation %q", args.Operation), CodeValidation)
	}
}

// searchNotes scans every note in location order and keeps those containing
// query. An empty query matches everything.
func searchNotes(ctx *core.BaseCtx, query string, limit int) (MemoResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	metas, err := ctx.StoreList(memoPrefix)
	if err != nil {
		return MemoResult{}, err
	}

	query = strings.ToLower(query)

	var matches []MemoMatch
	for _, m := range metas {
		if len(matches) >= limit {
			break
		}

		segs := m.Location.Segments()
		key := segs[len(segs)-1]

		data, _, err := ctx.StoreGet(memoLocation(key))
		if errors.Is(err, store.ErrNotFound) {
			continue // forgotten concurrently
		}
		if err != nil {
			return MemoResult{}, err
		}

		if query == "" || strings.Contains(strings.ToLower(string(data)), query) {
			matches = append(matches, MemoMatch{Key: key, Value: string(data)})
		}
	}

	return MemoResult{Found: len(matches) > 0, Matches: matches}, nil
}

func memoLocation(key string) string {
	return memoPrefix + "/" + key
}
