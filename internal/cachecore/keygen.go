package cachecore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/goccy/go-json"

	"github.com/exrt/exllm/pkg/types"
)

// KeyParams is the salient request shape a cache key is derived from.
// Only fields that affect the response belong here — request ids,
// timestamps, and other per-call noise must never reach KeyFor.
type KeyParams struct {
	Provider string
	Model    string
	Messages []types.Message
	Options  map[string]any
}

// salientOption keys matched against KeyParams.Options; anything else
// (e.g. a request-scoped trace id stashed in Options) is excluded from
// the key on purpose.
var salientOptionKeys = []string{
	"temperature", "top_p", "max_tokens", "stop", "tools",
	"tool_choice", "response_format", "seed", "frequency_penalty",
	"presence_penalty", "n",
}

// KeyFor derives a deterministic SHA-256 cache key over
// {provider, model, normalized messages, salient options}, per §9 Open
// Question (a). Map keys are sorted before marshaling so two
// semantically identical option sets never diverge by iteration order.
func KeyFor(p KeyParams) string {
	salient := make(map[string]any, len(salientOptionKeys))
	keys := make([]string, 0, len(salientOptionKeys))
	for _, k := range salientOptionKeys {
		if v, ok := p.Options[k]; ok {
			salient[k] = v
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ordered := make([]struct {
		K string `json:"k"`
		V any    `json:"v"`
	}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, struct {
			K string `json:"k"`
			V any    `json:"v"`
		}{K: k, V: salient[k]})
	}

	payload := struct {
		Provider string           `json:"provider"`
		Model    string           `json:"model"`
		Messages []types.Message `json:"messages"`
		Options  []struct {
			K string `json:"k"`
			V any    `json:"v"`
		} `json:"options"`
	}{
		Provider: p.Provider,
		Model:    p.Model,
		Messages: p.Messages,
		Options:  ordered,
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		// Messages/Options are always json-marshalable application
		// types; a failure here means a caller passed something that
		// cannot round-trip at all, which is a programming error.
		panic("cachecore: key payload not marshalable: " + err.Error())
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
