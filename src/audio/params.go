package audio

import (
	"encoding/json"
	"fmt"
)

// settable blocks accept "set <block> <key> <value>" commands.
type settable interface {
	set(key string, value string) error
}

// patchable blocks take part in the patch snapshot. prepareJSON parses and
// validates data without touching the block; the returned commit applies it.
type patchable interface {
	prepareJSON(data json.RawMessage) (commit func(), err error)
	toJSON() json.RawMessage
}


type namedBlock struct {
	name  string
	block Block
}

type patchJSON map[string]json.RawMessage

// preparePatch validates every section present in data and returns a commit
// that applies them all. Sections for unknown blocks are rejected; absent
// sections leave their block untouched. Nothing changes before commit runs.
func preparePatch(blocks []namedBlock, data json.RawMessage) (func(), error) {
	var j patchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	for name := range j {
		if findBlock(blocks, name) == nil {
			return nil, fmt.Errorf("patch: unknown block %q", name)
		}
	}
	var commits []func()
	for _, nb := range blocks {
		section, ok := j[nb.name]
		if !ok {
			continue
		}
		p, ok := nb.block.(patchable)
		if !ok {
			return nil, fmt.Errorf("patch: block %q has no settings", nb.name)
		}
		commit, err := p.prepareJSON(section)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return func() {
		for _, commit := range commits {
			commit()
		}
	}, nil
}

func patchToJSON(blocks []namedBlock) json.RawMessage {
	j := make(patchJSON, len(blocks))
	for _, nb := range blocks {
		if p, ok := nb.block.(patchable); ok {
			j[nb.name] = p.toJSON()
		}
	}
	return toRawMessage(j)
}

func findBlock(blocks []namedBlock, name string) Block {
	for _, nb := range blocks {
		if nb.name == name {
			return nb.block
		}
	}
	return nil
}
