package document

import (
	"encoding/json"
	"fmt"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"
)

// validateStructure rejects a submission that is not well-formed RFC 6902 —
// missing "value" on add/replace/test, missing "from" on move/copy, or an
// unrecognized op kind. It delegates the structural checks to
// evanphx/json-patch's own decoder rather than reimplementing them: the
// semantic checks that follow (parent materialization, drop-if-absent) are
// this package's own policy and go beyond what that library's Apply
// supports, so only the decode/validate half of the library is used here.
func validateStructure(ops []Op) error {
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, op := range patch {
		switch kind := op.Kind(); kind {
		case "add", "replace", "test":
			if _, ok := op["value"]; !ok {
				return fmt.Errorf("%w: %s op missing value", ErrMalformed, kind)
			}
		case "move", "copy":
			if _, err := op.From(); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		case "remove":
		default:
			return fmt.Errorf("%w: unknown op %q", ErrMalformed, kind)
		}
		if _, err := op.Path(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return nil
}

// filterOps drops any operation whose path touches a disallowed token —
// used to silently reject writes to legacy altitude fields.
func filterOps(ops []Op, disallowed []string) []Op {
	if len(disallowed) == 0 {
		return ops
	}
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if pathHasToken(op.Path, disallowed) {
			continue
		}
		out = append(out, op)
	}
	return out
}

func pathHasToken(path string, tokens []string) bool {
	for _, tok := range splitPointer(path) {
		for _, bad := range tokens {
			if tok == bad {
				return true
			}
		}
	}
	return false
}

// validateOps drops remove/replace operations whose target path does not
// currently exist in doc. add/replace operations against a missing parent
// chain are kept — materializeParents handles them before apply.
func validateOps(doc any, ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		switch op.Op {
		case "remove", "replace":
			if !pointerExists(doc, splitPointer(op.Path)) {
				continue
			}
		case "add", "move", "copy", "test":
			// add tolerates a missing parent (materialized below); move/copy/test
			// require the "from"/target to resolve, but none of these are
			// exercised by the Core's own callers (setters only ever emit
			// add/replace/remove) so no extra policy is imposed here.
		}
		out = append(out, op)
	}
	return out
}

// materializeOps returns a copy of ops where any add/replace op targeting a
// path whose parent chain doesn't exist is preceded by synthetic "add" ops
// that build the chain out of empty objects, so patch application never
// leaves dangling parents.
func materializeOps(doc any, ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	// Track objects this materialization pass has already decided to create,
	// so repeated prefixes within one submission aren't emitted twice.
	created := map[string]bool{}

	for _, op := range ops {
		if op.Op == "add" || op.Op == "replace" {
			tokens := splitPointer(op.Path)
			for i := 1; i < len(tokens); i++ {
				prefix := tokens[:i]
				key := dotPath(prefix)
				if created[key] {
					continue
				}
				if pointerExists(doc, prefix) {
					continue
				}
				out = append(out, Op{Op: "add", Path: "/" + joinPointer(prefix), Value: map[string]any{}})
				created[key] = true
			}
		}
		out = append(out, op)
	}
	return out
}

func joinPointer(tokens []string) string {
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = escapePointerToken(t)
	}
	return joinSlash(escaped)
}

func escapePointerToken(t string) string {
	out := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		switch t[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, t[i])
		}
	}
	return string(out)
}

func joinSlash(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "/" + p
	}
	return out
}

// applyOps mutates doc in place (doc must be a map[string]any, the document
// root) according to ops, which have already been filtered, validated, and
// materialized. It returns the (possibly replaced) root.
func applyOps(doc any, ops []Op) any {
	for _, op := range ops {
		tokens := splitPointer(op.Path)
		switch op.Op {
		case "add", "replace":
			doc = pointerSet(doc, tokens, cloneValue(op.Value))
		case "remove":
			doc = pointerRemove(doc, tokens)
		}
	}
	return doc
}

// computeDelta derives the dot-path → new-value mapping the ops produce,
// read from the post-apply document so the delta reflects the values that
// actually landed (materialization and array append resolution included).
func computeDelta(postApply any, ops []Op) Delta {
	delta := make(Delta, len(ops))
	for _, op := range ops {
		tokens := splitPointer(op.Path)
		key := dotPath(tokens)
		switch op.Op {
		case "remove":
			delta[key] = Removed{}
		case "add", "replace":
			if v, ok := pointerGet(postApply, tokens); ok {
				delta[key] = v
			} else {
				delta[key] = op.Value
			}
		}
	}
	return delta
}

// cloneValue deep-copies JSON-shaped values (map[string]any / []any /
// scalars) so a caller mutating their own op.Value slice after submission
// can't reach back into the document.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
