// Package utils holds small helpers shared across packages that don't
// warrant their own home.
package utils

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ReflectJSONSchema reflects v's Go type into a JSON schema document. Set
// inline to true to inline nested type definitions instead of emitting
// them as $defs references, which is what the admin server's single-shot
// capability schema wants: one flat document, no client-side $ref
// resolution needed.
func ReflectJSONSchema(v any, inline bool) ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = inline

	schema := r.Reflect(v)

	return json.Marshal(schema)
}
