//go:build property

package httpwire

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRequestParserChunkingInvariant checks property 1: feeding a request
// one byte at a time produces the same parsed Request as feeding it in a
// single bulk write, for randomly generated header sets.
func TestRequestParserChunkingInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("byte-at-a-time parsing matches bulk parsing", prop.ForAll(
		func(headers map[string]string) bool {
			raw := buildRequest(headers)

			bulk := NewRequestParser()
			if _, err := bulk.Feed(raw); err != nil || !bulk.Done() {
				return false
			}

			bytewise := NewRequestParser()
			for i := 0; i < len(raw) && !bytewise.Done(); i++ {
				if _, err := bytewise.Feed(raw[i : i+1]); err != nil {
					return false
				}
			}
			if !bytewise.Done() {
				return false
			}

			return reflect.DeepEqual(bulk.Request(), bytewise.Request())
		},
		genHeaderMap(),
	))

	properties.TestingRun(t)
}

func buildRequest(headers map[string]string) []byte {
	var b strings.Builder
	b.WriteString("GET /path HTTP/1.1\r\n")
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func genHeaderMap() gopter.Gen {
	return gen.MapOf(
		gen.Identifier(),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	)
}
