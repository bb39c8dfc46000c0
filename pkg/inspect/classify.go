package inspect

import (
	"strings"

	"github.com/funnyzak/gqltap/pkg/entry"
)

// Category is the mutually exclusive kind of a request.
type Category string

const (
	CategoryGraphQL Category = "graphql"
	CategoryToken   Category = "token"
	CategoryAccess  Category = "access"
	CategoryOther   Category = "other"
)

// Categories lists every category in classification order.
var Categories = []Category{CategoryGraphQL, CategoryToken, CategoryAccess, CategoryOther}

const jsonMediaType = "application/json"

// IsGraphQLRequest reports whether rec looks like a GraphQL operation: the path
// mentions /graphql, or a body typed exactly application/json mentions both
// query and variables. This is a heuristic and tolerates any body shape.
func IsGraphQLRequest(rec *entry.Record) bool {
	if rec == nil {
		return false
	}
	if strings.Contains(ParseURL(rec.URL).Path, "/graphql") {
		return true
	}
	if rec.Body == nil || rec.Body.MimeType != jsonMediaType {
		return false
	}
	return strings.Contains(rec.Body.Text, "query") && strings.Contains(rec.Body.Text, "variables")
}

// CategoryOf classifies rec. The GraphQL check wins over the URL suffix checks.
func CategoryOf(rec *entry.Record) Category {
	switch {
	case rec == nil:
		return CategoryOther
	case IsGraphQLRequest(rec):
		return CategoryGraphQL
	case strings.HasSuffix(rec.URL, "/token"):
		return CategoryToken
	case strings.HasSuffix(rec.URL, "/access"):
		return CategoryAccess
	default:
		return CategoryOther
	}
}
