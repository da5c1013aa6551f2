// Package nodeid derives stable node identifiers from a type tag and an
// upstream id.
package nodeid

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// namespace scopes every generated id to fern.
var namespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("github.com/Ramsey-B/fern"))

// For returns the node id for (typeTag, externalID). The type tag is length
// prefixed so no combination of tag and id can produce another pair's input.
func For(typeTag, externalID string) string {
	name := models.TypePrefix + "__" + strconv.Itoa(len(typeTag)) + ":" + typeTag + "__" + externalID
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// ForAll maps For over a list of external ids, preserving order.
func ForAll(typeTag string, externalIDs []string) []string {
	ids := make([]string, len(externalIDs))
	for i, id := range externalIDs {
		ids[i] = For(typeTag, id)
	}
	return ids
}
