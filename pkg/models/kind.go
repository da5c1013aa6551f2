package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TypePrefix namespaces every node type and cache key produced by fern.
const TypePrefix = "Nimbu"

// Type tags of the fixed entity kinds. Channel entries use a dynamic tag, see MapNodeType.
const (
	TypeArticle        = "Article"
	TypeBlog           = "Blog"
	TypeChannel        = "Channel"
	TypeChannelEntry   = "ChannelEntry"
	TypeCollection     = "Collection"
	TypeMenu           = "Menu"
	TypePage           = "Page"
	TypeProduct        = "Product"
	TypeProductVariant = "ProductVariant"
	TypeSite           = "Site"
	TypeTranslation    = "Translation"
	TypeFile           = "File"
)

// Group is a top-level family of collections that can be toggled on or off.
type Group string

const (
	GroupContent  Group = "content"
	GroupShop     Group = "shop"
	GroupChannels Group = "channels"
)

// AllGroups lists every group in declaration order.
var AllGroups = []Group{GroupContent, GroupShop, GroupChannels}

var classNameToType = map[string]string{
	"pages":      TypePage,
	"products":   TypeProduct,
	"navigation": TypeMenu,
}

// MapNodeType maps an upstream class name to a node type tag. Unknown class
// names are channel slugs and map to "<slug>_ChannelEntry".
func MapNodeType(className string) string {
	if t, ok := classNameToType[className]; ok {
		return t
	}
	return className + "_" + TypeChannelEntry
}

// TypeName returns the full node type name for a type tag, e.g. "NimbuPage".
func TypeName(typeTag string) string {
	return TypePrefix + upperFirst(typeTag)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// ParseGroups converts configured group names, ignoring blanks and unknown names.
func ParseGroups(names []string) []Group {
	groups := make([]Group, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, g := range AllGroups {
			if string(g) == name {
				groups = append(groups, g)
			}
		}
	}
	return groups
}
