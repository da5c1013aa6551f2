package source

import (
	"net/url"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

var endpoints = map[string]string{
	models.TypeArticle:      "/blogs/:blog/articles",
	models.TypeBlog:         "/blogs",
	models.TypeCollection:   "/collections",
	models.TypeProduct:      "/products",
	models.TypePage:         "/pages?resolve=1",
	models.TypeMenu:         "/menus",
	models.TypeTranslation:  "/translations",
	models.TypeChannel:      "/channels",
	models.TypeChannelEntry: "/channels/:channel/entries",
}

// MapEndpoint returns the API path for a type tag. Unknown tags are channel
// entry types. ":name" segments are replaced from vars and query is appended.
func MapEndpoint(typeTag string, vars map[string]string, query url.Values) string {
	endpoint, ok := endpoints[typeTag]
	if !ok {
		endpoint = endpoints[models.TypeChannelEntry]
	}

	for key, value := range vars {
		endpoint = strings.ReplaceAll(endpoint, ":"+key, url.PathEscape(value))
	}

	if len(query) > 0 {
		return withQuery(endpoint, query)
	}
	return endpoint
}

func withQuery(endpoint string, query url.Values) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + query.Encode()
}

// ChannelFilter builds the channel query: included slugs win over excluded ones.
func ChannelFilter(include, exclude []string) url.Values {
	query := url.Values{}
	switch {
	case len(include) > 0:
		query.Set("slug.in", strings.Join(include, ","))
	case len(exclude) > 0:
		query.Set("slug.nin", strings.Join(exclude, ","))
	}
	return query
}
