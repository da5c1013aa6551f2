package models

// AssetRequest names a remote file to materialize.
type AssetRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Version  string `json:"version"`
}

// ParentKey is the deterministic key a materialized asset is identified by.
func (r AssetRequest) ParentKey() string {
	return r.Filename + "-" + r.Version
}

// AssetHandle is the local representation of a downloaded file.
type AssetHandle struct {
	ID         string `json:"id"`
	ParentID   string `json:"parent_id"`
	URL        string `json:"url"`
	Digest     string `json:"digest"`
	BaseName   string `json:"base_name"`
	Extension  string `json:"extension"`
	Size       int64  `json:"size"`
	LocalPath  string `json:"local_path"`
	PublicPath string `json:"public_path"`
}

// Node converts the handle into a File node for the graph sink.
func (h *AssetHandle) Node() *Node {
	return &Node{
		ID:            h.ID,
		Type:          TypeName(TypeFile),
		ContentDigest: h.Digest,
		Fields: map[string]any{
			"parent":       h.ParentID,
			"url":          h.URL,
			"base":         h.BaseName,
			"extension":    h.Extension,
			"size":         h.Size,
			"absolutePath": h.LocalPath,
			"publicURL":    h.PublicPath,
		},
	}
}
