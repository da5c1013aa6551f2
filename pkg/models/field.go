package models

// TypeKey is the reserved key that marks a tagged field.
const TypeKey = "__type"

// Tag values carried under TypeKey.
const (
	TagReference = "Reference"
	TagRelation  = "Relation"
	TagFile      = "File"
	TagGallery   = "Gallery"
)

// DefaultAssetVersion is used when a file carries no version of its own.
const DefaultAssetVersion = "original"

// Field is a record value decoded once into one of Reference, Relation,
// File, Gallery or Plain.
type Field interface {
	isField()
}

// Reference points at a single foreign record.
type Reference struct {
	ClassName string
	ID        string
}

// Relation points at an ordered list of foreign records.
type Relation struct {
	ClassName string
	IDs       []string
}

// File is an attachment. Attrs is the raw object; resolved asset ids are written into it.
type File struct {
	URL      string
	Filename string
	Version  string
	Attrs    map[string]any
}

// Gallery is a multi-asset field. It is passed through untouched.
type Gallery struct {
	Attrs map[string]any
}

// Plain is any value without a type tag.
type Plain struct {
	Value any
}

func (Reference) isField() {}
func (Relation) isField()  {}
func (File) isField()      {}
func (Gallery) isField()   {}
func (Plain) isField()     {}

// DecodeField classifies a raw record value.
func DecodeField(v any) Field {
	obj, ok := v.(map[string]any)
	if !ok {
		return Plain{Value: v}
	}
	tag, _ := obj[TypeKey].(string)
	switch tag {
	case TagReference:
		return Reference{
			ClassName: StringValue(obj["className"]),
			ID:        StringValue(obj["id"]),
		}
	case TagRelation:
		rel := Relation{ClassName: StringValue(obj["className"])}
		objects, _ := obj["objects"].([]any)
		for _, o := range objects {
			if m, ok := o.(map[string]any); ok {
				rel.IDs = append(rel.IDs, StringValue(m["id"]))
			}
		}
		return rel
	case TagFile:
		return DecodeFile(obj)
	case TagGallery:
		return Gallery{Attrs: obj}
	default:
		return Plain{Value: v}
	}
}

// DecodeFile reads the attachment attributes of a file-like object, tagged or not.
func DecodeFile(obj map[string]any) File {
	version := StringValue(obj["version"])
	if version == "" {
		version = DefaultAssetVersion
	}
	return File{
		URL:      StringValue(obj["url"]),
		Filename: StringValue(obj["filename"]),
		Version:  version,
		Attrs:    obj,
	}
}

// Request builds the asset request for this file.
func (f File) Request() AssetRequest {
	return AssetRequest{URL: f.URL, Filename: f.Filename, Version: f.Version}
}
