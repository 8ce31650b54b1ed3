// Package model defines the domain types for the deepexport CLI.
//
// All entities in this package are transient representations of
// repository objects. They are built by a repository.Session while the
// export walks the folder tree and are discarded once processed.
package model

import (
	"fmt"
	"strings"
)

// NodeType classifies a repository sysobject.
//
// Only folders and documents take part in the export. Every other
// sysobject subtype is reported as NodeOther and skipped with
// SkipNotADocument.
type NodeType string

const (
	// NodeFolder is a container object whose children are enumerated
	// and mirrored as a local directory.
	NodeFolder NodeType = "folder"

	// NodeDocument is a content-bearing object that may be exported to a file.
	NodeDocument NodeType = "document"

	// NodeOther is any sysobject that is neither a folder nor a document.
	NodeOther NodeType = "other"
)

// String returns the string representation of NodeType.
func (t NodeType) String() string {
	return string(t)
}

// IsValid checks whether the NodeType value is one of the predefined types.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeFolder, NodeDocument, NodeOther:
		return true
	default:
		return false
	}
}

// ParseNodeType converts a string to a NodeType.
// Returns an error if the string does not match any valid type.
func ParseNodeType(s string) (NodeType, error) {
	nt := NodeType(strings.ToLower(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("invalid node type: %q (valid: folder, document, other)", s)
	}
	return nt, nil
}

// Node is an opaque handle to one object in the source repository.
type Node struct {
	// ID is the stable repository object identifier.
	ID string `json:"id"`

	// Name is the logical object name. It may contain characters that
	// are hostile to filesystems; naming.Sanitize handles those.
	Name string `json:"name"`

	// Type tells the walker whether to recurse, export or skip.
	Type NodeType `json:"type"`

	// FolderPath is the primary repository path of a folder
	// (e.g. "/Finance/2019"). Empty for documents and other objects.
	FolderPath string `json:"folderPath,omitempty"`

	// ContentID references the content object holding the document's
	// primary content. Empty means the document has no content association.
	ContentID string `json:"contentId,omitempty"`

	// ContentSize is the full content size in bytes as recorded on the
	// document. Zero means there is no content stream.
	ContentSize int64 `json:"contentSize,omitempty"`

	// Format is the DOS extension of the document's content format,
	// without a leading dot (e.g. "pdf").
	Format string `json:"format,omitempty"`

	// VersionLabels lists the version labels of this version of the
	// document. The first entry is the implicit (numeric) version label.
	VersionLabels []string `json:"versionLabels,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.Type == NodeFolder
}

// IsDocument reports whether the node is a document.
func (n *Node) IsDocument() bool {
	return n.Type == NodeDocument
}

// ImplicitVersion returns the implicit version label, or "" when the
// node carries no version labels.
func (n *Node) ImplicitVersion() string {
	if len(n.VersionLabels) == 0 {
		return ""
	}
	return n.VersionLabels[0]
}

// String returns "name (id)", the form used in log lines.
func (n *Node) String() string {
	return fmt.Sprintf("%s (%s)", n.Name, n.ID)
}

// Content describes the content object associated with a document.
type Content struct {
	// ID is the content object identifier.
	ID string `json:"id"`

	// ParkedState is non-zero when the bytes live on a remote cache
	// server and are not retrievable from the repository directly.
	ParkedState int `json:"parkedState"`

	// Size is the content size in bytes.
	Size int64 `json:"size"`
}

// IsParked reports whether the content is parked on a remote cache server.
func (c *Content) IsParked() bool {
	return c.ParkedState != 0
}

// SkipReason explains why an object produced no exported file.
type SkipReason string

const (
	// SkipNoContentAssociation means the document has no content object reference.
	SkipNoContentAssociation SkipReason = "no-content-association"

	// SkipUnresolvableContent means the content reference does not
	// resolve to a content object.
	SkipUnresolvableContent SkipReason = "unresolvable-content-object"

	// SkipParkedContent means the content is parked on a remote cache server.
	SkipParkedContent SkipReason = "parked-content"

	// SkipNoContent means the document reports a zero content size.
	SkipNoContent SkipReason = "no-content"

	// SkipNotADocument means the sysobject is neither a folder nor a document.
	SkipNotADocument SkipReason = "not-a-document"
)

// String returns the string representation of SkipReason.
func (r SkipReason) String() string {
	return string(r)
}

// Message returns the human-readable text written to the run log.
func (r SkipReason) Message() string {
	switch r {
	case SkipNoContentAssociation:
		return "object has no associated content object"
	case SkipUnresolvableContent:
		return "cannot get associated content object"
	case SkipParkedContent:
		return "object is parked"
	case SkipNoContent:
		return "no content"
	case SkipNotADocument:
		return "not a document"
	default:
		return string(r)
	}
}

// Counters aggregates the outcome of one export run.
//
// Folders and Documents are the two counters the run reports. Documents
// counts export attempts: it is incremented before the content checks,
// so a skipped document is still counted. Exported counts files that
// were actually written.
type Counters struct {
	// Folders is the number of sub folders entered (the root is not counted).
	Folders int `json:"folders"`

	// Documents is the number of documents for which an export was attempted.
	Documents int `json:"documents"`

	// Exported is the number of files written successfully.
	Exported int `json:"exported"`

	// Skipped is the number of objects skipped for a SkipReason.
	Skipped int `json:"skipped"`

	// Failed is the number of documents whose content could not be written.
	Failed int `json:"failed"`

	// Bytes is the total number of bytes written.
	Bytes int64 `json:"bytes"`
}

// Add folds another set of counters into c.
func (c *Counters) Add(o Counters) {
	c.Folders += o.Folders
	c.Documents += o.Documents
	c.Exported += o.Exported
	c.Skipped += o.Skipped
	c.Failed += o.Failed
	c.Bytes += o.Bytes
}

// Totals holds the expected numbers reported before the export starts.
// They come from separate count queries and are diagnostic only.
type Totals struct {
	Folders   int `json:"folders"`
	Documents int `json:"documents"`
}
