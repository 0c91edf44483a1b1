package mailbox

import (
	"sort"
	"strings"
)

const (
	inboxName = "INBOX"

	// Gmail defaults, overridable through FolderNames.
	DefaultSentFolder  = "[Gmail]/Sent Mail"
	DefaultTrashFolder = "[Gmail]/Trash"

	attrTrash = `\Trash`
)

// vendorPrefixes are stripped from display names only.
var vendorPrefixes = []string{"[Gmail]/", "[Google Mail]/"}

// trashNames are matched against display names when no folder carries the
// \Trash special-use attribute.
var trashNames = []string{"Trash", "Deleted Messages", "Deleted Items", "Bin"}

// Folder describes a selectable folder.
type Folder struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Attributes  string `json:"attributes"`
	Delimiter   string `json:"delimiter,omitempty"`
}

// FolderNames maps the logical folder names to server names.
type FolderNames struct {
	Sent  string
	Trash string
}

// Resolve maps a logical folder name to the canonical server name.
// "inbox" and "sent" are translated, anything else is used verbatim with
// surrounding quotes removed; the wire encoding quotes it again.
func (n FolderNames) Resolve(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", FolderInbox:
		return inboxName
	case FolderSent:
		if n.Sent != "" {
			return n.Sent
		}
		return DefaultSentFolder
	}
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = strings.ReplaceAll(name[1:len(name)-1], `\"`, `"`)
	}
	return name
}

// DisplayName strips vendor prefixes from a canonical folder name.
func DisplayName(name string) string {
	for _, prefix := range vendorPrefixes {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	if strings.EqualFold(name, inboxName) {
		return "Inbox"
	}
	return name
}

// buildFolders converts LIST entries into sorted descriptors: the inbox
// first, then by display name ignoring case.
func buildFolders(entries []MailboxEntry) []Folder {
	folders := make([]Folder, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		folders = append(folders, Folder{
			Name:        e.Name,
			DisplayName: DisplayName(e.Name),
			Attributes:  strings.Join(e.Attributes, " "),
			Delimiter:   e.Delimiter,
		})
	}
	sort.SliceStable(folders, func(i, j int) bool {
		iInbox := strings.EqualFold(folders[i].Name, inboxName)
		jInbox := strings.EqualFold(folders[j].Name, inboxName)
		if iInbox != jInbox {
			return iInbox
		}
		return strings.ToLower(folders[i].DisplayName) < strings.ToLower(folders[j].DisplayName)
	})
	return folders
}

// findFolder reports whether name is listed exactly.
func findFolder(folders []Folder, name string) bool {
	for _, f := range folders {
		if f.Name == name {
			return true
		}
	}
	return false
}

// resolveTrash picks the deleted-items folder. A configured name wins; else
// a folder carrying \Trash, then a well-known display name, then the Gmail
// default.
func resolveTrash(folders []Folder, configured string) string {
	if configured != "" {
		return configured
	}
	for _, f := range folders {
		for _, attr := range strings.Fields(f.Attributes) {
			if strings.EqualFold(attr, attrTrash) {
				return f.Name
			}
		}
	}
	for _, candidate := range trashNames {
		for _, f := range folders {
			if strings.EqualFold(f.DisplayName, candidate) {
				return f.Name
			}
		}
	}
	return DefaultTrashFolder
}
