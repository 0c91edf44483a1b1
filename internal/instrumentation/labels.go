package instrumentation

import "strings"

// Label values shared by metrics, spans and audit records.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OutcomeServed = "served"
	OutcomeFailed = "failed"

	ServiceIMAP        = "imap"
	ServiceSMTP        = "smtp"
	ServiceCollections = "collections"
)

// Mailbox operations. Each names one session against the server.
const (
	OperationSearch      = "search"
	OperationGetContent  = "get_content"
	OperationSend        = "send"
	OperationCountDaily  = "count_daily"
	OperationListFolders = "list_folders"
	OperationMove        = "move"
	OperationDelete      = "delete"
)

// Folder classes. Raw folder names are user-defined, so metrics carry one
// of these unless detailed labels are enabled.
const (
	FolderClassNone  = "none"
	FolderClassInbox = "inbox"
	FolderClassSent  = "sent"
	FolderClassTrash = "trash"
	FolderClassOther = "other"
)

// FolderClass classifies a folder by its last path segment, so
// "[Gmail]/Sent Mail" and "INBOX.Sent" are both FolderClassSent.
func FolderClass(folder string) string {
	leaf := strings.ToLower(folder)
	if i := strings.LastIndexAny(leaf, "/."); i >= 0 {
		leaf = leaf[i+1:]
	}
	switch {
	case leaf == "" || leaf == "inbox":
		return FolderClassInbox
	case strings.HasPrefix(leaf, "sent"):
		return FolderClassSent
	case leaf == "trash", leaf == "bin", strings.HasPrefix(leaf, "deleted"):
		return FolderClassTrash
	default:
		return FolderClassOther
	}
}
