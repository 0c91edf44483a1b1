package mailbox

import (
	"context"
	"fmt"
	"strconv"
)

// validateIDs checks that ids are non-empty positive message numbers.
func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return invalidArgument("at least one email id is required")
	}
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil || n == 0 {
			return invalidArgument("invalid email id %q", id)
		}
	}
	return nil
}

func listFolders(ctx context.Context, s *boundSession) ([]Folder, error) {
	entries, err := s.list(ctx)
	if err != nil {
		return nil, wrap(ErrFolder, "list_folders", "", nil, err)
	}
	return buildFolders(entries), nil
}

// moveMessages copies ids to destination, marks them deleted and expunges
// the source, each step as a single command. The sequence is not atomic: a
// failure after the copy leaves the messages in both folders.
func moveMessages(ctx context.Context, s *boundSession, ids []string, source, destination string) error {
	if err := s.copy(ctx, ids, destination); err != nil {
		return wrap(ErrOperation, "move", source, ids, fmt.Errorf("copy to %s: %w", destination, err))
	}
	if err := s.storeDeleted(ctx, ids); err != nil {
		return wrap(ErrOperation, "move", source, ids,
			fmt.Errorf("copied to %s but marking originals deleted failed: %w", destination, err))
	}
	if err := s.expunge(ctx); err != nil {
		return wrap(ErrOperation, "move", source, ids,
			fmt.Errorf("copied to %s but expunge failed: %w", destination, err))
	}
	return nil
}

// expungeMessages removes ids from the selected folder for good.
func expungeMessages(ctx context.Context, s *boundSession, ids []string, folder string) error {
	if err := s.storeDeleted(ctx, ids); err != nil {
		return wrap(ErrOperation, "delete", folder, ids, fmt.Errorf("mark deleted: %w", err))
	}
	if err := s.expunge(ctx); err != nil {
		return wrap(ErrOperation, "delete", folder, ids, fmt.Errorf("expunge: %w", err))
	}
	return nil
}
