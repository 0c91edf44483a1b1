package mailbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(store *fakeStore, opts Options) (*Client, *fakeSender) {
	sender := &fakeSender{}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewClient(&fakeProvider{store: store}, sender, opts), sender
}

func mustCriteria(t *testing.T, folder string, opts ...CriteriaOption) SearchCriteria {
	t.Helper()
	c, err := NewSearchCriteria(folder, opts...)
	require.NoError(t, err)
	return c
}

func summaryIDs(summaries []Summary) []string {
	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ID
	}
	return ids
}

func TestClient_Search_DefaultNewestFirst(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	client, _ := newTestClient(store, Options{})

	got, err := client.Search(context.Background(), mustCriteria(t, ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, summaryIDs(got))
	assert.Equal(t, "Message 5", got[0].Subject)
	assert.Equal(t, "sender5@example.com", got[0].From)
	assert.Equal(t, []string{queryAll}, store.searches)
	assert.Empty(t, store.partials, "first page never uses PARTIAL")
	assert.Equal(t, store.opens, store.closes)
}

func TestClient_Search_ExtendedPaging(t *testing.T) {
	tests := []struct {
		name       string
		direction  Direction
		wantWindow string
		wantIDs    []string
	}{
		{"oldest", DirectionOldest, "3:4", []string{"3", "4"}},
		{"newest", DirectionNewest, "-3:-4", []string{"3", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.seedDays("2024-01-01", 5)
			store.caps = []string{"IMAP4rev1", "ESEARCH", "PARTIAL"}
			rec := &fakeRecorder{}
			client, _ := newTestClient(store, Options{Recorder: rec})

			got, err := client.Search(context.Background(), mustCriteria(t, "inbox",
				WithStartFrom(2), WithMaxResults(2), WithDirection(tt.direction)))
			require.NoError(t, err)

			assert.Equal(t, tt.wantIDs, summaryIDs(got))
			assert.Equal(t, []string{tt.wantWindow}, store.partials)
			assert.Empty(t, store.searches)
			assert.Equal(t, []strategyEvent{{StrategyExtended, "served"}}, rec.strategies)
		})
	}
}

func TestClient_Search_StrategiesAgree(t *testing.T) {
	for _, dir := range []Direction{DirectionNewest, DirectionOldest} {
		for start := 0; start <= 12; start += 3 {
			withExt := newFakeStore()
			withExt.seedDays("2024-01-01", 10)
			withExt.caps = []string{"ESEARCH", "PARTIAL"}
			plain := newFakeStore()
			plain.seedDays("2024-01-01", 10)

			criteria := mustCriteria(t, "", WithStartFrom(start), WithMaxResults(4), WithDirection(dir))
			a, _ := newTestClient(withExt, Options{})
			b, _ := newTestClient(plain, Options{})

			gotA, err := a.Search(context.Background(), criteria)
			require.NoError(t, err)
			gotB, err := b.Search(context.Background(), criteria)
			require.NoError(t, err)

			assert.Equal(t, summaryIDs(gotB), summaryIDs(gotA), "direction=%s start=%d", dir, start)
		}
	}
}

func TestClient_Search_ESearchWithoutPartial(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	store.caps = []string{"IMAP4rev1", "ESEARCH"}
	rec := &fakeRecorder{}
	client, _ := newTestClient(store, Options{Recorder: rec})

	got, err := client.Search(context.Background(), mustCriteria(t, "",
		WithStartFrom(1), WithMaxResults(2), WithDirection(DirectionOldest)))
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "3"}, summaryIDs(got))
	assert.Empty(t, store.partials, "PARTIAL sent to a server that lacks it")
	assert.Equal(t, []string{queryAll}, store.searches)
	assert.Equal(t, []strategyEvent{{StrategyFallback, "served"}}, rec.strategies)
}

func TestClient_Search_FallbackOnPartialError(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	store.caps = []string{"ESEARCH", "PARTIAL"}
	store.partialErr = errors.New("BAD unknown return option")
	rec := &fakeRecorder{}
	client, _ := newTestClient(store, Options{Recorder: rec})

	got, err := client.Search(context.Background(), mustCriteria(t, "",
		WithStartFrom(1), WithMaxResults(2), WithDirection(DirectionOldest)))
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "3"}, summaryIDs(got))
	assert.Len(t, store.partials, 1)
	assert.Equal(t, []string{queryAll}, store.searches)
	assert.Equal(t, []strategyEvent{
		{StrategyExtended, "failed"},
		{StrategyFallback, "served"},
	}, rec.strategies)
}

func TestClient_Search_PastEnd(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 3)
	client, _ := newTestClient(store, Options{})

	got, err := client.Search(context.Background(), mustCriteria(t, "", WithStartFrom(10)))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClient_Search_Filters(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	client, _ := newTestClient(store, Options{})
	ctx := context.Background()

	got, err := client.Search(ctx, mustCriteria(t, "", WithStartDate("2024-01-03"), WithEndDate("2024-01-03")))
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, summaryIDs(got))

	got, err = client.Search(ctx, mustCriteria(t, "", WithStartDate("2024-01-02"), WithEndDate("2024-01-04")))
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2"}, summaryIDs(got))

	got, err = client.Search(ctx, mustCriteria(t, "", WithSubject("message 2")))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, summaryIDs(got))

	got, err = client.Search(ctx, mustCriteria(t, "", WithSender("sender4@"), WithBody("message 4")))
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, summaryIDs(got))

	// Reversed bounds match nothing.
	got, err = client.Search(ctx, mustCriteria(t, "", WithStartDate("2024-01-04"), WithEndDate("2024-01-02")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Search_DefaultWindow(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	now := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	client, _ := newTestClient(store, Options{
		DefaultWindowDays: 2,
		Now:               func() time.Time { return now },
	})

	got, err := client.Search(context.Background(), mustCriteria(t, ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"5", "4", "3"}, summaryIDs(got))
	assert.Equal(t, []string{"SINCE 03-Jan-2024"}, store.searches)
}

func TestClient_Search_SentFolder(t *testing.T) {
	store := newFakeStore()
	store.folders["[Gmail]/Sent Mail"] = []fakeMessage{{
		date: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), from: "me@example.com", subject: "Report",
	}}
	client, _ := newTestClient(store, Options{})

	got, err := client.Search(context.Background(), mustCriteria(t, "sent"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Report", got[0].Subject)
}

func TestClient_Search_Errors(t *testing.T) {
	t.Run("unknown folder", func(t *testing.T) {
		store := newFakeStore()
		client, _ := newTestClient(store, Options{})

		_, err := client.Search(context.Background(), mustCriteria(t, "Nope"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFolder)
		assert.Equal(t, 1, store.closes, "session is torn down on failure")
	})

	t.Run("slow connect", func(t *testing.T) {
		store := newFakeStore()
		store.openDelay = 200 * time.Millisecond
		client, _ := newTestClient(store, Options{Timeout: 20 * time.Millisecond})

		_, err := client.ListFolders(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)

		assert.Eventually(t, func() bool {
			opens, closes := store.sessions()
			return opens == 1 && closes == 1
		}, 2*time.Second, 10*time.Millisecond, "late session must be closed")
	})

	t.Run("connect failure", func(t *testing.T) {
		store := newFakeStore()
		store.openErr = errors.New("authentication failed")
		client, _ := newTestClient(store, Options{})

		_, err := client.Search(context.Background(), mustCriteria(t, ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Contains(t, err.Error(), "authentication failed")
	})
}

func TestClient_GetContent(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 3)
	client, _ := newTestClient(store, Options{})
	ctx := context.Background()

	content, err := client.GetContent(ctx, "2", "")
	require.NoError(t, err)
	assert.Equal(t, "2", content.ID)
	assert.Equal(t, "Message 2", content.Subject)
	assert.Equal(t, "me@example.com", content.To)
	assert.Contains(t, content.Content, "Body of message 2")

	_, err = client.GetContent(ctx, "99", "inbox")
	assert.ErrorIs(t, err, ErrNotFound)

	opens := store.opens
	_, err = client.GetContent(ctx, "abc", "inbox")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, opens, store.opens, "invalid ids never reach the server")
}

func TestClient_Send(t *testing.T) {
	store := newFakeStore()
	client, sender := newTestClient(store, Options{})
	ctx := context.Background()

	msg := Message{To: []string{"a@example.com"}, Cc: []string{"b@example.org"}, Subject: "Hi", Content: "Hello"}
	require.NoError(t, client.Send(ctx, msg))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.org"}, sender.sent[0].Recipients())

	err := client.Send(ctx, Message{To: []string{"a@example.com"}, Subject: " ", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	sender.err = errors.New("550 rejected")
	err = client.Send(ctx, msg)
	assert.ErrorIs(t, err, ErrOperation)
	assert.Contains(t, err.Error(), "550 rejected")

	noSender := NewClient(&fakeProvider{store: store}, nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.ErrorIs(t, noSender.Send(ctx, msg), ErrOperation)
}

func TestClient_Send_Timeout(t *testing.T) {
	client, sender := newTestClient(newFakeStore(), Options{Timeout: 50 * time.Millisecond})
	sender.block = true

	err := client.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Hi", Content: "Hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.True(t, sender.returned, "send was abandoned while still running")
}

func TestBoundSession_Count(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 3)
	ctx := context.Background()
	s, err := (&fakeProvider{store: store}).Open(ctx)
	require.NoError(t, err)
	b := &boundSession{s: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	defer b.close()

	_, err = b.count(ctx, queryAll)
	assert.Error(t, err, "count before select")

	require.NoError(t, b.selectFolder(ctx, inboxName))
	n, err := b.count(ctx, queryAll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.count(ctx, "ON 02-Jan-2024")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClient_CountDaily(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 5)
	store.folders["INBOX"] = append(store.folders["INBOX"], fakeMessage{
		date: time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC), subject: "extra",
	})
	client, _ := newTestClient(store, Options{})

	counts, err := client.CountDaily(context.Background(), "2024-01-02", "2024-01-04")
	require.NoError(t, err)
	assert.Equal(t, DailyCounts{
		{Date: "2024-01-02", Count: 1},
		{Date: "2024-01-03", Count: 2},
		{Date: "2024-01-04", Count: 1},
	}, counts)

	b, err := counts.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"2024-01-02":1,"2024-01-03":2,"2024-01-04":1}`, string(b))
	assert.Equal(t, `{"2024-01-02":1,"2024-01-03":2,"2024-01-04":1}`, string(b))
}

func TestClient_CountDaily_Validation(t *testing.T) {
	client, _ := newTestClient(newFakeStore(), Options{})
	ctx := context.Background()

	_, err := client.CountDaily(ctx, "2024-01-05", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = client.CountDaily(ctx, "01/05/2024", "2024-01-06")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClient_CountDaily_TimeoutRecordsSentinel(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 3)
	store.block["ON 02-Jan-2024"] = true
	defer close(store.release)
	client, _ := newTestClient(store, Options{Timeout: 100 * time.Millisecond})

	counts, err := client.CountDaily(context.Background(), "2024-01-01", "2024-01-03")
	require.NoError(t, err)

	assert.Equal(t, DailyCounts{
		{Date: "2024-01-01", Count: 1},
		{Date: "2024-01-02", Count: TimedOut},
		{Date: "2024-01-03", Count: 1},
	}, counts)
	assert.Equal(t, 2, store.opens, "session is replaced after a timeout")
	assert.Equal(t, 2, store.closes)
}

func TestClient_ListFolders(t *testing.T) {
	client, _ := newTestClient(newFakeStore(), Options{})

	folders, err := client.ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 4)

	assert.Equal(t, "INBOX", folders[0].Name)
	assert.Equal(t, "Inbox", folders[0].DisplayName)
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.DisplayName
	}
	assert.Equal(t, []string{"Inbox", "Archive", "Sent Mail", "Trash"}, names)
	assert.Equal(t, `\HasNoChildren \Trash`, folders[3].Attributes)
}

func TestClient_Move(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 4)
	client, _ := newTestClient(store, Options{})
	ctx := context.Background()

	require.NoError(t, client.Move(ctx, []string{"1", "3"}, "inbox", "Archive"))
	assert.Equal(t, 2, store.count("INBOX"))
	assert.Equal(t, 2, store.count("Archive"))
	assert.Equal(t, "Message 2", store.folders["INBOX"][0].subject)

	// Sequence numbers are renumbered after the expunge.
	_, err := client.GetContent(ctx, "3", "inbox")
	assert.ErrorIs(t, err, ErrNotFound)
	content, err := client.GetContent(ctx, "1", "inbox")
	require.NoError(t, err)
	assert.Equal(t, "Message 2", content.Subject)
	content, err = client.GetContent(ctx, "1", "Archive")
	require.NoError(t, err)
	assert.Equal(t, "Message 1", content.Subject)
	content, err = client.GetContent(ctx, "2", "Archive")
	require.NoError(t, err)
	assert.Equal(t, "Message 3", content.Subject)

	err = client.Move(ctx, []string{"1"}, "Archive", `"Archive"`)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = client.Move(ctx, []string{"1"}, "inbox", "Missing")
	assert.ErrorIs(t, err, ErrFolder)
	assert.Equal(t, 2, store.count("INBOX"))

	err = client.Move(ctx, nil, "inbox", "Archive")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClient_Move_PartialFailureKeepsCopies(t *testing.T) {
	store := newFakeStore()
	store.seedDays("2024-01-01", 2)
	store.storeErr = errors.New("NO read-only")
	client, _ := newTestClient(store, Options{})

	err := client.Move(context.Background(), []string{"1"}, "inbox", "Archive")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperation)
	assert.Contains(t, err.Error(), "copied to Archive")
	assert.Equal(t, 1, store.count("Archive"))
	assert.Equal(t, 2, store.count("INBOX"))
}

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("to trash", func(t *testing.T) {
		store := newFakeStore()
		store.seedDays("2024-01-01", 3)
		client, _ := newTestClient(store, Options{})

		require.NoError(t, client.Delete(ctx, []string{"2"}, "", false))
		assert.Equal(t, 2, store.count("INBOX"))
		assert.Equal(t, 1, store.count("[Gmail]/Trash"))

		_, err := client.GetContent(ctx, "3", "inbox")
		assert.ErrorIs(t, err, ErrNotFound)
		content, err := client.GetContent(ctx, "1", "[Gmail]/Trash")
		require.NoError(t, err)
		assert.Equal(t, "Message 2", content.Subject)
	})

	t.Run("configured trash", func(t *testing.T) {
		store := newFakeStore()
		store.seedDays("2024-01-01", 3)
		client, _ := newTestClient(store, Options{Folders: FolderNames{Trash: "Archive"}})

		require.NoError(t, client.Delete(ctx, []string{"2"}, "", false))
		assert.Equal(t, 1, store.count("Archive"))
		assert.Equal(t, 0, store.count("[Gmail]/Trash"))
	})

	t.Run("permanent", func(t *testing.T) {
		store := newFakeStore()
		store.seedDays("2024-01-01", 3)
		client, _ := newTestClient(store, Options{})

		require.NoError(t, client.Delete(ctx, []string{"1", "2"}, "inbox", true))
		assert.Equal(t, 1, store.count("INBOX"))
		assert.Equal(t, 0, store.count("[Gmail]/Trash"))

		for _, folder := range []string{"inbox", "[Gmail]/Trash", "Archive"} {
			_, err := client.GetContent(ctx, "2", folder)
			assert.ErrorIs(t, err, ErrNotFound, folder)
		}
		_, err := client.GetContent(ctx, "1", "[Gmail]/Trash")
		assert.ErrorIs(t, err, ErrNotFound)
		content, err := client.GetContent(ctx, "1", "inbox")
		require.NoError(t, err)
		assert.Equal(t, "Message 3", content.Subject, "only the third message survives")
	})

	t.Run("already in trash", func(t *testing.T) {
		store := newFakeStore()
		store.folders["[Gmail]/Trash"] = []fakeMessage{{subject: "old"}}
		client, _ := newTestClient(store, Options{})

		err := client.Delete(ctx, []string{"1"}, "[Gmail]/Trash", false)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, 1, store.count("[Gmail]/Trash"))
	})
}

func TestClient_RecordsOperations(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	client, _ := newTestClient(store, Options{Recorder: rec})
	ctx := context.Background()

	_, _ = client.ListFolders(ctx)
	_, _ = client.Search(ctx, mustCriteria(t, "Missing"))

	assert.Equal(t, []string{"list_folders:success", "search:error"}, rec.operations)
}
