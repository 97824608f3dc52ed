package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func Test_Blobs(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "t1/doc/invoice.pdf", []byte("%PDF"), "application/pdf"))

	data, err := s.Download(ctx, "t1/doc/invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF"), data)

	require.NoError(t, s.Delete(ctx, "t1/doc/invoice.pdf"))
	require.NoError(t, s.Delete(ctx, "t1/doc/invoice.pdf"))

	_, err = s.Download(ctx, "t1/doc/invoice.pdf")
	require.Error(t, err)
}

func Test_Blobs_InvalidKeys(t *testing.T) {
	s := New(t.TempDir())

	for _, key := range []string{"", "../etc/passwd", "a//b", "a/./b", "a/"} {
		t.Run(key, func(t *testing.T) {
			err := s.Upload(context.Background(), key, []byte("x"), "")
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func Test_Documents(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	_, err := s.Get(ctx, "t1", "missing")
	require.ErrorIs(t, err, docanalysis.ErrDocumentNotFound)

	total := decimal.RequireFromString("42.50")
	doc := &docanalysis.Document{
		ID:         "doc-1",
		TenantID:   "t1",
		Status:     docanalysis.StatusAnalyzed,
		Total:      &total,
		Currency:   "EUR",
		Tags:       []docanalysis.Tag{{ID: "tag-1", Name: "utilities"}},
		Autofilled: []string{docanalysis.FieldTotal},
	}
	require.NoError(t, s.Save(ctx, doc))

	// A fresh store on the same directory sees the document
	got, err := New(dir).Get(ctx, "t1", "doc-1")
	require.NoError(t, err)
	require.True(t, total.Equal(*got.Total))
	require.Equal(t, "EUR", got.Currency)
	require.Equal(t, doc.Tags, got.Tags)
	require.Equal(t, doc.Autofilled, got.Autofilled)

	_, err = s.Get(ctx, "t2", "doc-1")
	require.ErrorIs(t, err, docanalysis.ErrDocumentNotFound)
}

func Test_List(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, &docanalysis.Document{
			ID:        id,
			TenantID:  "t1",
			UpdatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Save(ctx, &docanalysis.Document{ID: "x", TenantID: "t10"}))

	docs, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, "c", docs[0].ID)
	require.Equal(t, "a", docs[2].ID)

	docs, err = s.List(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func Test_Import(t *testing.T) {
	c := clock.NewMock()
	s := New(t.TempDir(), WithClock(c))
	ctx := context.Background()

	doc, err := s.Import(ctx, "t1", "/home/user/scans/receipt 1.pdf", "application/pdf", []byte("scan"))
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Equal(t, "receipt 1.pdf", doc.FileName)
	require.Equal(t, docanalysis.StatusNew, doc.Status)
	require.Equal(t, c.Now(), doc.UpdatedAt)

	data, err := s.Download(ctx, doc.FileKey)
	require.NoError(t, err)
	require.Equal(t, []byte("scan"), data)

	stored, err := s.Get(ctx, "t1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.FileKey, stored.FileKey)
}

func Test_FindOrCreate(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	tags, err := s.FindOrCreate(ctx, "t1", []string{"Utilities", " ", "utilities", "Travel/Hotels"})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, "Utilities", tags[0].Name)
	require.Equal(t, "Travel/Hotels", tags[1].Name)

	again, err := s.FindOrCreate(ctx, "t1", []string{"UTILITIES"})
	require.NoError(t, err)
	require.Equal(t, tags[0], again[0])

	other, err := s.FindOrCreate(ctx, "t2", []string{"Utilities"})
	require.NoError(t, err)
	require.NotEqual(t, tags[0].ID, other[0].ID)
}

func Test_FindOrCreate_Concurrent(t *testing.T) {
	s := New(t.TempDir())

	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range ids {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			tags, err := s.FindOrCreate(context.Background(), "t1", []string{"utilities"})
			require.NoError(t, err)
			ids[i] = tags[0].ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}
