package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

func item(id, header, body string) string {
	return `<div class="item"><div class="message" data-id="` + id + `">` +
		`<div class="message__header">` + header + `</div>` +
		`<div>` + body + `</div></div></div>`
}

func page(items ...string) string {
	return `<html><head><meta charset="utf-8"><title>chat</title></head><body><div class="wrap">` +
		strings.Join(items, "\n") + `</div></body></html>`
}

const (
	photoKludge = `<div class="kludges"><div class="attachment"><div class="attachment__description">Фотография</div>` +
		`<a class="attachment__link" href="https://example.com/p.jpg">https://example.com/p.jpg</a></div></div>`
	replyKludge = `<div class="kludges"><div class="attachment"><div class="attachment__description">1 прикреплённое сообщение</div></div></div>`
)

func TestExtractDocument_HeaderBodyAndAttachments(t *testing.T) {
	t.Parallel()

	doc := page(
		item("100", `<a href="https://vk.com/id1">Иван Петров</a>, 17 июн 2018 в 16:53:25`, "Привет!"+photoKludge),
		item("101", `Вы, 17 июн 2018 в 16:54:00`, "Ответ"+replyKludge),
		`<div class="item"><div class="service">no message here</div></div>`,
	)

	got, err := ExtractDocument(strings.NewReader(doc), ExtractOptions{Encoding: "utf-8"})
	require.NoError(t, err)

	want := []MessageRecord{
		{
			ID:           "100",
			Sender:       "Иван Петров",
			TimestampRaw: "17 июн 2018 в 16:53:25",
			Text:         "Привет!",
			Attachments:  []AttachmentRef{{Kind: "Фотография", Link: "https://example.com/p.jpg"}},
		},
		{
			ID:           "101",
			Sender:       "Вы",
			TimestampRaw: "Вы, 17 июн 2018 в 16:54:00",
			Text:         "Ответ",
			Attachments: []AttachmentRef{{
				Kind:        "1 прикреплённое сообщение",
				ReplyStatus: ReplyResolvedHeuristic,
				Reply: &ReplyRef{
					TargetID:     "100",
					TargetHeader: "Иван Петров, 17 июн 2018 в 16:53:25",
					TargetText:   "Привет!",
				},
			}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDocument_ReplyWithoutPredecessorIsUnresolved(t *testing.T) {
	t.Parallel()

	doc := page(
		item("7", `Вы, 1 янв 2020 в 10:00:00`, "пересылаю"+replyKludge),
		item("8", `Вы, 1 янв 2020 в 10:01:00`, "ещё"),
	)
	got, err := ExtractDocument(strings.NewReader(doc), ExtractOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0].Attachments, 1)

	att := got[0].Attachments[0]
	require.Equal(t, ReplyUnresolved, att.ReplyStatus)
	require.Nil(t, att.Reply)
	require.True(t, att.IsReply())
}

func TestExtractDocument_ReplySkipsBlocksWithSameOrMissingID(t *testing.T) {
	t.Parallel()

	doc := page(
		item("1", `Вы, 1 янв 2020 в 10:00:00`, "первое"),
		item("", `Вы, 1 янв 2020 в 10:00:30`, "без id"),
		item("2", `Вы, 1 янв 2020 в 10:01:00`, "второе"),
		item("3", `Вы, 1 янв 2020 в 10:02:00`, "цитата"+replyKludge),
	)
	got, err := ExtractDocument(strings.NewReader(doc), ExtractOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, "", got[1].ID)

	ref := got[3].Attachments[0].Reply
	require.NotNil(t, ref)
	require.Equal(t, "2", ref.TargetID)
	require.Equal(t, "второе", ref.TargetText)
}

func TestExtractDocument_DecodesWindows1251ByDefault(t *testing.T) {
	t.Parallel()

	doc := page(item("5", `<a href="#">Мария Иванова</a>, 2 фев 2019 в 09:00:00`, "Доброе утро"))
	encoded, err := charmap.Windows1251.NewEncoder().String(doc)
	require.NoError(t, err)

	got, err := ExtractDocument(strings.NewReader(encoded), ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Мария Иванова", got[0].Sender)
	require.Equal(t, "Доброе утро", got[0].Text)
	require.Equal(t, "2 фев 2019 в 09:00:00", got[0].TimestampRaw)
}

func TestExtractDocument_AutoEncodingHonoursMetaCharset(t *testing.T) {
	t.Parallel()

	doc := page(item("5", `Вы, 2 фев 2019 в 09:00:00`, "утф"))
	got, err := ExtractDocument(strings.NewReader(doc), ExtractOptions{Encoding: EncodingAuto})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "утф", got[0].Text)
}

func TestExtractDocument_UnknownEncoding(t *testing.T) {
	t.Parallel()

	_, err := ExtractDocument(strings.NewReader(page()), ExtractOptions{Encoding: "klingon-8"})
	var pe *DocumentParseError
	require.ErrorAs(t, err, &pe)
}

func TestExtractFile_MissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.html")
	_, err := ExtractFile(path, ExtractOptions{})
	var pe *DocumentParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, path, pe.Path)
}

func TestExtractDir_IsolatesBrokenDocuments(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(in, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("messages0.html", page(item("1", `Вы, 1 янв 2020 в 10:00:00`, "a"), item("2", `Вы, 1 янв 2020 в 10:00:01`, "b")))
	write("nested/messages50.html", page(item("3", `Вы, 1 янв 2020 в 10:00:02`, "c")))
	write("notes.txt", "ignored")
	// A dangling symlink cannot be opened, even as root.
	require.NoError(t, os.Symlink(filepath.Join(in, "missing-target"), filepath.Join(in, "broken.html")))

	opts := ExtractDirOptions{ExtractOptions: ExtractOptions{Encoding: "utf-8"}}
	res, err := ExtractDir(context.Background(), in, out, opts)
	require.NoError(t, err)
	require.Equal(t, 3, res.Documents)
	require.Equal(t, 2, res.Written)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 3, res.Records)
	require.Len(t, res.Failures, 1)
	require.Contains(t, res.Failures[0].Path, "broken.html")

	var recs []MessageRecord
	require.NoError(t, fileutils.ReadJSONFile(filepath.Join(out, "messages0.json"), &recs))
	require.Len(t, recs, 2)
	require.NoError(t, fileutils.ReadJSONFile(filepath.Join(out, "nested_messages50.json"), &recs))
	require.Len(t, recs, 1)

	// Existing outputs block a second run unless overwrite or resume is set.
	_, err = ExtractDir(context.Background(), in, out, opts)
	require.Error(t, err)

	opts.Resume = true
	res, err = ExtractDir(context.Background(), in, out, opts)
	require.NoError(t, err)
	require.Equal(t, 2, res.Resumed)
	require.Equal(t, 0, res.Written)
}

func TestExtractDir_CollidingOutputNames(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()
	for rel, body := range map[string]string{
		"a/b.html": "nested",
		"a_b.html": "flat",
		"z.html":   "last",
	} {
		p := filepath.Join(in, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(page(item("1", `Вы, 1 янв 2020 в 10:00:00`, body))), 0o644))
	}

	opts := ExtractDirOptions{ExtractOptions: ExtractOptions{Encoding: "utf-8"}}
	res, err := ExtractDir(context.Background(), in, out, opts)
	require.NoError(t, err)
	require.Equal(t, 3, res.Written)
	require.Equal(t, 0, res.Failed)

	texts := map[string]string{}
	for _, name := range []string{"a_b.json", "a_b.2.json", "z.json"} {
		var recs []MessageRecord
		require.NoError(t, fileutils.ReadJSONFile(filepath.Join(out, name), &recs), name)
		require.Len(t, recs, 1)
		texts[name] = recs[0].Text
	}
	require.Equal(t, map[string]string{"a_b.json": "nested", "a_b.2.json": "flat", "z.json": "last"}, texts)

	opts.Resume = true
	res, err = ExtractDir(context.Background(), in, out, opts)
	require.NoError(t, err)
	require.Equal(t, 3, res.Resumed)
	require.Equal(t, 0, res.Written)
}

func TestExtractDir_CopiesSourceModTime(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()
	src := filepath.Join(in, "chat.html")
	require.NoError(t, os.WriteFile(src, []byte(page(item("1", `Вы, 1 янв 2020 в 10:00:00`, "a"))), 0o644))
	old := time.Date(2019, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, old, old))

	_, err := ExtractDir(context.Background(), in, out, ExtractDirOptions{ExtractOptions: ExtractOptions{Encoding: "utf-8"}})
	require.NoError(t, err)

	st, err := os.Stat(filepath.Join(out, "chat.json"))
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(old), "mtime=%v, want %v", st.ModTime(), old)
}

func TestExtractDir_CancelledContext(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.html"), []byte(page()), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExtractDir(ctx, in, t.TempDir(), ExtractDirOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestShardOutputName(t *testing.T) {
	t.Parallel()

	root := filepath.FromSlash("/data/export")
	cases := map[string]string{
		"/data/export/messages12.html":      "messages12.json",
		"/data/export/dir one/messages.html": "dir_one_messages.json",
	}
	for src, want := range cases {
		if got := ShardOutputName(root, filepath.FromSlash(src)); got != want {
			t.Fatalf("ShardOutputName(%q)=%q, want %q", src, got, want)
		}
	}
}
