package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

const (
	// DefaultSelfMarker is the sender the exporter uses for the archive owner's own messages.
	DefaultSelfMarker = "Вы"

	classItem        = "item"
	classMessage     = "message"
	classHeader      = "message__header"
	classKludges     = "kludges"
	classAttachment  = "attachment"
	classDescription = "attachment__description"
	classLink        = "attachment__link"
)

// DefaultReplyPhrases are the attachment descriptions that denote a quoted or forwarded message.
var DefaultReplyPhrases = []string{
	"прикреплённое сообщение",
	"прикрепленное сообщение",
	"пересланное сообщение",
}

type ExtractOptions struct {
	// Encoding is a WHATWG charset label, "auto", or empty for windows-1251.
	Encoding string
	// SelfMarker is attributed to messages whose header carries no sender link.
	SelfMarker string
	// ReplyPhrases override DefaultReplyPhrases when non-empty.
	ReplyPhrases []string
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if strings.TrimSpace(o.SelfMarker) == "" {
		o.SelfMarker = DefaultSelfMarker
	}
	if len(o.ReplyPhrases) == 0 {
		o.ReplyPhrases = DefaultReplyPhrases
	}
	return o
}

// DocumentParseError reports a shard that could not be read or parsed.
type DocumentParseError struct {
	Path string
	Err  error
}

func (e *DocumentParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse document: %v", e.Err)
	}
	return fmt.Sprintf("parse document %s: %v", e.Path, e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// block is one message container in document order.
type block struct {
	node    *html.Node
	id      string
	header  *html.Node
	hdrText string
	body    string
}

// ExtractDocument parses one archive shard and returns its records in document order.
func ExtractDocument(r io.Reader, opts ExtractOptions) ([]MessageRecord, error) {
	if r == nil {
		return nil, &DocumentParseError{Err: errors.New("nil reader")}
	}
	opts = opts.withDefaults()

	dr, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, &DocumentParseError{Err: err}
	}
	doc, err := html.Parse(dr)
	if err != nil {
		return nil, &DocumentParseError{Err: err}
	}

	blocks := collectBlocks(doc)
	out := make([]MessageRecord, 0, len(blocks))
	for i, b := range blocks {
		rec := MessageRecord{
			ID:   b.id,
			Text: b.body,
		}
		rec.Sender, rec.TimestampRaw = senderAndDate(b, opts.SelfMarker)

		for _, att := range findAll(b.node, byClass(classAttachment)) {
			rec.Attachments = append(rec.Attachments, classifyAttachment(att, blocks, i, opts.ReplyPhrases))
		}
		out = append(out, rec)
	}
	return out, nil
}

func collectBlocks(doc *html.Node) []block {
	var blocks []block
	for _, item := range findAll(doc, byClass(classItem)) {
		msg := findFirst(item, byClass(classMessage))
		if msg == nil {
			continue
		}
		id, _ := attr(msg, "data-id")
		b := block{
			node: msg,
			id:   strings.TrimSpace(id),
		}
		b.header = findFirst(msg, byClass(classHeader))
		if b.header != nil {
			b.hdrText = strings.TrimSpace(textContent(b.header, nil))
			if content := nextElementSibling(b.header); content != nil && content.DataAtom == atom.Div {
				b.body = strings.TrimSpace(textContent(content, byClass(classKludges)))
			}
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// senderAndDate applies the header rule: a link names another identity and the date follows
// the first ", " after that name; without a link the whole header is the owner's date.
func senderAndDate(b block, selfMarker string) (string, string) {
	link := findFirst(b.header, isElement(atom.A))
	if link == nil {
		return selfMarker, b.hdrText
	}

	sender := strings.TrimSpace(textContent(link, nil))
	from := 0
	if i := strings.Index(b.hdrText, sender); sender != "" && i >= 0 {
		from = i + len(sender)
	}
	if j := strings.Index(b.hdrText[from:], ", "); j >= 0 {
		return sender, strings.TrimSpace(b.hdrText[from+j+2:])
	}
	return sender, ""
}

func classifyAttachment(att *html.Node, blocks []block, cur int, phrases []string) AttachmentRef {
	kind := strings.TrimSpace(textContent(findFirst(att, byClass(classDescription)), nil))
	if !isReplyKind(kind, phrases) {
		ref := AttachmentRef{Kind: kind}
		if l := findFirst(att, byClass(classLink)); l != nil {
			ref.Link, _ = attr(l, "href")
		}
		return ref
	}

	// The format has no pointer to the quoted message; take the nearest preceding block.
	curID := blocks[cur].id
	for i := cur - 1; i >= 0; i-- {
		c := blocks[i]
		if c.id == "" || c.id == curID {
			continue
		}
		return AttachmentRef{
			Kind:        kind,
			ReplyStatus: ReplyResolvedHeuristic,
			Reply: &ReplyRef{
				TargetID:     c.id,
				TargetHeader: c.hdrText,
				TargetText:   c.body,
			},
		}
	}
	return AttachmentRef{Kind: kind, ReplyStatus: ReplyUnresolved}
}

func isReplyKind(kind string, phrases []string) bool {
	k := strings.ToLower(kind)
	for _, p := range phrases {
		if p != "" && strings.Contains(k, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// ExtractFile opens path and extracts its records.
func ExtractFile(path string, opts ExtractOptions) ([]MessageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	defer f.Close()

	recs, err := ExtractDocument(f, opts)
	if err != nil {
		var pe *DocumentParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	return recs, nil
}

type ExtractDirOptions struct {
	ExtractOptions

	OverwriteExisting bool
	// Resume keeps existing per-shard outputs and skips their sources.
	Resume bool
	Pretty bool
}

type ExtractResult struct {
	Documents int
	Written   int
	Resumed   int
	Failed    int
	Records   int
	Outputs   []string
	Failures  []*DocumentParseError
}

// ExtractDir extracts every *.html under inDir (recursively) into one <shard>.json per document in outDir.
// A document that fails to parse is logged and counted; the batch continues.
func ExtractDir(ctx context.Context, inDir, outDir string, opts ExtractDirOptions) (ExtractResult, error) {
	if ctx == nil {
		return ExtractResult{}, errors.New("ExtractDir: nil context")
	}
	if inDir == "" || outDir == "" {
		return ExtractResult{}, errors.New("ExtractDir: empty directory")
	}

	sources, err := FindShardDocuments(inDir)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("ExtractDir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ExtractResult{}, fmt.Errorf("ExtractDir: mkdir out: %w", err)
	}

	var res ExtractResult
	taken := make(map[string]bool, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Documents++

		outPath := filepath.Join(outDir, uniqueOutputName(taken, ShardOutputName(inDir, src)))
		if fileutils.FileExists(outPath) {
			if opts.Resume {
				res.Resumed++
				res.Outputs = append(res.Outputs, outPath)
				continue
			}
			if !opts.OverwriteExisting {
				return res, fmt.Errorf("ExtractDir: output file already exists: %s", outPath)
			}
		}

		recs, err := ExtractFile(src, opts.ExtractOptions)
		if err != nil {
			var pe *DocumentParseError
			if !errors.As(err, &pe) {
				pe = &DocumentParseError{Path: src, Err: err}
			}
			log.Warn().Err(pe.Err).Str("document", src).Msg("skipping unparseable document")
			res.Failed++
			res.Failures = append(res.Failures, pe)
			continue
		}
		if recs == nil {
			recs = []MessageRecord{}
		}

		if err := fileutils.WriteJSONFileAtomic(outPath, recs, opts.Pretty); err != nil {
			return res, fmt.Errorf("ExtractDir: write %s: %w", outPath, err)
		}
		// The merger orders unnumbered shards by recency, so carry the source's mtime over.
		if st, err := os.Stat(src); err == nil {
			_ = os.Chtimes(outPath, st.ModTime(), st.ModTime())
		}

		log.Debug().Str("document", src).Int("records", len(recs)).Msg("extracted document")
		res.Written++
		res.Records += len(recs)
		res.Outputs = append(res.Outputs, outPath)
	}
	return res, nil
}

// FindShardDocuments returns all *.html files below dir, sorted by path.
func FindShardDocuments(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".html") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("FindShardDocuments: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// ShardOutputName maps a source document to its per-shard JSON file name.
// Subdirectories are folded into the name; ExtractDir suffixes any name that still collides.
func ShardOutputName(root, src string) string {
	rel, err := filepath.Rel(root, src)
	if err != nil {
		rel = filepath.Base(src)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = fileutils.SanitizeFilenameComponent(p)
	}
	name := strings.Join(parts, "_")
	if name == "" {
		name = "shard"
	}
	return name + ".json"
}

// uniqueOutputName returns name, or name with a ".<n>" suffix before the extension when an
// earlier document of the same run already claimed it. Sources are visited in sorted order,
// so a rerun assigns the same names.
func uniqueOutputName(taken map[string]bool, name string) string {
	out := name
	base := strings.TrimSuffix(name, ".json")
	for n := 2; taken[out]; n++ {
		out = fmt.Sprintf("%s.%d.json", base, n)
	}
	taken[out] = true
	return out
}
