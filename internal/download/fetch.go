package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"
)

// downloadChapter runs the full pipeline for one chapter: space guard,
// staging setup, page-list resolution, bounded per-page fetching, and the
// commit check. A single failed page does not abort its siblings; the
// mismatch surfaces at commit time instead.
func (d *Downloader) downloadChapter(ctx context.Context, cfg Config, dl *Download) error {
	src, ok := d.sources.Source(dl.SourceID)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownSource, dl.SourceID)
	}

	root, err := d.layout.RootDir(src.Name(), dl.Manga)
	if err != nil {
		return fmt.Errorf("resolve library directory: %w", err)
	}

	if avail, supported := diskAvailable(root); supported && avail < cfg.MinFreeSpace {
		return fmt.Errorf("%w: %d bytes available at %s", ErrInsufficientSpace, avail, root)
	}

	chapterDir := d.layout.ChapterDirName(dl.Chapter)
	staging := d.stager.stagingDir(root, chapterDir)
	finished, err := d.stager.prepare(staging)
	if err != nil {
		return err
	}
	dl.setCompleted(finished)

	pages := dl.Pages()
	if pages == nil {
		pages, err = src.FetchPageList(ctx, dl.Chapter)
		if err != nil {
			return fmt.Errorf("fetch page list: %w", err)
		}
		if len(pages) == 0 {
			return ErrEmptyPageList
		}
		dl.setPages(pages)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.PageConcurrency)
	for _, p := range pages {
		p := p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			d.resolvePage(gctx, cfg, src, dl, staging, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	count, err := d.stager.finishedCount(staging)
	if err != nil {
		return err
	}
	if count != len(pages) {
		return fmt.Errorf("%w: %d of %d pages staged", ErrIncompleteCommit, count, len(pages))
	}

	final := d.stager.finalDir(root, chapterDir)
	if err := d.stager.commit(staging, final); err != nil {
		return err
	}
	if d.cache != nil {
		d.cache.RegisterFinished(chapterDir, root)
	}
	return nil
}

// resolvePage brings one page's bytes into staging: an already-finished file
// wins, then the shared cache, then the network with retries. Failures mark
// only this page and are reported through the progress stream.
func (d *Downloader) resolvePage(ctx context.Context, cfg Config, src Source, dl *Download, staging string, p *Page) {
	prefix := pageFilename(p.Index)

	if local, ok := d.stager.finishedFile(staging, prefix); ok {
		cp := dl.updatePage(p, func(p *Page) {
			p.Status = PageReady
			p.Progress = 100
			p.LocalRef = local
		})
		d.queue.PublishProgress(dl, cp)
		return
	}

	cp := dl.updatePage(p, func(p *Page) {
		p.Status = PageFetching
		p.Progress = 0
	})
	d.queue.PublishProgress(dl, cp)

	local, err := d.fetchPage(ctx, cfg, src, staging, prefix, p)
	if err != nil {
		if ctx.Err() == nil {
			d.log.Warn("page download failed",
				"manga", dl.Manga.Title,
				"chapter", dl.Chapter.Name,
				"page", p.Index+1,
				"error", err,
			)
		}
		cp := dl.updatePage(p, func(p *Page) { p.Status = PageFailed })
		d.queue.PublishProgress(dl, cp)
		return
	}

	cp = dl.updatePage(p, func(p *Page) {
		p.Status = PageReady
		p.Progress = 100
		p.LocalRef = local
	})
	dl.incCompleted()
	d.queue.PublishProgress(dl, cp)
}

// fetchPage resolves page bytes from the cache or the network.
func (d *Downloader) fetchPage(ctx context.Context, cfg Config, src Source, staging, prefix string, p *Page) (string, error) {
	if p.RemoteRef == "" {
		return "", fmt.Errorf("page %d has no remote reference", p.Index+1)
	}

	if d.cache != nil && d.cache.Has(p.RemoteRef) {
		local, err := d.copyFromCache(staging, prefix, p.RemoteRef)
		if err == nil {
			return local, nil
		}
		d.log.Debug("cache copy failed, fetching from network", "ref", p.RemoteRef, "error", err)
	}

	var local string
	err := retry.Do(
		func() error {
			var err error
			local, err = d.fetchFromNetwork(ctx, src, staging, prefix, p)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.RetryCount)+1),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return local, err
}

// copyFromCache copies a cached image into staging and evicts the entry.
func (d *Downloader) copyFromCache(staging, prefix, ref string) (string, error) {
	cached, ok := d.cache.Get(ref)
	if !ok {
		return "", fmt.Errorf("cache entry vanished: %s", ref)
	}
	in, err := os.Open(cached)
	if err != nil {
		return "", fmt.Errorf("open cached image: %w", err)
	}
	defer in.Close()

	tmp := filepath.Join(staging, prefix+tmpExt)
	if err := writeStream(tmp, in); err != nil {
		return "", err
	}

	final, err := renameWithExtension(tmp, staging, prefix, "", ref)
	if err != nil {
		return "", err
	}
	if err := d.cache.Remove(ref); err != nil {
		d.log.Debug("failed to evict cache entry", "ref", ref, "error", err)
	}
	return final, nil
}

// fetchFromNetwork streams one image to a .tmp file and renames it into
// place once the extension is known.
func (d *Downloader) fetchFromNetwork(ctx context.Context, src Source, staging, prefix string, p *Page) (string, error) {
	body, contentType, err := src.FetchImage(ctx, p)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp := filepath.Join(staging, prefix+tmpExt)
	if err := writeStream(tmp, body); err != nil {
		// A cancelled fetch deliberately leaves the .tmp file behind; it
		// is purged and refetched on the next dispatch.
		if ctx.Err() == nil {
			os.Remove(tmp)
		}
		return "", err
	}

	return renameWithExtension(tmp, staging, prefix, contentType, p.RemoteRef)
}

// writeStream copies r into path, creating or truncating it.
func writeStream(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create page file: %w", err)
	}
	_, err = io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write page file: %w", err)
	}
	return nil
}

// renameWithExtension determines the image extension for a staged .tmp file
// and atomically renames it to its final per-page name.
func renameWithExtension(tmp, staging, prefix, contentType, ref string) (string, error) {
	head := make([]byte, 512)
	n := 0
	if f, err := os.Open(tmp); err == nil {
		n, _ = io.ReadFull(f, head)
		f.Close()
	}

	ext := detectExtension(contentType, ref, head[:n])
	final := filepath.Join(staging, prefix+ext)
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("finalize page file: %w", err)
	}
	return final, nil
}

// pageFilename returns the zero-padded filename prefix for a page index.
func pageFilename(index int) string {
	return fmt.Sprintf("%03d", index+1)
}

var imageExtByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

var knownImageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".avif": {},
}

// detectExtension picks a file extension from, in order: the response
// content type, the remote reference's path, magic-number sniffing of the
// first bytes, and finally a generic image default.
func detectExtension(contentType, ref string, head []byte) string {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := imageExtByType[ct]; ok {
			return ext
		}
		if strings.HasPrefix(ct, "image/") {
			if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
				return exts[0]
			}
		}
	}

	if u, err := url.Parse(ref); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if _, ok := knownImageExts[ext]; ok {
			return ext
		}
	}

	if len(head) > 0 {
		if ext, ok := imageExtByType[http.DetectContentType(head)]; ok {
			return ext
		}
	}

	return ".jpg"
}
