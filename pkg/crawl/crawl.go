// Package crawl finds package.json files under one or more root directories.
//
// The walk skips directories that can never hold a reusable installation:
// hidden directories, build/output/cache/test directories, and any install
// directory nested inside another install directory (node_modules/a/node_modules
// holds copies already reachable through node_modules/a). Symlinks are not
// followed.
//
// Each root is walked in its own goroutine. A root that cannot be walked is
// logged and contributes nothing; only cancellation of the context fails a
// crawl.
package crawl

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkgreuse/pkg/cache"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/observability"
)

// DefaultExclude lists directory names never descended into.
var DefaultExclude = []string{
	"build", "dist", "out", "output", "coverage",
	"cache", "tmp", "temp",
	"test", "tests", "__tests__", "__mocks__", "fixtures",
}

// virtualDirs are pseudo filesystems skipped when walking from "/".
var virtualDirs = []string{"/proc", "/sys", "/dev"}

// cacheKeyType labels crawl entries in cache hooks.
const cacheKeyType = "crawl"

// Options configures a Crawler.
type Options struct {
	InstallDir string        // Install directory name (default: node_modules)
	Exclude    []string      // Excluded directory names (default: DefaultExclude)
	Cache      cache.Cache   // Crawl result cache (default: NullCache)
	CacheTTL   time.Duration // Lifetime of cached crawl results
	Logger     *log.Logger   // Logger (default: log.Default())
}

// Crawler walks roots for manifests. It is safe for concurrent use.
type Crawler struct {
	installDir string
	exclude    map[string]bool
	excludeKey []string
	cache      cache.Cache
	ttl        time.Duration
	logger     *log.Logger
}

// New creates a Crawler, filling unset options with defaults.
func New(opts Options) *Crawler {
	if opts.InstallDir == "" {
		opts.InstallDir = manifest.InstallDir
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	exclude := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		exclude[name] = true
	}
	return &Crawler{
		installDir: opts.InstallDir,
		exclude:    exclude,
		excludeKey: slices.Clone(opts.Exclude),
		cache:      opts.Cache,
		ttl:        opts.CacheTTL,
		logger:     opts.Logger,
	}
}

// DefaultRoots returns the roots scanned when no custom root is given: every
// existing drive root on Windows, the filesystem root elsewhere.
func DefaultRoots() []string {
	if runtime.GOOS != "windows" {
		return []string{string(filepath.Separator)}
	}
	var roots []string
	for letter := 'A'; letter <= 'Z'; letter++ {
		root := string(letter) + `:\`
		if _, err := os.Stat(root); err == nil {
			roots = append(roots, root)
		}
	}
	return roots
}

// Roots returns custom when set, otherwise DefaultRoots.
func Roots(custom string) []string {
	if custom != "" {
		return []string{custom}
	}
	return DefaultRoots()
}

// Crawl walks every root concurrently and returns the manifests found, sorted
// within each root and concatenated in root order. Paths reachable from more
// than one root appear once, at their first position.
func (c *Crawler) Crawl(ctx context.Context, roots []string) ([]string, error) {
	results := make([][]string, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		g.Go(func() error {
			paths, err := c.crawlRoot(gctx, root)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("skipping root", "root", root, "err", err)
				return nil
			}
			results[i] = paths
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, paths := range results {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// crawlRoot serves root from the cache when possible.
func (c *Crawler) crawlRoot(ctx context.Context, root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeScan, err, "resolve %s", root)
	}
	key := cache.CrawlKey(abs, c.installDir, c.excludeKey)

	if data, hit, err := c.cache.Get(ctx, key); err == nil && hit {
		var paths []string
		if err := json.Unmarshal(data, &paths); err == nil {
			observability.Cache().OnCacheHit(ctx, cacheKeyType)
			c.logger.Debug("crawl cache hit", "root", abs, "manifests", len(paths))
			return paths, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, cacheKeyType)

	paths, err := c.Walk(ctx, abs)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(paths); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Debug("crawl cache write failed", "root", abs, "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, cacheKeyType, len(data))
		}
	}
	return paths, nil
}

// Walk returns the sorted manifest paths under root without consulting the
// cache. Unreadable subdirectories are skipped; failing to read root itself
// returns an ErrCodeScan error.
func (c *Crawler) Walk(ctx context.Context, root string) ([]string, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeScan, err, "scan %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeScan, "scan %s: not a directory", root)
	}

	fromFSRoot := root == string(filepath.Separator)
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Debug("skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && c.skipDir(path, d.Name(), fromFSRoot) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == manifest.FileName && d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(errors.ErrCodeScan, err, "scan %s", root)
	}

	slices.Sort(paths)
	return paths, nil
}

// skipDir applies the exclusion rules to a directory below the root.
func (c *Crawler) skipDir(path, name string, fromFSRoot bool) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	parent := filepath.Dir(path)
	if name == c.installDir && c.insideInstallDir(parent) {
		return true
	}
	// Entries of an install directory are package names ("tmp", "test" and
	// "cache" are all real packages), so the name rules do not apply there.
	if c.exclude[name] && !c.isPackageDir(parent) {
		return true
	}
	return fromFSRoot && slices.Contains(virtualDirs, path)
}

// isPackageDir reports whether children of dir are installed packages:
// dir is an install directory or a scope directory inside one.
func (c *Crawler) isPackageDir(dir string) bool {
	base := filepath.Base(dir)
	if base == c.installDir {
		return true
	}
	return strings.HasPrefix(base, "@") && filepath.Base(filepath.Dir(dir)) == c.installDir
}

// insideInstallDir reports whether dir has an install directory among its
// path segments.
func (c *Crawler) insideInstallDir(dir string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if seg == c.installDir {
			return true
		}
	}
	return false
}
