package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// rebuildTarget is one index being rebuilt: either an attribute sub-index
// or a VLV index.
type rebuildTarget struct {
	index *index.Index
	vlv   *vlv.VLVIndex
}

func (t rebuildTarget) name() string {
	if t.vlv != nil {
		return t.vlv.Name()
	}
	return t.index.Name()
}

func (t rebuildTarget) setRebuildStatus(running bool) {
	if t.vlv != nil {
		t.vlv.SetRebuildStatus(running)
		return
	}
	t.index.SetRebuildStatus(running)
}

// resolveTargets maps index names to rebuild targets. A name is an
// attribute (all of its sub-indexes), a sub-index such as "cn.equality",
// or a VLV index name. No names selects every index.
func (ec *EntryContainer) resolveTargets(names []string) ([]rebuildTarget, error) {
	attrs, vlvs := ec.indexes()
	var all []rebuildTarget
	for _, a := range attrs {
		for _, x := range a.Indexes() {
			all = append(all, rebuildTarget{index: x})
		}
	}
	for _, v := range vlvs {
		all = append(all, rebuildTarget{vlv: v})
	}
	if len(names) == 0 {
		return all, nil
	}

	seen := make(map[string]bool)
	var out []rebuildTarget
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		found := false
		for _, t := range all {
			match := strings.EqualFold(t.name(), n)
			if t.index != nil && strings.HasPrefix(t.index.Name(), n+".") {
				match = true
			}
			if !match {
				continue
			}
			found = true
			if !seen[t.name()] {
				seen[t.name()] = true
				out = append(out, t)
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
		}
	}
	return out, nil
}

// Rebuild clears the named indexes and reinserts every entry into them,
// then marks them trusted. Indexes are rebuilt concurrently, each in its
// own transaction. Writes wait until the rebuild finishes.
func (ec *EntryContainer) Rebuild(ctx context.Context, names ...string) error {
	targets, err := ec.resolveTargets(names)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}

	ec.writeMu.Lock()
	defer ec.writeMu.Unlock()

	start := time.Now()
	for _, t := range targets {
		t.setRebuildStatus(true)
	}
	defer func() {
		for _, t := range targets {
			t.setRebuildStatus(false)
		}
	}()

	ec.mu.RLock()
	limit := max(ec.settings.OpenConcurrency, 1)
	ec.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, t := range targets {
		g.Go(func() error { return ec.rebuildOne(ctx, t) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ec.logger.Info("indexes rebuilt", "indexes", len(targets), "entries", ec.EntryCount(), "duration", time.Since(start))
	return nil
}

func (ec *EntryContainer) rebuildOne(ctx context.Context, t rebuildTarget) error {
	txn := ec.store.Begin()
	if err := ec.reinsert(ctx, txn, t); err != nil {
		_ = txn.Abort()
		if t.vlv != nil {
			if rerr := t.vlv.Recount(); rerr != nil {
				ec.logger.Warn("VLV recount failed", "index", t.name(), "error", rerr)
			}
		}
		return fmt.Errorf("rebuild %s: %w", t.name(), err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("rebuild %s: %w", t.name(), err)
	}
	ec.logger.Debug("index rebuilt", "index", t.name())
	return nil
}

func (ec *EntryContainer) reinsert(ctx context.Context, txn kv.Txn, t rebuildTarget) error {
	if t.vlv != nil {
		if err := t.vlv.Clear(txn); err != nil {
			return err
		}
		buf := vlv.NewIndexBuffer()
		err := ec.forEachEntry(txn, func(id entry.ID, e *entry.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t.vlv.AddEntry(buf, id, e)
			return nil
		})
		if err != nil {
			return err
		}
		if err := buf.Flush(txn); err != nil {
			return err
		}
		return t.vlv.SetTrusted(txn, true)
	}

	if err := t.index.Clear(txn); err != nil {
		return err
	}
	err := ec.forEachEntry(txn, func(id entry.ID, e *entry.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return t.index.AddEntry(txn, id, e)
	})
	if err != nil {
		return err
	}
	return t.index.SetTrusted(txn, true)
}

// ApplyConfig applies a reloaded configuration. Entry limits and VLV
// settings change in place; a new substring length queues the substring
// index for a rebuild; attributes and VLV indexes that appear are
// opened and those that disappear stop being maintained. It returns the
// names of the indexes that must be rebuilt before they answer searches.
// The base DN and schema files cannot change while the container is open.
func (ec *EntryContainer) ApplyConfig(cfg *config.Config) ([]string, error) {
	if base, err := entry.NormalizeDN(cfg.Backend.BaseDN); err != nil || base != ec.BaseDN() {
		ec.logger.Warn("base DN change ignored until restart", "baseDN", cfg.Backend.BaseDN)
	}

	ec.writeMu.Lock()
	defer ec.writeMu.Unlock()

	ec.mu.Lock()
	if !slices.Equal(cfg.Backend.SchemaFiles, ec.settings.SchemaFiles) {
		ec.logger.Warn("schema file change ignored until restart", "schemaFiles", cfg.Backend.SchemaFiles)
	}
	schemaFiles := ec.settings.SchemaFiles
	ec.settings = cfg.Backend
	ec.settings.BaseDN = ec.baseDN
	ec.settings.SchemaFiles = schemaFiles
	ec.cache.resize(cfg.Backend.EntryCacheSize)
	attrs := ec.attrIndexes
	vlvs := ec.vlvIndexes
	ec.mu.Unlock()

	var rebuild []string
	nextAttrs := make(map[string]*index.AttributeIndex, len(cfg.Indexes))
	for _, ic := range cfg.Indexes {
		ac, err := attributeConfig(ic, cfg.Backend)
		if err != nil {
			return nil, err
		}
		attr := strings.ToLower(strings.TrimSpace(ic.Attribute))
		resized := false
		if a, ok := attrs[attr]; ok && slices.Equal(a.Types(), sortedTypes(ac.Types)) {
			for _, x := range a.ApplyConfig(ac) {
				rebuild = append(rebuild, x.Name())
			}
			if !a.SubstringLengthChanged(ac) {
				nextAttrs[attr] = a
				continue
			}
			resized = true
		}
		a, err := index.OpenAttributeIndex(ec.store, ec.state, ec.schema, ac, ec.logger)
		if err != nil {
			return nil, fmt.Errorf("open %s index: %w", ic.Attribute, err)
		}
		if resized {
			// Stored keys still have the old length.
			sub := a.Index(index.IndexSubstring)
			if err := sub.SetTrusted(nil, false); err != nil {
				return nil, err
			}
			ec.logger.Info("substring length changed", "index", sub.Name(), "substringLength", a.SubstringLength())
		}
		nextAttrs[a.Attribute()] = a
		for _, x := range a.Indexes() {
			if !x.IsTrusted() {
				rebuild = append(rebuild, x.Name())
			}
		}
	}

	nextVLVs := make(map[string]*vlv.VLVIndex, len(cfg.VLVIndexes))
	for _, vc := range cfg.VLVIndexes {
		c, err := vlvConfig(vc)
		if err != nil {
			return nil, err
		}
		name := strings.ToLower(vc.Name)
		if v, ok := vlvs[name]; ok {
			needed, err := v.Reconfigure(c)
			if err != nil {
				return nil, err
			}
			if needed {
				rebuild = append(rebuild, v.Name())
			}
			nextVLVs[name] = v
			continue
		}
		v, err := vlv.Open(ec.store, ec.state, ec.schema, c, ec.logger)
		if err != nil {
			return nil, fmt.Errorf("open VLV index %s: %w", vc.Name, err)
		}
		nextVLVs[name] = v
		if !v.IsTrusted() {
			rebuild = append(rebuild, v.Name())
		}
	}

	ec.mu.Lock()
	ec.attrIndexes = nextAttrs
	ec.vlvIndexes = nextVLVs
	ec.mu.Unlock()

	if ec.EntryCount() == 0 {
		if err := ec.trustEmptyIndexes(); err != nil {
			return nil, err
		}
		rebuild = nil
	}

	slices.Sort(rebuild)
	rebuild = slices.Compact(rebuild)
	ec.logger.Info("configuration applied",
		"attributeIndexes", len(nextAttrs),
		"vlvIndexes", len(nextVLVs),
		"rebuildRequired", len(rebuild))
	return rebuild, nil
}

func sortedTypes(types []index.IndexType) []index.IndexType {
	out := slices.Clone(types)
	slices.Sort(out)
	return slices.Compact(out)
}
