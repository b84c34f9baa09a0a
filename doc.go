// Package assetforge implements a self-healing, dependency-tracked cache of
// derived web assets. A Coordinator combines one or more source files into a
// single artifact (a concatenated/minified script bundle, or a sprite sheet
// plus its stylesheet), persists it, and watches every contributing path so
// the artifact is rebuilt automatically when a source changes on disk.
//
// Components:
//   - bundle.Processor: turns ordered source contents into output bytes,
//     one implementation per artifact kind (script, sprite).
//   - store.Store: persists processed output (disk by default).
//   - watch.Registry: binds a path set to a cache key over a host Monitor
//     and delivers change/eviction events asynchronously.
//   - fsio: retrying file reads/writes with BLAKE3 content hashing.
//
// Staleness is resolved with per-key generations: every rebuild captures the
// generation at start and installs its result only if no newer rebuild (or a
// Remove) happened in the interim. The same generation guards the linkref
// markup cache.
//
// Lifecycle:
//
//	coord, _ := assetforge.New(assetforge.Options{Monitor: mon})
//	err := coord.Add(ctx, assetforge.ArtifactSpec{
//	    Kind:       assetforge.KindScript,
//	    OutputPath: "public/app.js",
//	    Sources: []assetforge.SourceRef{
//	        {Path: "js/vendor.js"},
//	        {Path: "js/app.js", Minify: true},
//	    },
//	})
//	// later: coord.Remove(spec.Key())
package assetforge
