// Package atomicfile replaces files so that readers see either the old or
// the new content, never a partial write. Cache entries and the config file
// are written through it.
package atomicfile
