// Package artwork renders size-bounded JPEG copies of album and track art for
// the web player and for embedding into tagged files. Sources may be JPEG,
// PNG or WebP; transparency is flattened onto white.
package artwork
