// Package pkg provides the libraries behind pkgreuse.
//
// # Overview
//
// pkgreuse installs npm dependencies by copying packages that are already
// installed in other projects on the same machine. Only what cannot be found
// locally is handed to a package manager.
//
// # Packages
//
//   - [github.com/matzehuels/pkgreuse/pkg/crawl]: find package.json files
//   - [github.com/matzehuels/pkgreuse/pkg/match]: collect on-disk candidates
//   - [github.com/matzehuels/pkgreuse/pkg/resolve]: pick one candidate per dependency
//   - [github.com/matzehuels/pkgreuse/pkg/install]: copy picks into the project
//   - [github.com/matzehuels/pkgreuse/pkg/fallback]: run npm, yarn or pnpm
//   - [github.com/matzehuels/pkgreuse/pkg/pipeline]: run all of the above
//
// Supporting packages: manifest (package.json model), depspec (requested
// identifiers), version (normalization and ordering), cache (crawl cache),
// errors (coded errors), observability (stage hooks), buildinfo.
package pkg
