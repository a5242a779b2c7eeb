package appfs

import "embed"

// FS carries the SQL migrations so built binaries migrate without a source
// checkout.
//go:embed migrations
var FS embed.FS
