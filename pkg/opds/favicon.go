package opds

import _ "embed"

//go:embed favicon.ico
var faviconICO []byte
