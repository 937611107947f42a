// Package phprt embeds the PHP-side half of the bridge:
// a single self-contained bootstrap script shipped inside the Go
// binary via go:embed, exposed both as raw source (for FPM mode, which
// needs a script file on disk), stripped of its open tag (for CLI -r
// mode), and pre-rendered with an inline HELO constant.
package phprt

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed bootstrap.php
var source []byte

// Source returns the bootstrap script verbatim, suitable for writing
// to a file served by php-fpm (FPM transport) or for inspection.
func Source() []byte {
	out := make([]byte, len(source))
	copy(out, source)
	return out
}

// Inline returns the bootstrap source with the opening <?php tag
// stripped, the form `php -r` requires (code passed on the command
// line must not carry the tag).
func Inline() []byte {
	return []byte(strings.TrimSpace(strings.TrimPrefix(string(source), "<?php")))
}

// Render returns the bootstrap script with an inline HELO prelude
// injected. The result keeps the opening <?php tag, so it is a script
// file's contents, not a `php -r` argument (Inline serves that case).
// readHelo() in bootstrap.php prefers this inline constant when
// present and falls back to stdin/FastCGI param otherwise.
func Render(helo string) []byte {
	prelude := fmt.Sprintf("<?php const PHP_WORLD_INLINE_HELO = %s;\n", phpStringLiteral(helo))
	body := strings.TrimPrefix(string(source), "<?php")
	return []byte(prelude + body)
}

func phpStringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
